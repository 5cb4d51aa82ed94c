package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T into ch. Events are dropped
// when ch is full so a slow consumer never blocks the publisher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeAll forwards every supervisor event into ch.
func SubscribeAll(bus *Bus, ch chan<- any) func() {
	unsubs := []func(){
		SubscribeToChannel[WorkerSpawnedEvent](bus, ch),
		SubscribeToChannel[WorkerExitedEvent](bus, ch),
		SubscribeToChannel[PoolScaledEvent](bus, ch),
		SubscribeToChannel[StopRequestedEvent](bus, ch),
		SubscribeToChannel[StatusChangedEvent](bus, ch),
		SubscribeToChannel[SpawnFailedEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}
