package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/zba/internal/events"
)

// registerSSERoutes streams supervisor lifecycle events.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time worker spawn, exit, scale and status events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"worker-spawned": events.WorkerSpawnedEvent{},
		"worker-exited":  events.WorkerExitedEvent{},
		"pool-scaled":    events.PoolScaledEvent{},
		"stop-requested": events.StopRequestedEvent{},
		"status-changed": events.StatusChangedEvent{},
		"spawn-failed":   events.SpawnFailedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)
		if s.options.EventBus != nil {
			unsubscribe := events.SubscribeAll(s.options.EventBus, eventCh)
			defer unsubscribe()
		}

		// Current status first so clients need no separate request.
		if s.options.Controller != nil {
			snap := s.options.Controller.Snapshot()
			if err := send.Data(events.StatusChangedEvent{
				From:      string(snap.Status),
				To:        string(snap.Status),
				Timestamp: time.Now().Format(time.RFC3339),
			}); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
