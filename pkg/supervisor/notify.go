package supervisor

import (
	sddaemon "github.com/coreos/go-systemd/v22/daemon"
)

type notifyKind int

const (
	notifyReady notifyKind = iota
	notifyWatchdog
	notifyStopping
)

// Notifier forwards lifecycle notifications to a service manager.
type Notifier interface {
	Notify(state string) error
}

// systemdNotifier talks to systemd through $NOTIFY_SOCKET. Outside systemd
// every call is a no-op.
type systemdNotifier struct{}

func (systemdNotifier) Notify(state string) error {
	if state == sddaemon.SdNotifyWatchdog {
		if interval, err := sddaemon.SdWatchdogEnabled(false); err != nil || interval == 0 {
			return err
		}
	}
	_, err := sddaemon.SdNotify(false, state)
	return err
}

func (s *Supervisor) notify(kind notifyKind) {
	var state string
	switch kind {
	case notifyReady:
		state = sddaemon.SdNotifyReady
	case notifyWatchdog:
		state = sddaemon.SdNotifyWatchdog
	case notifyStopping:
		state = sddaemon.SdNotifyStopping
	default:
		return
	}
	if err := s.opts.Notifier.Notify(state); err != nil {
		s.logger.Debug("Service manager notification failed", "state", state, "error", err)
	}
}
