package dnssd

import (
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/axondata/go-dnssd/internal/logging"
)

// SignalHost runs the service in the foreground or as a systemd unit.
// SIGINT and SIGTERM request a stop and SIGUSR1 (unix only) asks for an
// interrogate. Status changes are forwarded to systemd through sd_notify,
// which does nothing when NOTIFY_SOCKET is unset.
type SignalHost struct {
	logger *logging.Logger
	notify func(state string) (bool, error)
}

// NewSignalHost creates a SignalHost logging to logger
func NewSignalHost(logger *logging.Logger) *SignalHost {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &SignalHost{
		logger: logger,
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
	}
}

// Register starts delivering signals to handler until Stopped is reported
func (h *SignalHost) Register(name string, handler ControlHandler) (StatusReporter, error) {
	if handler == nil {
		return nil, fmt.Errorf("nil control handler")
	}

	r := &signalReporter{
		logger: h.logger.With("host", "signal", "unit", name),
		notify: h.notify,
		sigs:   make(chan os.Signal, 4),
		done:   make(chan struct{}),
	}
	if len(stopSignals) > 0 {
		signal.Notify(r.sigs, stopSignals...)
	}
	if len(interrogateSignals) > 0 {
		signal.Notify(r.sigs, interrogateSignals...)
	}

	go r.dispatch(handler)

	return r, nil
}

// classifySignal maps an OS signal onto a control request
func classifySignal(sig os.Signal) ControlEvent {
	switch {
	case slices.Contains(interrogateSignals, sig):
		return ControlInterrogate
	case slices.Contains(stopSignals, sig):
		return ControlStop
	default:
		return ControlOther
	}
}

type signalReporter struct {
	logger *logging.Logger
	notify func(state string) (bool, error)
	sigs   chan os.Signal
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	current Status
}

func (r *signalReporter) dispatch(handler ControlHandler) {
	for {
		select {
		case <-r.done:
			return
		case sig := <-r.sigs:
			ev := classifySignal(sig)
			res := handler(ev)
			if ev == ControlInterrogate && res == Handled {
				st := r.status()
				r.logger.Info("interrogate", "state", st.State.String(), "accepts_stop", st.Accepts&AcceptStop != 0)
			}
		}
	}
}

func (r *signalReporter) status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// SetStatus records st and forwards it to systemd
func (r *signalReporter) SetStatus(st Status) error {
	r.mu.Lock()
	r.current = st
	r.mu.Unlock()

	if _, err := r.notify(sdNotifyState(st)); err != nil {
		return fmt.Errorf("sd_notify: %w", err)
	}

	if st.State == StateStopped {
		r.once.Do(func() {
			signal.Stop(r.sigs)
			close(r.done)
		})
	}
	return nil
}

// sdNotifyState renders a Status as an sd_notify message
func sdNotifyState(st Status) string {
	lines := []string{"STATUS=" + st.State.String()}
	switch st.State {
	case StateRunning:
		lines = append([]string{daemon.SdNotifyReady}, lines...)
	case StateStopPending:
		lines = append([]string{daemon.SdNotifyStopping}, lines...)
		if st.WaitHint > 0 {
			lines = append(lines, fmt.Sprintf("EXTEND_TIMEOUT_USEC=%d", st.WaitHint.Microseconds()))
		}
	case StateStopped:
		if st.ExitCode != 0 {
			lines = append(lines, fmt.Sprintf("ERRNO=%d", st.ExitCode))
		}
	}
	return strings.Join(lines, "\n")
}
