//go:build windows

package dnssd

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/windows/svc"

	"github.com/axondata/go-dnssd/internal/logging"
)

// WindowsHost runs the service under the Windows Service Control Manager
type WindowsHost struct {
	logger *logging.Logger
}

// NewWindowsHost creates a WindowsHost logging to logger
func NewWindowsHost(logger *logging.Logger) *WindowsHost {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &WindowsHost{logger: logger}
}

// DefaultHost returns a WindowsHost when the process was started by the
// SCM and a SignalHost otherwise
func DefaultHost(logger *logging.Logger) Host {
	if ok, err := svc.IsWindowsService(); err == nil && ok {
		return NewWindowsHost(logger)
	}
	return NewSignalHost(logger)
}

// Register connects to the SCM dispatcher and returns once the service
// handler is running
func (h *WindowsHost) Register(name string, handler ControlHandler) (StatusReporter, error) {
	if handler == nil {
		return nil, fmt.Errorf("nil control handler")
	}

	ws := &windowsService{
		handler: handler,
		logger:  h.logger.With("host", "scm", "unit", name),
		started: make(chan chan<- svc.Status, 1),
		done:    make(chan struct{}),
	}
	r := &windowsReporter{service: ws, runErr: make(chan error, 1)}

	go func() {
		r.runErr <- svc.Run(name, ws)
	}()

	select {
	case changes := <-ws.started:
		r.changes = changes
		return r, nil
	case err := <-r.runErr:
		if err == nil {
			err = fmt.Errorf("service dispatcher exited before start")
		}
		return nil, err
	}
}

// windowsService implements svc.Handler
type windowsService struct {
	handler  ControlHandler
	logger   *logging.Logger
	started  chan chan<- svc.Status
	done     chan struct{}
	exitCode atomic.Uint32
}

// Execute pumps SCM change requests into the control handler until the
// reporter signals Stopped
func (w *windowsService) Execute(_ []string, r <-chan svc.ChangeRequest, s chan<- svc.Status) (bool, uint32) {
	w.started <- s

	for {
		select {
		case <-w.done:
			return false, w.exitCode.Load()
		case c := <-r:
			ev := translateCmd(c.Cmd)
			res := w.handler(ev)
			switch {
			case ev == ControlInterrogate && res == Handled:
				s <- c.CurrentStatus
			case res == NotImplemented:
				w.logger.Debug("unsupported control request", "cmd", uint32(c.Cmd))
			}
		}
	}
}

// translateCmd maps SCM commands onto control requests
func translateCmd(cmd svc.Cmd) ControlEvent {
	switch cmd {
	case svc.Interrogate:
		return ControlInterrogate
	case svc.Stop, svc.Shutdown:
		return ControlStop
	default:
		return ControlOther
	}
}

type windowsReporter struct {
	service *windowsService
	changes chan<- svc.Status
	runErr  chan error
	once    sync.Once
}

// SetStatus forwards st to the SCM. Stopped ends the handler and waits for
// the dispatcher, which reports the final state itself.
func (r *windowsReporter) SetStatus(st Status) error {
	if st.State != StateStopped {
		r.changes <- toSvcStatus(st)
		return nil
	}

	var err error
	r.once.Do(func() {
		r.service.exitCode.Store(st.ExitCode)
		close(r.service.done)
		err = <-r.runErr
	})
	return err
}

// toSvcStatus converts a Status into its SCM form
func toSvcStatus(st Status) svc.Status {
	out := svc.Status{
		CheckPoint:    st.CheckPoint,
		WaitHint:      uint32(st.WaitHint.Milliseconds()),
		Win32ExitCode: st.ExitCode,
	}
	switch st.State {
	case StateStarting:
		out.State = svc.StartPending
	case StateRunning:
		out.State = svc.Running
	case StateStopPending:
		out.State = svc.StopPending
	default:
		out.State = svc.Stopped
	}
	if st.Accepts&AcceptStop != 0 {
		out.Accepts |= svc.AcceptStop
	}
	return out
}
