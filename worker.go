package dnssd

import (
	"github.com/sourcegraph/conc/panics"
	"vawter.tech/stopper"

	"github.com/axondata/go-dnssd/internal/logging"
)

// WorkerState is the progress of a single advertisement
type WorkerState int

const (
	// WorkerPending means the worker was started and is registering
	WorkerPending WorkerState = iota
	// WorkerRegistered means the advertisement is live
	WorkerRegistered
	// WorkerFailed means registration failed; the worker has exited
	WorkerFailed
	// WorkerSkipped means no worker was started because the port could not be resolved
	WorkerSkipped
	// WorkerStopped means the advertisement was withdrawn during shutdown
	WorkerStopped
)

// WorkerState string constants
const (
	workerPendingStr    = "pending"
	workerRegisteredStr = "registered"
	workerFailedStr     = "failed"
	workerSkippedStr    = "skipped"
	workerStoppedStr    = "stopped"
)

// String returns the string representation of a WorkerState
func (s WorkerState) String() string {
	switch s {
	case WorkerRegistered:
		return workerRegisteredStr
	case WorkerFailed:
		return workerFailedStr
	case WorkerSkipped:
		return workerSkippedStr
	case WorkerStopped:
		return workerStoppedStr
	default:
		return workerPendingStr
	}
}

// Done reports whether the worker has exited or never ran
func (s WorkerState) Done() bool {
	return s == WorkerFailed || s == WorkerSkipped || s == WorkerStopped
}

// WorkerStatus is a point-in-time view of one service
type WorkerStatus struct {
	Key   string
	Type  string
	Name  string
	Port  uint16
	State WorkerState
	Err   error
}

// worker owns exactly one advertisement for the lifetime of its stopper context
type worker struct {
	ad        Advertisement
	registrar Registrar
	logger    *logging.Logger
	report    func(key string, state WorkerState, err error)
}

// run registers the advertisement, parks until the context is stopping and
// then withdraws it. Failures end only this worker, so run always returns nil.
func (w *worker) run(sctx *stopper.Context) error {
	w.logger.Debug("registering advertisement", "type", w.ad.Type, "name", w.ad.Name, "port", w.ad.Port)

	var reg Registration
	var err error
	var pc panics.Catcher
	pc.Try(func() {
		reg, err = w.registrar.Register(sctx, w.ad)
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}
	if err == nil && reg == nil {
		err = errNilRegistration
	}
	if err != nil {
		opErr := &OpError{Op: OpRegister, Service: w.ad.Key, Err: err}
		w.logger.Error("registration failed", "error", opErr.Error())
		w.report(w.ad.Key, WorkerFailed, opErr)
		return nil
	}

	w.logger.Info("advertisement registered", "type", w.ad.Type, "name", w.ad.Name, "port", w.ad.Port)
	w.report(w.ad.Key, WorkerRegistered, nil)

	<-sctx.Stopping()

	var shutdown panics.Catcher
	shutdown.Try(reg.Shutdown)
	if r := shutdown.Recovered(); r != nil {
		w.logger.Warn("advertisement shutdown panicked", "error", r.AsError().Error())
	}

	w.logger.Info("advertisement withdrawn")
	w.report(w.ad.Key, WorkerStopped, nil)
	return nil
}
