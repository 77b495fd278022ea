package dnssd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vawter.tech/stopper"

	"github.com/axondata/go-dnssd/internal/logging"
)

const (
	// exitCodeStartupFailure is reported with Stopped when the service table cannot be loaded
	exitCodeStartupFailure = 1

	// startWaitHint tells the host how long Starting may last
	startWaitHint = 10 * time.Second
)

// Supervisor drives the service lifecycle: it loads the service table, starts
// one worker per advertisement, reports status to the host and drains the
// workers when the host asks it to stop.
type Supervisor struct {
	host      Host
	registrar Registrar
	ports     PortAllocator
	logger    *logging.Logger

	// name is the identity registered with the host service manager
	name          string
	configPath    string
	pollInterval  time.Duration
	drainTimeout  time.Duration
	eventBuffer   int
	stateFile     *StateFile
	watchConfig   bool
	watchDebounce time.Duration

	// reportMu serializes state file writes so snapshots land in order
	reportMu sync.Mutex

	mu       sync.Mutex
	state    State
	reported bool
	attempts int
	order    []string
	services map[string]*WorkerStatus
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithServiceName sets the name registered with the host service manager
func WithServiceName(name string) Option {
	return func(s *Supervisor) {
		s.name = name
	}
}

// WithConfigPath sets the service table location
func WithConfigPath(path string) Option {
	return func(s *Supervisor) {
		s.configPath = path
	}
}

// WithPortAllocator replaces the ephemeral port allocator
func WithPortAllocator(p PortAllocator) Option {
	return func(s *Supervisor) {
		s.ports = p
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(s *Supervisor) {
		s.logger = l
	}
}

// WithPollInterval bounds each wait on the control event queue
func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		s.pollInterval = d
	}
}

// WithDrainTimeout bounds how long StopPending waits for workers
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.drainTimeout = d
	}
}

// WithEventBuffer sets the control event queue capacity
func WithEventBuffer(n int) Option {
	return func(s *Supervisor) {
		s.eventBuffer = n
	}
}

// WithStateFile publishes worker snapshots to the file at path
func WithStateFile(path string) Option {
	return func(s *Supervisor) {
		if path == "" {
			s.stateFile = nil
			return
		}
		s.stateFile = &StateFile{Path: path}
	}
}

// WithConfigWatch enables a warning when the service table changes on disk
func WithConfigWatch(enabled bool, debounce time.Duration) Option {
	return func(s *Supervisor) {
		s.watchConfig = enabled
		s.watchDebounce = debounce
	}
}

// NewSupervisor creates a Supervisor with default settings
func NewSupervisor(host Host, registrar Registrar, opts ...Option) *Supervisor {
	s := &Supervisor{
		host:         host,
		registrar:    registrar,
		ports:        &TCPPortAllocator{Address: DefaultPortAddress},
		logger:       logging.NopLogger(),
		name:         DefaultServiceName,
		pollInterval: DefaultPollInterval,
		drainTimeout: DefaultDrainTimeout,
		eventBuffer:  DefaultEventBuffer,
		services:     make(map[string]*WorkerStatus),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	if s.drainTimeout <= 0 {
		s.drainTimeout = DefaultDrainTimeout
	}

	return s
}

// Run executes the whole lifecycle and returns once Stopped has been
// reported. Cancelling ctx is handled like a stop request from the host.
func (s *Supervisor) Run(ctx context.Context) error {
	bridge := NewBridge(s.eventBuffer)

	reporter, err := s.host.Register(s.name, s.controlHandler(bridge))
	if err != nil {
		return &OpError{Op: OpHostRegister, Err: err}
	}

	if err := s.transition(reporter, Status{State: StateStarting, WaitHint: startWaitHint}); err != nil {
		return err
	}

	table, err := LoadServiceTable(s.configPath)
	if err != nil {
		s.logger.Error("loading service table", "path", s.configPath, "error", err.Error())
		if rerr := s.transition(reporter, Status{State: StateStopped, ExitCode: exitCodeStartupFailure}); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	s.logger.Info("service table loaded", "path", s.configPath, "services", len(table))

	// Workers stop only when the Supervisor drains them, never because ctx was cancelled.
	sctx := stopper.WithContext(context.WithoutCancel(ctx))

	if err := s.spawnAll(sctx, table); err != nil {
		s.logger.Warn("some services were not started", "error", err.Error())
	}

	if s.watchConfig {
		w := &configWatcher{path: s.configPath, debounce: s.watchDebounce, logger: s.logger}
		if err := w.start(sctx); err != nil {
			s.logger.Warn("config watch unavailable", "error", err.Error())
		}
	}

	if err := s.transition(reporter, Status{State: StateRunning, Accepts: AcceptStop}); err != nil {
		s.drain(sctx)
		return err
	}

	s.waitForStop(ctx, bridge.Events())

	if err := s.transition(reporter, Status{State: StateStopPending, CheckPoint: 1, WaitHint: s.drainTimeout}); err != nil {
		s.drain(sctx)
		return err
	}

	s.drain(sctx)

	if s.stateFile != nil {
		if err := s.stateFile.Remove(); err != nil {
			s.logger.Warn("state file cleanup", "error", err.Error())
		}
	}

	return s.transition(reporter, Status{State: StateStopped})
}

// controlHandler wraps the bridge for the host; it runs on a host goroutine
func (s *Supervisor) controlHandler(b *Bridge) ControlHandler {
	return func(ev ControlEvent) HandlerResult {
		res := b.Handle(ev)
		s.logger.Debug("control request", "event", ev.String(), "result", res.String())
		return res
	}
}

// transition moves the state machine forward and reports the new state.
// States are only ever entered in order.
func (s *Supervisor) transition(reporter StatusReporter, st Status) error {
	s.mu.Lock()
	if s.reported && st.State <= s.state {
		current := s.state
		s.mu.Unlock()
		return &OpError{Op: OpReportStatus, Err: fmt.Errorf("invalid transition %s -> %s", current, st.State)}
	}
	s.state = st.State
	s.reported = true
	s.mu.Unlock()

	if err := reporter.SetStatus(st); err != nil {
		s.logger.Error("status report failed", "state", st.State.String(), "error", err.Error())
		return &OpError{Op: OpReportStatus, Err: err}
	}
	s.logger.Info("lifecycle state", "state", st.State.String())
	return nil
}

// spawnAll makes one spawn attempt per table entry in key order. Port
// failures skip only the affected service.
func (s *Supervisor) spawnAll(sctx *stopper.Context, table ServiceTable) error {
	merr := &MultiError{}

	for _, key := range table.Keys() {
		spec := table[key]
		log := s.logger.WithService(key)

		s.mu.Lock()
		s.attempts++
		s.order = append(s.order, key)
		s.services[key] = &WorkerStatus{Key: key, Type: spec.Type, Name: spec.Name, State: WorkerPending}
		s.mu.Unlock()

		ad, err := ResolvePort(spec, s.ports)
		if err != nil {
			log.Error("port allocation failed; service skipped", "error", err.Error())
			s.updateWorker(key, WorkerSkipped, err)
			merr.Add(err)
			continue
		}
		if spec.AutoPort() {
			log.Info("assigned ephemeral port", "port", ad.Port)
		}

		s.mu.Lock()
		s.services[key].Port = ad.Port
		s.mu.Unlock()
		s.persist()

		w := &worker{
			ad:        ad,
			registrar: s.registrar,
			logger:    log,
			report:    s.updateWorker,
		}
		sctx.Go(w.run)
	}

	return merr.Err()
}

// waitForStop blocks until a stop request arrives or ctx is done
func (s *Supervisor) waitForStop(ctx context.Context, events <-chan ControlEvent) {
	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				err := &OpError{Op: OpReceive, Err: errors.New("event queue closed")}
				s.logger.Error("control channel", "error", err.Error())
				events = nil
				break
			}
			if ev == ControlStop {
				s.logger.Info("stop requested")
				return
			}
			s.logger.Debug("ignoring control event", "event", ev.String())

		case <-ctx.Done():
			s.logger.Info("context done; stopping", "cause", context.Cause(ctx).Error())
			return

		case <-timer.C:
		}
		timer.Reset(s.pollInterval)
	}
}

// drain stops the worker context and waits, at most the drain timeout, for
// every worker to withdraw its advertisement.
func (s *Supervisor) drain(sctx *stopper.Context) {
	sctx.Stop(s.drainTimeout)

	done := make(chan error, 1)
	go func() {
		done <- sctx.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Warn("worker shutdown", "error", err.Error())
		}
	case <-time.After(s.drainTimeout):
		var pending []string
		for _, ws := range s.Snapshot() {
			if !ws.State.Done() {
				pending = append(pending, ws.Key)
			}
		}
		s.logger.Warn("workers did not stop within drain timeout", "timeout", s.drainTimeout.String(), "pending", pending)
	}
}

// updateWorker records a worker state change; it is called from worker goroutines
func (s *Supervisor) updateWorker(key string, state WorkerState, err error) {
	s.mu.Lock()
	if ws, ok := s.services[key]; ok {
		ws.State = state
		if err != nil {
			ws.Err = err
		}
	}
	s.mu.Unlock()

	s.persist()
}

// persist writes the current snapshot to the state file, if one is configured
func (s *Supervisor) persist() {
	if s.stateFile == nil {
		return
	}

	s.reportMu.Lock()
	defer s.reportMu.Unlock()

	if err := s.stateFile.Write(s.name, s.Snapshot()); err != nil {
		s.logger.Warn("state file update", "error", err.Error())
	}
}

// State returns the last lifecycle state entered
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns the number of spawn attempts made during startup
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Snapshot returns the status of every service in spawn order
func (s *Supervisor) Snapshot() []WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]WorkerStatus, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, *s.services[key])
	}
	return out
}
