package dnssd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const twoServiceConfig = `
[services.svcA]
name = "Service A"
type = "_http._tcp"
port = 0
text = { path = "/a" }

[services.svcB]
name = "Printer"
type = "_ipp._tcp"
port = 631
`

type SupervisorSuite struct {
	suite.Suite
	dir       string
	host      *fakeHost
	registrar *fakeRegistrar
}

func TestSupervisor(t *testing.T) {
	suite.Run(t, new(SupervisorSuite))
}

func (s *SupervisorSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.host = &fakeHost{}
	s.registrar = newFakeRegistrar()
}

func (s *SupervisorSuite) newSupervisor(config string, opts ...Option) *Supervisor {
	path := writeConfig(s.T(), s.dir, config)
	base := []Option{
		WithConfigPath(path),
		WithPollInterval(10 * time.Millisecond),
		WithDrainTimeout(500 * time.Millisecond),
	}
	return NewSupervisor(s.host, s.registrar, append(base, opts...)...)
}

// start runs sup in the background and waits until Running was reported
func (s *SupervisorSuite) start(ctx context.Context, sup *Supervisor) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- sup.Run(ctx)
	}()
	require.Eventually(s.T(), func() bool {
		return s.host.reached(StateRunning)
	}, 2*time.Second, 5*time.Millisecond, "Running was never reported")
	return done
}

func (s *SupervisorSuite) wait(done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		s.T().Fatal("supervisor did not return")
		return nil
	}
}

func (s *SupervisorSuite) TestTwoServiceScenario() {
	sup := s.newSupervisor(twoServiceConfig, WithPortAllocator(&TCPPortAllocator{}))
	done := s.start(context.Background(), sup)

	require.Eventually(s.T(), func() bool {
		return s.registrar.count() == 2
	}, 2*time.Second, 5*time.Millisecond)

	s.Equal(2, sup.Attempts())

	a := s.registrar.registration("svcA")
	b := s.registrar.registration("svcB")
	s.Require().NotNil(a)
	s.Require().NotNil(b)
	s.NotZero(a.ad.Port)
	s.Equal("_http._tcp", a.ad.Type)
	s.Equal(map[string]string{"path": "/a"}, a.ad.Text)
	s.Equal(uint16(631), b.ad.Port)
	s.Equal("Printer", b.ad.Name)

	s.Equal(Handled, s.host.send(ControlStop))
	s.Require().NoError(s.wait(done))

	s.Equal([]State{StateStarting, StateRunning, StateStopPending, StateStopped}, s.host.states())
	s.True(a.shutdown.Load(), "svcA advertisement was not withdrawn")
	s.True(b.shutdown.Load(), "svcB advertisement was not withdrawn")
	s.Equal(DefaultServiceName, s.host.name)
	s.True(s.host.registered())

	running := 0
	for _, st := range s.host.reports() {
		if st.State == StateRunning {
			running++
			s.Equal(AcceptStop, st.Accepts)
		}
		if st.State == StateStopPending {
			s.Zero(st.Accepts)
		}
	}
	s.Equal(1, running)

	for _, ws := range sup.Snapshot() {
		s.Equal(WorkerStopped, ws.State, ws.Key)
	}
	s.Equal(StateStopped, sup.State())
}

func (s *SupervisorSuite) TestMalformedConfigAbortsStartup() {
	sup := s.newSupervisor(`
[services.svcB]
name = "Printer"
type = "_ipp._tcp"
port = "631"
`)

	err := sup.Run(context.Background())
	s.Require().Error(err)
	s.ErrorIs(err, ErrConfig)

	s.Equal([]State{StateStarting, StateStopped}, s.host.states())
	reports := s.host.reports()
	s.Equal(uint32(exitCodeStartupFailure), reports[len(reports)-1].ExitCode)
	s.Zero(sup.Attempts())
	s.Zero(s.registrar.count())
}

func (s *SupervisorSuite) TestMissingConfigFile() {
	sup := NewSupervisor(s.host, s.registrar, WithConfigPath(filepath.Join(s.dir, "absent.toml")))

	err := sup.Run(context.Background())
	s.ErrorIs(err, ErrConfig)
	s.NotContains(s.host.states(), StateRunning)
}

func (s *SupervisorSuite) TestPortFailureIsolation() {
	alloc := &fakeAllocator{failCalls: map[int]bool{1: true}}
	sup := s.newSupervisor(`
[services.alpha]
name = "Alpha"
type = "_http._tcp"
port = 0

[services.beta]
name = "Beta"
type = "_http._tcp"
port = 0

[services.gamma]
name = "Gamma"
type = "_ssh._tcp"
port = 22
`, WithPortAllocator(alloc))

	done := s.start(context.Background(), sup)
	require.Eventually(s.T(), func() bool {
		return s.registrar.count() == 2
	}, 2*time.Second, 5*time.Millisecond)

	s.Equal(3, sup.Attempts())
	s.Nil(s.registrar.registration("alpha"))
	s.Equal(uint16(40001), s.registrar.registration("beta").ad.Port)
	s.Equal(uint16(22), s.registrar.registration("gamma").ad.Port)

	snap := sup.Snapshot()
	s.Require().Len(snap, 3)
	s.Equal("alpha", snap[0].Key)
	s.Equal(WorkerSkipped, snap[0].State)
	s.ErrorIs(snap[0].Err, ErrPortAllocation)

	s.host.send(ControlStop)
	s.Require().NoError(s.wait(done))
}

func (s *SupervisorSuite) TestRegistrationFailureIsolation() {
	s.registrar.fail["broken"] = true
	s.registrar.panics["crashy"] = true

	sup := s.newSupervisor(`
[services.broken]
name = "Broken"
type = "_http._tcp"
port = 8080

[services.crashy]
name = "Crashy"
type = "_http._tcp"
port = 8081

[services.healthy]
name = "Healthy"
type = "_http._tcp"
port = 8082
`)

	done := s.start(context.Background(), sup)

	require.Eventually(s.T(), func() bool {
		for _, ws := range sup.Snapshot() {
			if ws.State == WorkerPending {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	byKey := map[string]WorkerStatus{}
	for _, ws := range sup.Snapshot() {
		byKey[ws.Key] = ws
	}
	s.Equal(WorkerFailed, byKey["broken"].State)
	s.ErrorIs(byKey["broken"].Err, ErrRegistration)
	s.Equal(WorkerFailed, byKey["crashy"].State)
	s.ErrorIs(byKey["crashy"].Err, ErrRegistration)
	s.Equal(WorkerRegistered, byKey["healthy"].State)

	s.host.send(ControlStop)
	s.Require().NoError(s.wait(done))
	s.Equal([]State{StateStarting, StateRunning, StateStopPending, StateStopped}, s.host.states())
}

func (s *SupervisorSuite) TestInterrogateAndOtherEventsDoNotTransition() {
	sup := s.newSupervisor(twoServiceConfig, WithPortAllocator(&fakeAllocator{}))
	done := s.start(context.Background(), sup)

	s.Equal(Handled, s.host.send(ControlInterrogate))
	s.Equal(NotImplemented, s.host.send(ControlOther))

	time.Sleep(50 * time.Millisecond)
	s.Equal(StateRunning, sup.State())
	s.Equal([]State{StateStarting, StateRunning}, s.host.states())

	s.host.send(ControlStop)
	s.Require().NoError(s.wait(done))
}

func (s *SupervisorSuite) TestContextCancelStops() {
	ctx, cancel := context.WithCancel(context.Background())
	sup := s.newSupervisor(twoServiceConfig, WithPortAllocator(&fakeAllocator{}))
	done := s.start(ctx, sup)

	cancel()
	s.Require().NoError(s.wait(done))
	s.Equal([]State{StateStarting, StateRunning, StateStopPending, StateStopped}, s.host.states())
}

func (s *SupervisorSuite) TestStatusReportFailureIsFatal() {
	s.host.failState = StateRunning
	s.host.failErr = errors.New("scm handle closed")

	sup := s.newSupervisor(twoServiceConfig, WithPortAllocator(&fakeAllocator{}))
	err := sup.Run(context.Background())

	s.Require().Error(err)
	s.ErrorIs(err, ErrHostStatus)
	s.NotContains(s.host.states(), StateStopped)

	for _, key := range []string{"svcA", "svcB"} {
		if reg := s.registrar.registration(key); reg != nil {
			s.True(reg.shutdown.Load(), "%s not withdrawn after fatal report error", key)
		}
	}
}

func (s *SupervisorSuite) TestHostRegisterFailure() {
	s.host.registerErr = errors.New("not started by the service control manager")
	sup := s.newSupervisor(twoServiceConfig)

	err := sup.Run(context.Background())
	s.ErrorIs(err, ErrHostStatus)
	s.False(s.host.registered())
	s.Empty(s.host.states())
}

func (s *SupervisorSuite) TestDrainIsBounded() {
	s.registrar.block = make(chan struct{})
	defer close(s.registrar.block)

	sup := s.newSupervisor(twoServiceConfig,
		WithPortAllocator(&fakeAllocator{}),
		WithDrainTimeout(100*time.Millisecond),
	)
	done := s.start(context.Background(), sup)
	require.Eventually(s.T(), func() bool {
		return s.registrar.count() == 2
	}, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	s.host.send(ControlStop)
	s.Require().NoError(s.wait(done))
	s.Less(time.Since(start), time.Second)
	s.Equal(StateStopped, sup.State())
}

func (s *SupervisorSuite) TestStateFile() {
	statePath := filepath.Join(s.dir, "run", "state.json")
	sup := s.newSupervisor(twoServiceConfig,
		WithPortAllocator(&fakeAllocator{}),
		WithStateFile(statePath),
	)
	done := s.start(context.Background(), sup)

	require.Eventually(s.T(), func() bool {
		records, err := ReadStateFile(statePath)
		if err != nil || len(records) != 2 {
			return false
		}
		for _, rec := range records {
			if rec.State != "registered" {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	records, err := ReadStateFile(statePath)
	s.Require().NoError(err)
	s.Equal("svcA", records[0].Key)
	s.Equal(uint16(40001), records[0].Port)
	s.Equal(uint16(631), records[1].Port)

	s.host.send(ControlStop)
	s.Require().NoError(s.wait(done))

	_, err = os.Stat(statePath)
	s.True(os.IsNotExist(err), "state file should be removed on stop")
}

func (s *SupervisorSuite) TestCustomServiceName() {
	sup := s.newSupervisor(`[services]`, WithServiceName("printers"))
	done := s.start(context.Background(), sup)

	s.Equal("printers", s.host.name)
	s.Zero(sup.Attempts())

	s.host.send(ControlStop)
	s.Require().NoError(s.wait(done))
}

func TestSupervisorDefaults(t *testing.T) {
	sup := NewSupervisor(&fakeHost{}, newFakeRegistrar(), WithPollInterval(-1), WithDrainTimeout(0))

	assert.Equal(t, DefaultPollInterval, sup.pollInterval)
	assert.Equal(t, DefaultDrainTimeout, sup.drainTimeout)
	assert.Equal(t, DefaultServiceName, sup.name)
	assert.Nil(t, sup.stateFile)
	assert.IsType(t, &TCPPortAllocator{}, sup.ports)
}

func TestTransitionRejectsOutOfOrder(t *testing.T) {
	host := &fakeHost{}
	sup := NewSupervisor(host, newFakeRegistrar())

	require.NoError(t, sup.transition(host, Status{State: StateStarting}))
	require.NoError(t, sup.transition(host, Status{State: StateRunning}))

	err := sup.transition(host, Status{State: StateStarting})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHostStatus)
	assert.Equal(t, StateRunning, sup.State())
	assert.Len(t, host.reports(), 2)
}
