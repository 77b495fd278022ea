package dnssd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/renameio/v2/maybe"
)

// writeConfig writes a service table into dir and returns its path
func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, ConfigFileName)
	if err := maybe.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// fakeHost records every status report and exposes the installed handler
type fakeHost struct {
	mu          sync.Mutex
	handler     ControlHandler
	name        string
	statuses    []Status
	registerErr error
	failState   State
	failErr     error
}

func (h *fakeHost) Register(name string, handler ControlHandler) (StatusReporter, error) {
	if h.registerErr != nil {
		return nil, h.registerErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.name = name
	h.handler = handler
	return h, nil
}

func (h *fakeHost) SetStatus(st Status) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, st)
	if h.failErr != nil && st.State == h.failState {
		return h.failErr
	}
	return nil
}

func (h *fakeHost) send(ev ControlEvent) HandlerResult {
	h.mu.Lock()
	handler := h.handler
	h.mu.Unlock()
	return handler(ev)
}

func (h *fakeHost) registered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handler != nil
}

func (h *fakeHost) states() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]State, 0, len(h.statuses))
	for _, st := range h.statuses {
		out = append(out, st.State)
	}
	return out
}

func (h *fakeHost) reports() []Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Status(nil), h.statuses...)
}

func (h *fakeHost) reached(state State) bool {
	for _, s := range h.states() {
		if s == state {
			return true
		}
	}
	return false
}

// fakeRegistration tracks whether its advertisement was withdrawn
type fakeRegistration struct {
	ad       Advertisement
	shutdown atomic.Bool
	block    chan struct{}
}

func (r *fakeRegistration) Shutdown() {
	if r.block != nil {
		<-r.block
	}
	r.shutdown.Store(true)
}

// fakeRegistrar records registrations; keys in fail return an error and
// keys in panics panic
type fakeRegistrar struct {
	mu     sync.Mutex
	regs   map[string]*fakeRegistration
	fail   map[string]bool
	panics map[string]bool
	block  chan struct{}
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{
		regs:   make(map[string]*fakeRegistration),
		fail:   make(map[string]bool),
		panics: make(map[string]bool),
	}
}

func (f *fakeRegistrar) Register(_ context.Context, ad Advertisement) (Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics[ad.Key] {
		panic("mdns responder exploded")
	}
	if f.fail[ad.Key] {
		return nil, errors.New("no multicast interface")
	}
	reg := &fakeRegistration{ad: ad, block: f.block}
	f.regs[ad.Key] = reg
	return reg, nil
}

func (f *fakeRegistrar) registration(key string) *fakeRegistration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[key]
}

func (f *fakeRegistrar) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.regs)
}

// fakeAllocator hands out ports in sequence and fails the calls listed in failCalls (1-based)
type fakeAllocator struct {
	mu        sync.Mutex
	next      uint16
	calls     int
	failCalls map[int]bool
}

func (a *fakeAllocator) Allocate() (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.failCalls[a.calls] {
		return 0, errors.New("address already in use")
	}
	a.next++
	return 40000 + a.next, nil
}
