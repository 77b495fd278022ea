package dnssd

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"slices"
)

// PortAllocator obtains a free local TCP port
type PortAllocator interface {
	Allocate() (uint16, error)
}

// TCPPortAllocator probes the OS for an ephemeral port by binding and
// immediately releasing a listener. Another process may claim the port
// before the advertised service binds it.
type TCPPortAllocator struct {
	// Address is the listen address; it must carry port 0
	Address string
}

// Allocate returns an OS-assigned port
func (a *TCPPortAllocator) Allocate() (uint16, error) {
	addr := a.Address
	if addr == "" {
		addr = DefaultPortAddress
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, err
	}

	tcpAddr, ok := l.Addr().(*net.TCPAddr)
	closeErr := l.Close()
	if !ok {
		return 0, fmt.Errorf("unexpected listener address %v", l.Addr())
	}
	if closeErr != nil {
		return 0, closeErr
	}

	return uint16(tcpAddr.Port), nil
}

// Advertisement is a ServiceSpec with its port resolved
type Advertisement struct {
	// Key is the service table key
	Key string
	// Type is the DNS-SD service type
	Type string
	// Name is the advertised instance name
	Name string
	// Port is the concrete port, always in 1..65535
	Port uint16
	// Text holds the TXT record attributes
	Text map[string]string
}

// TXT renders the attributes as sorted key=value records
func (a Advertisement) TXT() []string {
	records := make([]string, 0, len(a.Text))
	for _, k := range slices.Sorted(maps.Keys(a.Text)) {
		records = append(records, k+"="+a.Text[k])
	}
	return records
}

// ResolvePort turns a ServiceSpec into an Advertisement, allocating a port
// when the entry asks for one. The ServiceSpec itself is left untouched.
func ResolvePort(spec ServiceSpec, alloc PortAllocator) (Advertisement, error) {
	port := spec.Port
	if spec.AutoPort() {
		if alloc == nil {
			return Advertisement{}, &OpError{Op: OpAllocatePort, Service: spec.Key, Err: errors.New("no port allocator")}
		}
		p, err := alloc.Allocate()
		if err != nil {
			return Advertisement{}, &OpError{Op: OpAllocatePort, Service: spec.Key, Err: err}
		}
		if p == 0 {
			return Advertisement{}, &OpError{Op: OpAllocatePort, Service: spec.Key, Err: fmt.Errorf("%w: allocator returned 0", ErrPortRange)}
		}
		port = p
	}

	return Advertisement{
		Key:  spec.Key,
		Type: spec.Type,
		Name: spec.Name,
		Port: port,
		Text: maps.Clone(spec.Text),
	}, nil
}
