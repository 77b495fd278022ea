package dnssd

import (
	"context"
	"net"

	"github.com/grandcat/zeroconf"
)

// Registration is one live advertisement
type Registration interface {
	// Shutdown withdraws the advertisement and releases its resources
	Shutdown()
}

// Registrar publishes advertisements. Register may block; it is only ever
// called from a worker goroutine.
type Registrar interface {
	Register(ctx context.Context, ad Advertisement) (Registration, error)
}

// ZeroconfRegistrar publishes advertisements with the built-in mDNS
// responder from github.com/grandcat/zeroconf.
type ZeroconfRegistrar struct {
	// Domain is the mDNS domain, DefaultDomain when empty
	Domain string

	// Interfaces restricts announcements to these interfaces; nil means all
	Interfaces []net.Interface
}

// Register announces ad and returns the running responder
func (z *ZeroconfRegistrar) Register(ctx context.Context, ad Advertisement) (Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	domain := z.Domain
	if domain == "" {
		domain = DefaultDomain
	}

	server, err := zeroconf.Register(ad.Name, ad.Type, domain, int(ad.Port), ad.TXT(), z.Interfaces)
	if err != nil {
		return nil, err
	}
	return server, nil
}
