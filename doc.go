// Package dnssd runs a set of DNS-SD (mDNS) advertisements as a long-lived
// background service controlled by the host service manager.
//
// The service table is a TOML document with one table per advertisement:
//
//	[services.web]
//	name = "My Web Server"
//	type = "_http._tcp"
//	port = 0 # pick a free port
//	text = { path = "/" }
//
// The Supervisor loads the table once, starts one registration worker per
// entry and then follows the host's control requests:
//
//	sup := dnssd.NewSupervisor(dnssd.DefaultHost(logger), &dnssd.ZeroconfRegistrar{},
//	    dnssd.WithConfigPath(path),
//	    dnssd.WithLogger(logger),
//	)
//	if err := sup.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Lifecycle
//
// The Supervisor reports Starting, Running, StopPending and Stopped, in that
// order and never out of it. A Stop request moves it to StopPending, where
// every worker withdraws its advertisement within the drain timeout before
// Stopped is reported.
//
// Per-service failures (port allocation, registration) are logged and
// recorded in the Supervisor's snapshot; they never stop sibling services and
// are never reported to the host. Config errors and status report errors are
// fatal.
package dnssd
