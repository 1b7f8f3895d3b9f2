// Package client drives SASL client negotiations through a native SASL
// engine (libsasl2, or the pure Go engine when libsasl2 is not installed).
//
// A process initializes the engine once with [Init] (or [Instance]) and then
// creates one [Client] per authentication attempt. Credentials are supplied
// lazily through [Provider] functions that the engine calls back while a
// negotiation step is in progress.
//
// # Quick Start
//
//	lib, err := client.Instance()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c, err := lib.NewClient(client.Params{
//	    Service:    "imap",
//	    ServerFQDN: "mail.example.com",
//	    Authname:   client.Static("alice"),
//	    Pass:       client.Static("secret"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	mech, out, more, err := c.Start(ctx, []string{"SCRAM-SHA-256", "PLAIN"})
//	for err == nil && more {
//	    // send out to the server, read its challenge into in
//	    out, more, err = c.Step(ctx, in)
//	}
//
// # Callbacks
//
// Providers run on the goroutine that called Start or Step, re-entrantly
// from inside the engine. Errors and panics raised by a provider never reach
// the engine: they are reported to [Config.OnFault] and the engine sees no
// value. Return [ErrNoValue] to signal absence without a fault.
//
// Password buffers handed to the engine are zeroed and released on the next
// password request for the same client, or when the client is closed.
package client
