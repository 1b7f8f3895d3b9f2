// Package sasl2 provides a SASL client that drives a native authentication
// engine (Cyrus libsasl2, or a pure Go engine with the same ABI) from Go.
//
// The engine calls back into Go for credentials and log output. This module
// owns the callback tables and the memory it hands to the engine, so
// secrets are zeroed as soon as they are replaced or the session is closed.
//
// # Architecture
//
// The library is organized into layers:
//
//	┌─────────────────────────────────────────────────────────┐
//	│  transport/    IMAP (go-imap) and Kafka (kafka-go)      │
//	├─────────────────────────────────────────────────────────┤
//	│  client/       Library init, Client negotiation API     │
//	├─────────────────────────────────────────────────────────┤
//	│  native/       ABI: statuses, callback tables, memory   │
//	├──────────────────────────┬──────────────────────────────┤
//	│  native/libsasl2         │  native/goengine             │
//	│  dlopen'd libsasl2       │  SCRAM, NTLM, GSSAPI, PLAIN  │
//	└──────────────────────────┴──────────────────────────────┘
//
// # Quick Start
//
//	lib, err := client.Init(client.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c, err := lib.NewClient(client.Params{
//	    Service:    "imap",
//	    ServerFQDN: "mail.example.com",
//	    Authname:   client.Static("alice"),
//	    Pass:       client.Static(os.Getenv("SASL_PASSWORD")),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	mech, out, more, err := c.Start(ctx, []string{"SCRAM-SHA-256", "PLAIN"})
package sasl2
