// Package goengine is a pure Go implementation of the SASL client C ABI
// described by package native.
//
// It behaves like libsasl2 from the caller's point of view: callback tables
// are read from native memory on every lookup, credentials are requested
// through the registered function pointers, password callbacks return
// sasl_secret_t structs, and output buffers belong to the connection until
// the next call on it. It is used when libsasl2 is not installed and by the
// tests of the bridge.
//
// # Mechanisms
//
//   - PLAIN, LOGIN, ANONYMOUS, EXTERNAL (github.com/emersion/go-sasl)
//   - CRAM-MD5
//   - SCRAM-SHA-1, SCRAM-SHA-256, SCRAM-SHA-512 (github.com/xdg-go/scram)
//   - NTLM (github.com/Azure/go-ntlmssp)
//   - GSSAPI (github.com/jcmturner/gokrb5/v8), only when configured with WithKerberos
package goengine
