package client

import (
	"fmt"
	"log/slog"
	"net"
)

// Provider returns a credential on demand. It is called from inside Start or
// Step, possibly more than once per negotiation.
type Provider func() (string, error)

// Static returns a Provider that always yields v.
func Static(v string) Provider {
	return func() (string, error) { return v, nil }
}

// Params configures one Client. Nil providers register no callback.
type Params struct {
	// Service is the registered SASL service name, e.g. "imap" or "kafka".
	Service string

	// ServerFQDN is the fully qualified host name of the server.
	ServerFQDN string

	// LocalAddr and RemoteAddr are "ip;port" strings, or empty.
	LocalAddr  string
	RemoteAddr string

	// Flags is a combination of native.Flag* values.
	Flags uint32

	// Authname supplies the authentication identity.
	Authname Provider

	// User supplies the authorization identity.
	User Provider

	// Pass supplies the password.
	Pass Provider
}

// String returns service/server.
func (p Params) String() string {
	if p.ServerFQDN == "" {
		return p.Service
	}
	return p.Service + "/" + p.ServerFQDN
}

// LogValue renders the parameters without calling any provider.
func (p Params) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("service", p.Service),
		slog.String("server", p.ServerFQDN),
		slog.String("local", p.LocalAddr),
		slog.String("remote", p.RemoteAddr),
		slog.String("flags", fmt.Sprintf("0x%x", p.Flags)),
		slog.Bool("has_authname", p.Authname != nil),
		slog.Bool("has_user", p.User != nil),
		slog.Bool("has_pass", p.Pass != nil),
	)
}

// IPPort converts a "host:port" address, as returned by net.Conn, into the
// "host;port" form the engine expects.
func IPPort(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return ""
	}
	return host + ";" + port
}
