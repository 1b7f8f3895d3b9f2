// Package imap authenticates IMAP sessions through the SASL bridge.
//
// It dials the server (plain, implicit TLS or STARTTLS), reads the AUTH=
// capabilities and runs the AUTHENTICATE exchange with a client.Client
// choosing among the advertised mechanisms. Transient connection failures
// are retried with backoff and a circuit breaker stops repeated attempts
// against a failing server.
package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	imapclient "github.com/emersion/go-imap/client"

	"github.com/smnsjas/go-sasl2/client"
)

// DefaultService is the SASL service name registered for IMAP.
const DefaultService = "imap"

// ErrNoMechanisms is returned when the server advertises no AUTH= capability.
var ErrNoMechanisms = errors.New("imap: server advertises no SASL mechanisms")

// Config configures a Dialer.
type Config struct {
	// Addr is the server address in host:port form.
	Addr string

	// TLS dials with implicit TLS (port 993 style).
	TLS bool

	// StartTLS upgrades a plain connection before authenticating.
	StartTLS bool

	// TLSConfig is used for TLS and StartTLS. ServerName defaults to the
	// host part of Addr.
	TLSConfig *tls.Config

	// Timeout bounds the TCP dial and each IMAP command.
	Timeout time.Duration

	// Retry configures retries of transient failures. nil disables retry.
	Retry *RetryPolicy

	// Breaker configures the circuit breaker. nil disables it.
	Breaker *CircuitBreakerPolicy

	// Logger receives debug records. nil discards them.
	Logger *slog.Logger
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("invalid addr %q: %w", c.Addr, err)
	}
	if c.TLS && c.StartTLS {
		return errors.New("TLS and StartTLS are mutually exclusive")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

// Dialer opens and authenticates IMAP sessions.
type Dialer struct {
	cfg     Config
	host    string
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// NewDialer validates cfg and returns a Dialer.
func NewDialer(cfg Config) (*Dialer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("imap: invalid config: %w", err)
	}
	host, _, _ := net.SplitHostPort(cfg.Addr)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dialer{
		cfg:     cfg,
		host:    host,
		breaker: NewCircuitBreaker(cfg.Breaker),
		logger:  logger.With("addr", cfg.Addr),
	}, nil
}

// BreakerState returns the state of the dialer's circuit breaker.
func (d *Dialer) BreakerState() CircuitState {
	return d.breaker.State()
}

// Session is a connected IMAP client together with its transport addresses.
type Session struct {
	*imapclient.Client

	// Mechanism is the SASL mechanism used, once authenticated.
	Mechanism string

	local  net.Addr
	remote net.Addr
	host   string
}

// Dial connects to the server and performs the TLS setup without
// authenticating.
func (d *Dialer) Dial(ctx context.Context) (*Session, error) {
	nd := &net.Dialer{Timeout: d.cfg.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", d.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("imap: dial: %w", err)
	}
	if d.cfg.TLS {
		tc := tls.Client(conn, d.tlsConfig())
		if err := tc.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("imap: tls handshake: %w", err)
		}
		conn = tc
	}

	c, err := imapclient.New(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("imap: greeting: %w", err)
	}
	c.Timeout = d.cfg.Timeout

	if d.cfg.StartTLS {
		if err := c.StartTLS(d.tlsConfig()); err != nil {
			_ = c.Logout()
			return nil, fmt.Errorf("imap: starttls: %w", err)
		}
	}
	d.logger.Debug("imap connected", "tls", d.cfg.TLS, "starttls", d.cfg.StartTLS)
	return &Session{
		Client: c,
		local:  conn.LocalAddr(),
		remote: conn.RemoteAddr(),
		host:   d.host,
	}, nil
}

func (d *Dialer) tlsConfig() *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if d.cfg.TLSConfig != nil {
		cfg = d.cfg.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = d.host
	}
	return cfg
}

// Login dials and authenticates, retrying transient failures according to
// the retry policy. Every attempt passes through the circuit breaker.
func (d *Dialer) Login(ctx context.Context, lib *client.Library, params client.Params) (*Session, error) {
	attempts := 1
	if d.cfg.Retry != nil && d.cfg.Retry.MaxAttempts > 1 {
		attempts = d.cfg.Retry.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		var s *Session
		lastErr = d.breaker.Execute(func() error {
			var err error
			s, err = d.loginOnce(ctx, lib, params)
			return err
		})
		if lastErr == nil {
			return s, nil
		}
		if attempt == attempts || !isRetryableError(lastErr) {
			break
		}
		backoff := calculateRetryBackoff(attempt, d.cfg.Retry)
		d.logger.Debug("imap login failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", lastErr)
		if err := sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (d *Dialer) loginOnce(ctx context.Context, lib *client.Library, params client.Params) (*Session, error) {
	s, err := d.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Authenticate(ctx, lib, params); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Mechanisms returns the SASL mechanisms the server advertises, sorted.
func (s *Session) Mechanisms() ([]string, error) {
	caps, err := s.Capability()
	if err != nil {
		return nil, fmt.Errorf("imap: capability: %w", err)
	}
	var mechs []string
	for capability, ok := range caps {
		if !ok || len(capability) <= len("AUTH=") {
			continue
		}
		if strings.EqualFold(capability[:len("AUTH=")], "AUTH=") {
			mechs = append(mechs, strings.ToUpper(capability[len("AUTH="):]))
		}
	}
	sort.Strings(mechs)
	return mechs, nil
}

// Authenticate runs AUTHENTICATE with a new bridge client. Empty Service,
// ServerFQDN, LocalAddr and RemoteAddr in params are filled from the session.
func (s *Session) Authenticate(ctx context.Context, lib *client.Library, params client.Params) error {
	mechs, err := s.Mechanisms()
	if err != nil {
		return err
	}
	if len(mechs) == 0 {
		return ErrNoMechanisms
	}

	sc, err := lib.NewClient(s.fill(params))
	if err != nil {
		return err
	}
	defer sc.Close()

	if err := s.Client.Authenticate(sc.SASLClient(ctx, mechs)); err != nil {
		return fmt.Errorf("imap: authenticate: %w", err)
	}
	s.Mechanism = sc.Mechanism()
	return nil
}

func (s *Session) fill(p client.Params) client.Params {
	if p.Service == "" {
		p.Service = DefaultService
	}
	if p.ServerFQDN == "" {
		p.ServerFQDN = s.host
	}
	if p.LocalAddr == "" {
		p.LocalAddr = client.IPPort(s.local)
	}
	if p.RemoteAddr == "" {
		p.RemoteAddr = client.IPPort(s.remote)
	}
	return p
}

// Close logs out, closing the connection.
func (s *Session) Close() error {
	return s.Logout()
}
