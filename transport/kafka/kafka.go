// Package kafka plugs the SASL bridge into github.com/segmentio/kafka-go.
//
// Kafka announces the mechanism in a handshake before any SASL bytes are
// exchanged, so a Mechanism is bound to one mechanism name. Each Start
// creates a fresh client.Client for the connection being authenticated.
package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"

	"github.com/smnsjas/go-sasl2/client"
)

// DefaultService is the SASL service name used for brokers.
const DefaultService = "kafka"

// ErrNoMechanism is returned by New when the mechanism name is empty.
var ErrNoMechanism = errors.New("kafka: mechanism name is required")

// ErrHandshakeAbandoned is returned by a state machine whose Start context
// ended before the exchange finished.
var ErrHandshakeAbandoned = errors.New("kafka: sasl handshake abandoned")

// Mechanism is a kafka-go sasl.Mechanism backed by the bridge.
// It is safe for concurrent use; every Start has its own state machine.
//
// The client created by Start is closed when the exchange finishes or fails,
// or when the context passed to Start ends. A handshake that kafka-go drops
// under a context that never ends is released by the client's finalizer.
type Mechanism struct {
	lib    *client.Library
	name   string
	params client.Params
}

var _ sasl.Mechanism = Mechanism{}

// New returns a Mechanism negotiating name (e.g. "SCRAM-SHA-512" or
// "GSSAPI") with the credentials in params. An empty Service defaults to
// DefaultService.
func New(lib *client.Library, name string, params client.Params) (Mechanism, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return Mechanism{}, ErrNoMechanism
	}
	if params.Service == "" {
		params.Service = DefaultService
	}
	return Mechanism{lib: lib, name: name, params: params}, nil
}

// Name returns the mechanism announced in the handshake.
func (m Mechanism) Name() string {
	return m.name
}

// WithHost returns a copy that reports host as the server FQDN.
func (m Mechanism) WithHost(host string) sasl.Mechanism {
	m.params.ServerFQDN = host
	return m
}

// Params returns the parameters used for new clients.
func (m Mechanism) Params() client.Params {
	return m.params
}

// Start creates a client and produces the initial response.
func (m Mechanism) Start(ctx context.Context) (sasl.StateMachine, []byte, error) {
	c, err := m.lib.NewClient(m.params)
	if err != nil {
		return nil, nil, err
	}
	_, ir, _, err := c.Start(ctx, []string{m.name})
	if err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	sm := &stateMachine{c: c}
	sm.stop = context.AfterFunc(ctx, sm.abandon)
	return sm, ir, nil
}

// stateMachine drives one handshake. kafka-go stops sending once Next
// reports done, so a final token produced together with success is sent
// first and done is reported on the following call.
type stateMachine struct {
	mu   sync.Mutex
	c    *client.Client
	stop func() bool
}

func (s *stateMachine) Next(ctx context.Context, challenge []byte) (bool, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.c.State() {
	case client.StateDisposed:
		return false, nil, ErrHandshakeAbandoned
	case client.StateSucceeded:
		return true, nil, s.finish()
	}
	out, more, err := s.c.Step(ctx, challenge)
	if err != nil {
		_ = s.finish()
		return false, nil, err
	}
	if !more && len(out) == 0 {
		return true, nil, s.finish()
	}
	return false, out, nil
}

// finish closes the client. Callers hold s.mu.
func (s *stateMachine) finish() error {
	s.stop()
	return s.c.Close()
}

func (s *stateMachine) abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.c.Close()
}

func (s *stateMachine) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.State() == client.StateDisposed
}

// Dialer returns a kafka-go Dialer authenticating with m.
func Dialer(m sasl.Mechanism, tlsConfig *tls.Config, timeout time.Duration) *kafkago.Dialer {
	return &kafkago.Dialer{
		Timeout:       timeout,
		DualStack:     true,
		TLS:           tlsConfig,
		SASLMechanism: m,
	}
}

// Transport returns a kafka-go Transport for writers and admin clients.
func Transport(m sasl.Mechanism, tlsConfig *tls.Config) *kafkago.Transport {
	return &kafkago.Transport{
		TLS:  tlsConfig,
		SASL: m,
	}
}
