package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/smnsjas/go-sasl2/transport/imap"
	saslkafka "github.com/smnsjas/go-sasl2/transport/kafka"
)

// commandContext is cancelled on interrupt or after timeout.
func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

func tlsConfig(enabled, insecure bool) *tls.Config {
	if !enabled {
		return nil
	}
	// #nosec G402 -- InsecureSkipVerify is opt-in via --insecure
	return &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecure}
}

// MechsCmd lists usable mechanisms.
type MechsCmd struct {
	Credentials `embed:""`

	Service string `help:"SASL service name." default:"imap"`
	Server  string `help:"Server host name." default:"localhost"`
}

// Run implements the mechs command.
func (m *MechsCmd) Run(g *Globals, logger *slog.Logger) error {
	lib, err := g.library(logger)
	if err != nil {
		return err
	}
	c, err := lib.NewClient(m.params(m.Service, m.Server, nil))
	if err != nil {
		return err
	}
	defer c.Close()

	mechs, err := c.ListMechanisms()
	if err != nil {
		return err
	}
	for _, mech := range mechs {
		fmt.Println(mech)
	}
	return nil
}

// IMAPCmd authenticates to an IMAP server.
type IMAPCmd struct {
	Credentials `embed:""`

	Addr     string        `arg:"" help:"Server address (host:port)."`
	TLS      bool          `help:"Use implicit TLS." name:"tls"`
	StartTLS bool          `help:"Upgrade with STARTTLS before authenticating." name:"starttls"`
	Insecure bool          `help:"Skip TLS certificate verification."`
	Service  string        `help:"SASL service name." default:"imap"`
	Timeout  time.Duration `help:"Overall timeout." default:"30s"`
	Retries  int           `help:"Attempts for transient connection failures." default:"3"`
}

// Run implements the imap command.
func (m *IMAPCmd) Run(g *Globals, logger *slog.Logger) error {
	lib, err := g.library(logger)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(m.Timeout)
	defer cancel()

	retry := imap.DefaultRetryPolicy()
	retry.MaxAttempts = m.Retries
	d, err := imap.NewDialer(imap.Config{
		Addr:      m.Addr,
		TLS:       m.TLS,
		StartTLS:  m.StartTLS,
		TLSConfig: tlsConfig(m.TLS || m.StartTLS, m.Insecure),
		Timeout:   m.Timeout,
		Retry:     retry,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	s, err := d.Login(ctx, lib, m.params(m.Service, "", terminalPrompt))
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("authenticated to %s using %s\n", m.Addr, s.Mechanism)
	return nil
}

// KafkaCmd authenticates to a Kafka broker.
type KafkaCmd struct {
	Credentials `embed:""`

	Broker    string        `help:"Broker address (host:port)." required:""`
	Mechanism string        `help:"SASL mechanism announced to the broker." default:"SCRAM-SHA-512"`
	TLS       bool          `help:"Use TLS." name:"tls"`
	Insecure  bool          `help:"Skip TLS certificate verification."`
	Service   string        `help:"SASL service name." default:"kafka"`
	Timeout   time.Duration `help:"Overall timeout." default:"30s"`
}

// Run implements the kafka command.
func (k *KafkaCmd) Run(g *Globals, logger *slog.Logger) error {
	if _, _, err := net.SplitHostPort(k.Broker); err != nil {
		return fmt.Errorf("invalid broker %q: %w", k.Broker, err)
	}
	lib, err := g.library(logger)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(k.Timeout)
	defer cancel()

	mech, err := saslkafka.New(lib, k.Mechanism, k.params(k.Service, "", terminalPrompt))
	if err != nil {
		return err
	}
	conn, err := saslkafka.Dialer(mech, tlsConfig(k.TLS, k.Insecure), k.Timeout).DialContext(ctx, "tcp", k.Broker)
	if err != nil {
		return err
	}
	defer conn.Close()

	brokers, err := conn.Brokers()
	if err != nil {
		return err
	}
	if len(brokers) == 0 {
		return errors.New("broker returned no cluster metadata")
	}
	fmt.Printf("authenticated to %s using %s\n", k.Broker, mech.Name())
	for _, b := range brokers {
		fmt.Printf("  broker %d  %s:%d  rack=%s\n", b.ID, b.Host, b.Port, b.Rack)
	}
	return nil
}
