// Command sasl-client negotiates SASL authentication against IMAP servers
// and Kafka brokers, and lists the mechanisms the engine can use.
//
// Password can be provided via:
//   - --password flag (least secure, visible in process list)
//   - SASL_PASSWORD environment variable (recommended)
//   - stdin prompt, only when the chosen mechanism asks for one
//
// Every flag can also be set in an HCL file passed with --config.
//
// Usage:
//
//	sasl-client mechs --user alice --server mail.example.com
//	sasl-client imap mail.example.com:993 --tls --user alice
//	sasl-client kafka --broker kafka1:9093 --tls --mechanism SCRAM-SHA-512 --user alice
//
// Kerberos with the pure Go engine:
//
//	sasl-client --engine go --realm EXAMPLE.COM --ccache /tmp/krb5cc_1000 \
//	    imap mail.example.com:143 --starttls
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	konghcl "github.com/alecthomas/kong-hcl/v2"

	"github.com/smnsjas/go-sasl2/client"
	ilog "github.com/smnsjas/go-sasl2/internal/log"
	"github.com/smnsjas/go-sasl2/native"
	"github.com/smnsjas/go-sasl2/native/goengine"
	"github.com/smnsjas/go-sasl2/native/libsasl2"
)

// Log files rotate at 10 MB, keeping three backups.
const (
	logMaxSize    = 10 << 20
	logMaxBackups = 3
)

type cli struct {
	Global Globals `embed:""`

	Mechs MechsCmd `cmd:"" help:"List the mechanisms usable with the given credentials."`
	IMAP  IMAPCmd  `cmd:"" name:"imap" help:"Authenticate to an IMAP server."`
	Kafka KafkaCmd `cmd:"" help:"Authenticate to a Kafka broker and list the cluster."`
}

// Globals are the flags shared by every command.
type Globals struct {
	Config kong.ConfigFlag `help:"Path to an HCL config file." type:"existingfile"`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:"warn"`
	LogFile  string `help:"Write logs to this file instead of stderr." type:"path"`
	LogJSON  bool   `help:"Log in JSON format." name:"log-json"`

	Engine     string   `help:"SASL engine to use." enum:"auto,go,libsasl2" default:"auto"`
	PluginPath string   `help:"Directory searched for libsasl2 mechanism plugins." type:"path"`
	Allow      []string `help:"Mechanisms the go engine may use (default all)." name:"allow"`

	Realm      string `help:"Kerberos realm (go engine)."`
	Krb5Conf   string `help:"Path to krb5.conf (go engine)." name:"krb5-conf" type:"path"`
	CCache     string `help:"Kerberos credential cache (go engine)." name:"ccache" type:"path"`
	Keytab     string `help:"Kerberos keytab (go engine)." type:"path"`
	NTLMDomain string `help:"NTLM domain (go engine)." name:"ntlm-domain"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newParser(c *cli) (*kong.Kong, error) {
	return kong.New(c,
		kong.Name("sasl-client"),
		kong.Description("SASL client for IMAP and Kafka."),
		kong.Configuration(konghcl.Loader),
		kong.UsageOnError(),
	)
}

func run(args []string) error {
	var c cli
	parser, err := newParser(&c)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	logger, closer, err := c.Global.logger(os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	return kctx.Run(&c.Global, logger)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// logger builds the redacting logger, writing to stderr or a rotated file.
func (g *Globals) logger(stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ilog.ParseLevel(g.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if g.LogFile == "" {
		return ilog.NewLogger(stderr, level, g.LogJSON), nopCloser{}, nil
	}
	rf, err := ilog.NewRotatingFile(g.LogFile, logMaxSize, logMaxBackups)
	if err != nil {
		return nil, nil, err
	}
	return ilog.NewLogger(rf, level, g.LogJSON), rf, nil
}

func (g *Globals) goEngine() *goengine.Engine {
	var opts []goengine.Option
	if len(g.Allow) > 0 {
		opts = append(opts, goengine.WithMechanisms(g.Allow...))
	}
	if g.Realm != "" || g.CCache != "" || g.Keytab != "" || g.Krb5Conf != "" {
		opts = append(opts, goengine.WithKerberos(goengine.KerberosConfig{
			Realm:        g.Realm,
			Krb5ConfPath: g.Krb5Conf,
			KeytabPath:   g.Keytab,
			CCachePath:   g.CCache,
		}))
	}
	if g.NTLMDomain != "" {
		opts = append(opts, goengine.WithNTLM(goengine.NTLMConfig{Domain: g.NTLMDomain}))
	}
	return goengine.New(opts...)
}

func (g *Globals) engine() (native.Engine, error) {
	switch g.Engine {
	case "go":
		return g.goEngine(), nil
	case "libsasl2":
		lib, err := libsasl2.Open()
		if err != nil {
			return nil, err
		}
		return lib, nil
	}
	if lib, err := libsasl2.Open(); err == nil {
		return lib, nil
	}
	return g.goEngine(), nil
}

// library initializes the process engine.
func (g *Globals) library(logger *slog.Logger) (*client.Library, error) {
	engine, err := g.engine()
	if err != nil {
		return nil, err
	}
	logger.Debug("selected sasl engine", "engine", engine.Name())

	cfg := client.DefaultConfig()
	cfg.Engine = engine
	cfg.PluginPath = g.PluginPath
	cfg.Log = client.SlogSink(logger)
	cfg.Logger = logger
	cfg.AuditLogger = logger
	return client.Init(cfg)
}
