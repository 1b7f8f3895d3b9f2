package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*cli, string) {
	t.Helper()
	var c cli
	parser, err := newParser(&c)
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &c, kctx.Command()
}

func TestParse_Defaults(t *testing.T) {
	c, cmd := parse(t, "imap", "mail.example.com:993", "--tls", "-u", "alice")

	assert.Equal(t, "imap <addr>", cmd)
	assert.Equal(t, "warn", c.Global.LogLevel)
	assert.Equal(t, "auto", c.Global.Engine)
	assert.Equal(t, "mail.example.com:993", c.IMAP.Addr)
	assert.True(t, c.IMAP.TLS)
	assert.Equal(t, "alice", c.IMAP.User)
	assert.Equal(t, "imap", c.IMAP.Service)
	assert.Equal(t, 3, c.IMAP.Retries)
}

func TestParse_Kafka(t *testing.T) {
	c, cmd := parse(t, "--engine", "go", "--allow", "SCRAM-SHA-256,PLAIN",
		"kafka", "--broker", "kafka1:9093", "--mechanism", "SCRAM-SHA-256")

	assert.Equal(t, "kafka", cmd)
	assert.Equal(t, "go", c.Global.Engine)
	assert.Equal(t, []string{"SCRAM-SHA-256", "PLAIN"}, c.Global.Allow)
	assert.Equal(t, "kafka1:9093", c.Kafka.Broker)
	assert.Equal(t, "SCRAM-SHA-256", c.Kafka.Mechanism)
	assert.Equal(t, "kafka", c.Kafka.Service)
}

func TestParse_InvalidEngine(t *testing.T) {
	var c cli
	parser, err := newParser(&c)
	require.NoError(t, err)
	_, err = parser.Parse([]string{"--engine", "cyrus", "mechs"})
	assert.Error(t, err)
}

func TestParse_PasswordFromEnv(t *testing.T) {
	t.Setenv("SASL_PASSWORD", "from-env")
	c, _ := parse(t, "mechs", "-u", "alice")
	assert.Equal(t, "from-env", c.Mechs.Password)
}

func TestParse_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sasl.hcl")
	require.NoError(t, os.WriteFile(path, []byte("log-level = \"debug\"\nrealm = \"EXAMPLE.COM\"\n"), 0600))

	c, _ := parse(t, "--config", path, "mechs")
	assert.Equal(t, "debug", c.Global.LogLevel)
	assert.Equal(t, "EXAMPLE.COM", c.Global.Realm)
}

func TestGlobals_Logger(t *testing.T) {
	var buf bytes.Buffer
	g := &Globals{LogLevel: "info"}
	logger, closer, err := g.logger(&buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hello", "password", "hunter2")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), "hunter2")

	g = &Globals{LogLevel: "chatty"}
	_, _, err = g.logger(&buf)
	assert.Error(t, err)
}

func TestGlobals_LoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sasl.log")
	g := &Globals{LogLevel: "debug", LogFile: path, LogJSON: true}
	logger, closer, err := g.logger(nil)
	require.NoError(t, err)

	logger.Debug("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
}

func TestGlobals_GoEngine(t *testing.T) {
	g := &Globals{Engine: "go", Allow: []string{"plain"}}
	engine, err := g.engine()
	require.NoError(t, err)
	assert.Equal(t, "go", engine.Name())
}

func TestCredentials_Params(t *testing.T) {
	prompts := 0
	prompt := func() (string, error) {
		prompts++
		return "typed", nil
	}

	c := &Credentials{User: "alice", Authzid: "admin"}
	p := c.params("imap", "mail.example.com", prompt)
	assert.Equal(t, "imap/mail.example.com", p.String())

	name, err := p.Authname()
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
	authz, err := p.User()
	require.NoError(t, err)
	assert.Equal(t, "admin", authz)

	assert.Equal(t, 0, prompts)
	for i := 0; i < 3; i++ {
		pass, err := p.Pass()
		require.NoError(t, err)
		assert.Equal(t, "typed", pass)
	}
	assert.Equal(t, 1, prompts)

	p = (&Credentials{User: "alice", Password: "flag"}).params("imap", "", prompt)
	pass, err := p.Pass()
	require.NoError(t, err)
	assert.Equal(t, "flag", pass)

	p = (&Credentials{NoPrompt: true}).params("imap", "", prompt)
	assert.Nil(t, p.Authname)
	assert.Nil(t, p.User)
	assert.Nil(t, p.Pass)
}

func TestReadPassword_Piped(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	_, err = w.WriteString("s3cret\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	defer r.Close()

	var out bytes.Buffer
	pass, err := readPassword(r, &out)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pass)
	assert.Equal(t, "Password: ", out.String())
}
