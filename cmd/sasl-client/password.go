package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/smnsjas/go-sasl2/client"
)

// Credentials are the identity flags shared by the commands.
type Credentials struct {
	User     string `help:"Authentication identity." short:"u"`
	Authzid  string `help:"Authorization identity, if different."`
	Password string `help:"Password (use SASL_PASSWORD env var instead)." env:"SASL_PASSWORD"`
	NoPrompt bool   `help:"Never prompt for a password."`
}

// prompter reads a password when the mechanism first asks for one.
type prompter func() (string, error)

// params builds client parameters. The password provider prompts lazily,
// at most once, so mechanisms that never ask (EXTERNAL, GSSAPI) never
// prompt.
func (c *Credentials) params(service, server string, prompt prompter) client.Params {
	p := client.Params{Service: service, ServerFQDN: server}
	if c.User != "" {
		p.Authname = client.Static(c.User)
	}
	if c.Authzid != "" {
		p.User = client.Static(c.Authzid)
	}
	switch {
	case c.Password != "":
		p.Pass = client.Static(c.Password)
	case !c.NoPrompt && prompt != nil:
		p.Pass = sync.OnceValues(func() (string, error) { return prompt() })
	}
	return p
}

// terminalPrompt prompts on stderr and reads from stdin without echo when
// stdin is a terminal.
func terminalPrompt() (string, error) {
	return readPassword(os.Stdin, os.Stderr)
}

func readPassword(in *os.File, out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")

	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		pass, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pass), nil
	}

	// Piped input: read one line.
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", client.ErrNoValue
	}
	return line, nil
}
