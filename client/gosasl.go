package client

import (
	"context"

	"github.com/emersion/go-sasl"
)

// saslClient adapts a Client to the github.com/emersion/go-sasl Client
// interface used by go-imap, go-smtp and similar protocol libraries.
type saslClient struct {
	ctx        context.Context
	c          *Client
	mechanisms []string
}

// SASLClient returns a sasl.Client that negotiates through c, choosing
// among mechanisms (typically the server's advertised list).
func (c *Client) SASLClient(ctx context.Context, mechanisms []string) sasl.Client {
	return &saslClient{ctx: ctx, c: c, mechanisms: mechanisms}
}

func (s *saslClient) Start() (string, []byte, error) {
	mech, ir, _, err := s.c.Start(s.ctx, s.mechanisms)
	if err != nil {
		return "", nil, err
	}
	return mech, ir, nil
}

func (s *saslClient) Next(challenge []byte) ([]byte, error) {
	// Servers without initial-response support send an empty challenge
	// after a single-message mechanism has already finished.
	if s.c.State() == StateSucceeded && len(challenge) == 0 {
		return nil, nil
	}
	out, _, err := s.c.Step(s.ctx, challenge)
	return out, err
}
