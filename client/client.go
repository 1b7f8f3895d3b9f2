package client

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/smnsjas/go-sasl2/native"
)

// mechSeparator joins and splits mechanism lists exchanged with the engine.
const mechSeparator = ","

// State is the negotiation state of a Client.
type State int

const (
	// StateCreated means Start has not been called.
	StateCreated State = iota
	// StateNegotiating means the server must answer the last output.
	StateNegotiating
	// StateSucceeded means the engine reported success.
	StateSucceeded
	// StateFailed means a call failed; only Close is allowed.
	StateFailed
	// StateDisposed means Close has been called.
	StateDisposed
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateNegotiating:
		return "Negotiating"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	case StateDisposed:
		return "Disposed"
	default:
		return "Unknown"
	}
}

// Client is one authentication attempt against one server.
//
// A Client is not safe for concurrent use. Providers are invoked on the
// goroutine calling Start or Step.
type Client struct {
	lib    *Library
	params Params
	logger *slog.Logger
	audit  *SecurityLogger

	handle uintptr
	bridge *bridge
	table  *native.Table
	pconn  *native.Block

	state State
	mech  string
}

// NewClient creates a Client. The engine copies the strings in p; the
// providers are kept until Close.
func (l *Library) NewClient(p Params) (*Client, error) {
	b := newBridge(l, p)
	handle := l.registry.add(b)

	var entries []native.Entry
	if p.User != nil {
		entries = append(entries, native.Entry{ID: native.CallbackUser, Proc: l.simpleProc, Context: handle})
	}
	if p.Authname != nil {
		entries = append(entries, native.Entry{ID: native.CallbackAuthName, Proc: l.simpleProc, Context: handle})
	}
	if p.Pass != nil {
		entries = append(entries, native.Entry{ID: native.CallbackPass, Proc: l.secretProc, Context: handle})
	}
	table := native.NewTable(l.layout, entries)

	service := native.CString(p.Service)
	server := native.OptionalCString(p.ServerFQDN)
	local := native.OptionalCString(p.LocalAddr)
	remote := native.OptionalCString(p.RemoteAddr)
	defer func() {
		service.Free()
		server.Free()
		local.Free()
		remote.Free()
	}()

	pconn := native.NewCell()
	status := l.engine.ClientNew(service.Addr(), server.Addr(), local.Addr(), remote.Addr(),
		table.Addr(), p.Flags, pconn.Addr())
	if status != native.StatusOK {
		if native.ReadUintptr(pconn.Addr()) != 0 {
			l.engine.Dispose(pconn.Addr())
		}
		table.Free()
		l.registry.remove(handle)
		b.release()
		pconn.Free()
		err := &EngineCreateError{Status: status, Detail: native.GoString(l.engine.ErrString(status))}
		l.logger.Debug("sasl client create failed", "params", p, "error", err)
		return nil, err
	}

	c := &Client{
		lib:    l,
		params: p,
		logger: l.logger.With("service", p.Service, "server", p.ServerFQDN),
		audit:  NewSecurityLogger(l.cfg.AuditLogger, p.String()),
		handle: handle,
		bridge: b,
		table:  table,
		pconn:  pconn,
	}
	// Release the native context of a Client that is never closed. The
	// finalizer does not call providers, hooks or loggers.
	runtime.SetFinalizer(c, (*Client).finalize)
	c.logger.Debug("sasl client created", "params", p)
	c.audit.LogSession(SubtypeSessionOpen, OutcomeSuccess, SeverityInfo, nil)
	return c, nil
}

func (c *Client) conn() uintptr {
	return native.ReadUintptr(c.pconn.Addr())
}

// State returns the negotiation state.
func (c *Client) State() State {
	return c.state
}

// Mechanism returns the mechanism chosen by Start, or "".
func (c *Client) Mechanism() string {
	return c.mech
}

// Params returns the parameters the Client was created with.
func (c *Client) Params() Params {
	return c.params
}

func (c *Client) usable() error {
	switch c.state {
	case StateDisposed:
		return ErrDisposed
	case StateFailed:
		return ErrNegotiationFailed
	}
	return nil
}

// callError builds the error for a failing native call and marks the
// Client failed.
func (c *Client) callError(op string, status native.Status) error {
	c.state = StateFailed
	return &EngineCallError{
		Op:     op,
		Status: status,
		Detail: native.GoString(c.lib.engine.ErrDetail(c.conn())),
	}
}

// ListMechanisms returns the mechanisms the engine can use for this Client.
func (c *Client) ListMechanisms() ([]string, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	sep := native.CString(mechSeparator)
	result := native.NewCell()
	plen := native.NewCell()
	pcount := native.NewCell()
	defer func() {
		sep.Free()
		result.Free()
		plen.Free()
		pcount.Free()
	}()

	status := c.lib.engine.ListMech(c.conn(), 0, 0, sep.Addr(), 0, result.Addr(), plen.Addr(), pcount.Addr())
	if status.Failed() {
		return nil, c.callError("sasl_listmech", status)
	}
	list := string(native.GoBytes(native.ReadUintptr(result.Addr()), int(native.ReadUint32(plen.Addr()))))
	return splitMechanisms(list), nil
}

func splitMechanisms(list string) []string {
	if list == "" {
		return nil
	}
	return strings.Split(list, mechSeparator)
}

// Start selects a mechanism among mechanisms and returns the initial
// response. more is true when the server must answer out before the
// negotiation can finish; out is nil when there is nothing to send.
func (c *Client) Start(ctx context.Context, mechanisms []string) (mech string, out []byte, more bool, err error) {
	if err := c.usable(); err != nil {
		return "", nil, false, err
	}
	if c.state != StateCreated {
		return "", nil, false, ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return "", nil, false, err
	}

	list := native.CString(strings.Join(mechanisms, " "))
	clientOut := native.NewCell()
	clientOutLen := native.NewCell()
	mechOut := native.NewCell()
	defer func() {
		list.Free()
		clientOut.Free()
		clientOutLen.Free()
		mechOut.Free()
	}()

	c.audit.LogAuthentication(SubtypeAuthAttempt, OutcomeAttempt, SeverityInfo, map[string]any{
		"offered": mechanisms,
	})
	status := c.lib.engine.ClientStart(c.conn(), list.Addr(), 0, clientOut.Addr(), clientOutLen.Addr(), mechOut.Addr())
	if status != native.StatusOK && status != native.StatusContinue {
		err := c.callError("sasl_client_start", status)
		c.logger.Debug("sasl start failed", "offered", mechanisms, "error", err)
		c.audit.LogAuthentication(SubtypeAuthFailure, OutcomeFailure, SeverityWarning, map[string]any{
			"status": status.String(),
		})
		return "", nil, false, err
	}

	c.mech = native.GoString(native.ReadUintptr(mechOut.Addr()))
	c.audit.setMechanism(c.mech)
	out = native.GoBytes(native.ReadUintptr(clientOut.Addr()), int(native.ReadUint32(clientOutLen.Addr())))
	more = status == native.StatusContinue
	c.logger.Debug("sasl start", "mechanism", c.mech, "continue", more, "out_bytes", len(out))
	c.advance(more)
	return c.mech, out, more, nil
}

// Step feeds the server challenge in to the engine and returns the next
// response, with the same conventions as Start.
func (c *Client) Step(ctx context.Context, in []byte) (out []byte, more bool, err error) {
	if err := c.usable(); err != nil {
		return nil, false, err
	}
	switch c.state {
	case StateCreated:
		return nil, false, ErrNotStarted
	case StateSucceeded:
		return nil, false, ErrNegotiationComplete
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var serverIn *native.Block
	if len(in) > 0 {
		serverIn = native.Alloc(len(in))
		copy(serverIn.Bytes(), in)
	}
	clientOut := native.NewCell()
	clientOutLen := native.NewCell()
	defer func() {
		serverIn.Free()
		clientOut.Free()
		clientOutLen.Free()
	}()

	status := c.lib.engine.ClientStep(c.conn(), serverIn.Addr(), uint32(len(in)), 0, clientOut.Addr(), clientOutLen.Addr())
	if status != native.StatusOK && status != native.StatusContinue {
		err := c.callError("sasl_client_step", status)
		c.logger.Debug("sasl step failed", "mechanism", c.mech, "error", err)
		c.audit.LogAuthentication(SubtypeAuthFailure, OutcomeFailure, SeverityWarning, map[string]any{
			"mechanism": c.mech,
			"status":    status.String(),
		})
		return nil, false, err
	}

	out = native.GoBytes(native.ReadUintptr(clientOut.Addr()), int(native.ReadUint32(clientOutLen.Addr())))
	more = status == native.StatusContinue
	c.logger.Debug("sasl step", "mechanism", c.mech, "continue", more,
		"in_bytes", len(in), "out_bytes", len(out))
	c.advance(more)
	return out, more, nil
}

func (c *Client) advance(more bool) {
	if more {
		c.state = StateNegotiating
		return
	}
	c.state = StateSucceeded
	c.audit.LogAuthentication(SubtypeAuthSuccess, OutcomeSuccess, SeverityInfo, map[string]any{
		"mechanism": c.mech,
	})
}

// Close releases the native context, the callback table and every buffer
// handed to the engine. Close is idempotent.
func (c *Client) Close() error {
	if c.state == StateDisposed {
		return nil
	}
	runtime.SetFinalizer(c, nil)
	c.release()
	c.logger.Debug("sasl client disposed", "mechanism", c.mech)
	c.audit.LogSession(SubtypeSessionClosed, OutcomeSuccess, SeverityInfo, nil)
	return nil
}

// release disposes the native context before freeing the table it reads.
func (c *Client) release() {
	c.lib.engine.Dispose(c.pconn.Addr())
	c.table.Free()
	c.lib.registry.remove(c.handle)
	c.bridge.release()
	c.pconn.Free()
	c.state = StateDisposed
}

func (c *Client) finalize() {
	if c.state != StateDisposed {
		c.release()
	}
}

func (c *Client) String() string {
	return fmt.Sprintf("sasl client %s (%s)", c.params, c.state)
}
