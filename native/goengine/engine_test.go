package goengine

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xdg-go/scram"

	"github.com/smnsjas/go-sasl2/native"
)

func ret(s native.Status) uintptr {
	return uintptr(s)
}

// fixture builds callback tables whose entries point back into Go.
type fixture struct {
	t *testing.T
	e *Engine

	mu      sync.Mutex
	keep    []*native.Block
	logs    []string
	levels  []native.LogLevel
	secrets int
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{t: t, e: New(opts...)}
	t.Cleanup(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, b := range f.keep {
			b.Free()
		}
	})
	return f
}

func (f *fixture) hold(b *native.Block) *native.Block {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keep = append(f.keep, b)
	return b
}

func (f *fixture) logEntry() native.Entry {
	fn := native.LogFunc(func(_, level, message uintptr) uintptr {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.levels = append(f.levels, native.LogLevel(int32(level)))
		f.logs = append(f.logs, native.GoString(message))
		return 0
	})
	return native.Entry{ID: native.CallbackLog, Proc: f.e.NewCallback(fn)}
}

func (f *fixture) init(entries ...native.Entry) {
	f.t.Helper()
	table := native.NewTable(native.HostLayout, entries)
	f.t.Cleanup(table.Free)
	require.Equal(f.t, native.StatusOK, f.e.ClientInit(table.Addr()))
}

type creds struct {
	user     *string
	authname *string
	pass     []byte
}

func str(s string) *string { return &s }

func (f *fixture) credTable(c creds) *native.Table {
	f.t.Helper()
	simple := native.GetSimpleFunc(func(_, id, result, length uintptr) uintptr {
		var v *string
		switch native.CallbackID(id) {
		case native.CallbackUser:
			v = c.user
		case native.CallbackAuthName:
			v = c.authname
		default:
			return ret(native.StatusBadParam)
		}
		if v == nil {
			native.WriteUintptr(result, 0)
			return 0
		}
		b := f.hold(native.CString(*v))
		native.WriteUintptr(result, b.Addr())
		native.WriteUint32(length, uint32(len(*v)))
		return 0
	})
	secret := native.GetSecretFunc(func(_, _, id, psecret uintptr) uintptr {
		if native.CallbackID(id) != native.CallbackPass {
			return ret(native.StatusBadParam)
		}
		f.mu.Lock()
		f.secrets++
		f.mu.Unlock()
		b := f.hold(native.HostLayout.EncodeSecret(c.pass))
		native.WriteUintptr(psecret, b.Addr())
		return 0
	})

	simpleAddr := f.e.NewCallback(simple)
	var entries []native.Entry
	if c.user != nil {
		entries = append(entries, native.Entry{ID: native.CallbackUser, Proc: simpleAddr})
	}
	if c.authname != nil {
		entries = append(entries, native.Entry{ID: native.CallbackAuthName, Proc: simpleAddr})
	}
	if c.pass != nil {
		entries = append(entries, native.Entry{ID: native.CallbackPass, Proc: f.e.NewCallback(secret)})
	}
	table := native.NewTable(native.HostLayout, entries)
	f.t.Cleanup(table.Free)
	return table
}

// dial creates a connection and returns its address cell.
func (f *fixture) dial(service string, table *native.Table) (*native.Block, native.Status) {
	f.t.Helper()
	pconn := f.hold(native.NewCell())
	svc := f.hold(native.CString(service))
	fqdn := f.hold(native.CString("mail.example.com"))
	status := f.e.ClientNew(svc.Addr(), fqdn.Addr(), 0, 0, table.Addr(), 0, pconn.Addr())
	return pconn, status
}

type exchange struct {
	out  []byte
	mech string
}

func (f *fixture) start(conn uintptr, mechs string) (exchange, native.Status) {
	list := f.hold(native.CString(mechs))
	out := f.hold(native.NewCell())
	outLen := f.hold(native.NewCell())
	mech := f.hold(native.NewCell())
	status := f.e.ClientStart(conn, list.Addr(), 0, out.Addr(), outLen.Addr(), mech.Addr())
	return exchange{
		out:  native.GoBytes(native.ReadUintptr(out.Addr()), int(native.ReadUint32(outLen.Addr()))),
		mech: native.GoString(native.ReadUintptr(mech.Addr())),
	}, status
}

func (f *fixture) step(conn uintptr, in []byte) ([]byte, native.Status) {
	var inAddr uintptr
	if len(in) > 0 {
		b := f.hold(native.Alloc(len(in)))
		copy(b.Bytes(), in)
		inAddr = b.Addr()
	}
	out := f.hold(native.NewCell())
	outLen := f.hold(native.NewCell())
	status := f.e.ClientStep(conn, inAddr, uint32(len(in)), 0, out.Addr(), outLen.Addr())
	return native.GoBytes(native.ReadUintptr(out.Addr()), int(native.ReadUint32(outLen.Addr()))), status
}

func (f *fixture) detail(conn uintptr) string {
	return native.GoString(f.e.ErrDetail(conn))
}

func TestEngine_ClientNewBeforeInit(t *testing.T) {
	f := newFixture(t)
	pconn, status := f.dial("imap", nil)
	assert.Equal(t, native.StatusNotInit, status)
	assert.Zero(t, native.ReadUintptr(pconn.Addr()))
	assert.Equal(t, 0, f.e.Conns())
}

func TestEngine_ClientNewValidation(t *testing.T) {
	f := newFixture(t)
	f.init()

	tests := []struct {
		name    string
		service string
		local   string
		want    native.Status
	}{
		{"ok", "imap", "", native.StatusOK},
		{"empty service", "", "", native.StatusBadParam},
		{"space in service", "im ap", "", native.StatusBadParam},
		{"control in service", "im\x01ap", "", native.StatusBadParam},
		{"ip port", "imap", "127.0.0.1;143", native.StatusOK},
		{"ip without port", "imap", "127.0.0.1", native.StatusBadParam},
		{"non numeric port", "imap", "127.0.0.1;imap", native.StatusBadParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pconn := f.hold(native.NewCell())
			svc := f.hold(native.CString(tt.service))
			local := f.hold(native.OptionalCString(tt.local))
			status := f.e.ClientNew(svc.Addr(), 0, local.Addr(), 0, 0, 0, pconn.Addr())
			assert.Equal(t, tt.want, status)
			if status == native.StatusOK {
				assert.NotZero(t, native.ReadUintptr(pconn.Addr()))
				f.e.Dispose(pconn.Addr())
			} else {
				assert.Zero(t, native.ReadUintptr(pconn.Addr()))
			}
		})
	}
	assert.Equal(t, 0, f.e.Conns())
}

func TestEngine_ClientNewNullOutput(t *testing.T) {
	f := newFixture(t)
	f.init()
	svc := f.hold(native.CString("imap"))
	assert.Equal(t, native.StatusBadParam, f.e.ClientNew(svc.Addr(), 0, 0, 0, 0, 0, 0))
}

func TestEngine_DisposeWritesNull(t *testing.T) {
	f := newFixture(t)
	f.init()
	pconn, status := f.dial("imap", nil)
	require.Equal(t, native.StatusOK, status)
	require.Equal(t, 1, f.e.Conns())

	f.e.Dispose(pconn.Addr())
	assert.Zero(t, native.ReadUintptr(pconn.Addr()))
	assert.Equal(t, 0, f.e.Conns())

	// Second dispose sees NULL and does nothing.
	f.e.Dispose(pconn.Addr())
	f.e.Dispose(0)
	assert.Equal(t, 0, f.e.Conns())
}

func TestEngine_PlainExchange(t *testing.T) {
	f := newFixture(t)
	f.init()
	table := f.credTable(creds{authname: str("alice"), pass: []byte("secret")})
	pconn, status := f.dial("imap", table)
	require.Equal(t, native.StatusOK, status)
	conn := native.ReadUintptr(pconn.Addr())

	ex, status := f.start(conn, "PLAIN")
	require.Equal(t, native.StatusOK, status)
	assert.Equal(t, "PLAIN", ex.mech)
	assert.Equal(t, []byte("\x00alice\x00secret"), ex.out)
}

func TestEngine_PlainWithAuthzid(t *testing.T) {
	f := newFixture(t)
	f.init()
	table := f.credTable(creds{user: str("admin"), authname: str("alice"), pass: []byte("secret")})
	pconn, _ := f.dial("imap", table)

	ex, status := f.start(native.ReadUintptr(pconn.Addr()), "PLAIN")
	require.Equal(t, native.StatusOK, status)
	assert.Equal(t, []byte("admin\x00alice\x00secret"), ex.out)
}

func TestEngine_GlobalCallbacksAreFallback(t *testing.T) {
	f := newFixture(t)
	global := f.credTable(creds{authname: str("alice"), pass: []byte("secret")})
	require.Equal(t, native.StatusOK, f.e.ClientInit(global.Addr()))

	pconn, status := f.dial("imap", nil)
	require.Equal(t, native.StatusOK, status)
	ex, status := f.start(native.ReadUintptr(pconn.Addr()), "PLAIN")
	require.Equal(t, native.StatusOK, status)
	assert.Equal(t, []byte("\x00alice\x00secret"), ex.out)
}

func TestEngine_LoginExchange(t *testing.T) {
	f := newFixture(t)
	f.init()
	table := f.credTable(creds{authname: str("alice"), pass: []byte("secret")})
	pconn, _ := f.dial("smtp", table)
	conn := native.ReadUintptr(pconn.Addr())

	ex, status := f.start(conn, "LOGIN")
	require.Equal(t, native.StatusContinue, status)
	assert.Equal(t, []byte("alice"), ex.out)
	assert.Zero(t, f.secrets, "password requested before the server asked for it")

	out, status := f.step(conn, []byte("Username:"))
	require.Equal(t, native.StatusContinue, status)
	assert.Equal(t, []byte("alice"), out)
	assert.Zero(t, f.secrets)

	out, status = f.step(conn, []byte("Password:"))
	require.Equal(t, native.StatusOK, status)
	assert.Equal(t, []byte("secret"), out)
	assert.Equal(t, 1, f.secrets)
}

func TestEngine_CRAMMD5(t *testing.T) {
	// RFC 2195 example.
	f := newFixture(t)
	f.init()
	table := f.credTable(creds{authname: str("tim"), pass: []byte("tanstaaftanstaaf")})
	pconn, _ := f.dial("imap", table)
	conn := native.ReadUintptr(pconn.Addr())

	ex, status := f.start(conn, "CRAM-MD5")
	require.Equal(t, native.StatusContinue, status)
	assert.Empty(t, ex.out)

	out, status := f.step(conn, []byte("<1896.697170952@postoffice.reston.mci.net>"))
	require.Equal(t, native.StatusOK, status)
	assert.Equal(t, "tim b913a602c7eda7a495b4e6e7334d3890", string(out))
}

func TestEngine_SCRAMAgainstServer(t *testing.T) {
	f := newFixture(t)
	f.init()
	table := f.credTable(creds{authname: str("alice"), pass: []byte("secret")})
	pconn, _ := f.dial("imap", table)
	conn := native.ReadUintptr(pconn.Addr())

	ref, err := scram.SHA256.NewClient("alice", "secret", "")
	require.NoError(t, err)
	stored := ref.GetStoredCredentials(scram.KeyFactors{Salt: "c2FsdHNhbHQ=", Iters: 4096})
	server, err := scram.SHA256.NewServer(func(string) (scram.StoredCredentials, error) {
		return stored, nil
	})
	require.NoError(t, err)
	sconv := server.NewConversation()

	ex, status := f.start(conn, "PLAIN SCRAM-SHA-256")
	require.Equal(t, native.StatusContinue, status)
	assert.Equal(t, "SCRAM-SHA-256", ex.mech)

	serverFirst, err := sconv.Step(string(ex.out))
	require.NoError(t, err)
	clientFinal, status := f.step(conn, []byte(serverFirst))
	require.Equal(t, native.StatusContinue, status)

	serverFinal, err := sconv.Step(string(clientFinal))
	require.NoError(t, err)
	assert.True(t, sconv.Valid())

	out, status := f.step(conn, []byte(serverFinal))
	assert.Equal(t, native.StatusOK, status)
	assert.Empty(t, out)
}

func TestEngine_SCRAMWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.init()
	table := f.credTable(creds{authname: str("alice"), pass: []byte("wrong")})
	pconn, _ := f.dial("imap", table)
	conn := native.ReadUintptr(pconn.Addr())

	ref, err := scram.SHA1.NewClient("alice", "secret", "")
	require.NoError(t, err)
	stored := ref.GetStoredCredentials(scram.KeyFactors{Salt: "c2FsdA==", Iters: 4096})
	server, err := scram.SHA1.NewServer(func(string) (scram.StoredCredentials, error) {
		return stored, nil
	})
	require.NoError(t, err)
	sconv := server.NewConversation()

	ex, status := f.start(conn, "SCRAM-SHA-1")
	require.Equal(t, native.StatusContinue, status)
	serverFirst, err := sconv.Step(string(ex.out))
	require.NoError(t, err)
	clientFinal, status := f.step(conn, []byte(serverFirst))
	require.Equal(t, native.StatusContinue, status)

	serverFinal, _ := sconv.Step(string(clientFinal))
	assert.False(t, sconv.Valid())

	_, status = f.step(conn, []byte(serverFinal))
	assert.True(t, status.Failed())
}

func TestEngine_NTLMNegotiate(t *testing.T) {
	f := newFixture(t, WithNTLM(NTLMConfig{Workstation: "WS01"}))
	f.init()
	table := f.credTable(creds{authname: str(`CORP\alice`), pass: []byte("secret")})
	pconn, _ := f.dial("imap", table)
	conn := native.ReadUintptr(pconn.Addr())

	ex, status := f.start(conn, "NTLM")
	require.Equal(t, native.StatusContinue, status)
	assert.True(t, bytes.HasPrefix(ex.out, []byte("NTLMSSP\x00")))

	_, status = f.step(conn, nil)
	assert.Equal(t, native.StatusBadProt, status)
}

func TestEngine_AnonymousAndExternal(t *testing.T) {
	f := newFixture(t)
	f.init()
	table := f.credTable(creds{user: str("bob")})
	pconn, _ := f.dial("imap", table)

	ex, status := f.start(native.ReadUintptr(pconn.Addr()), "EXTERNAL")
	require.Equal(t, native.StatusOK, status)
	assert.Equal(t, []byte("bob"), ex.out)

	pconn2, _ := f.dial("imap", nil)
	ex, status = f.start(native.ReadUintptr(pconn2.Addr()), "ANONYMOUS")
	require.Equal(t, native.StatusOK, status)
	assert.Equal(t, []byte("anonymous"), ex.out)
}

func TestEngine_ChoosesStrongest(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		offered string
		want    string
	}{
		{"scram over plain", nil, "PLAIN CRAM-MD5 SCRAM-SHA-256", "SCRAM-SHA-256"},
		{"comma separated", nil, "LOGIN,PLAIN", "PLAIN"},
		{"case insensitive", nil, "plain login", "PLAIN"},
		{"gssapi needs kerberos", nil, "GSSAPI PLAIN", "PLAIN"},
		{"restricted", []Option{WithMechanisms("login")}, "PLAIN LOGIN SCRAM-SHA-1", "LOGIN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.opts...)
			f.init()
			table := f.credTable(creds{authname: str("alice"), pass: []byte("secret")})
			pconn, _ := f.dial("imap", table)
			ex, status := f.start(native.ReadUintptr(pconn.Addr()), tt.offered)
			require.False(t, status.Failed(), status.String())
			assert.Equal(t, tt.want, ex.mech)
		})
	}
}

func TestEngine_NoMechanism(t *testing.T) {
	f := newFixture(t)
	f.init(f.logEntry())
	pconn, _ := f.dial("imap", nil)
	conn := native.ReadUintptr(pconn.Addr())

	// PLAIN is ineligible without credentials callbacks.
	_, status := f.start(conn, "PLAIN X-UNKNOWN")
	assert.Equal(t, native.StatusNoMech, status)
	assert.Contains(t, f.detail(conn), "No worthy mechs found")
	assert.Contains(t, f.detail(conn), "SASL(-4)")

	f.mu.Lock()
	require.NotEmpty(t, f.logs)
	assert.Equal(t, native.LogFail, f.levels[len(f.levels)-1])
	f.mu.Unlock()

	// A failed connection rejects further calls.
	_, status = f.step(conn, []byte("x"))
	assert.Equal(t, native.StatusFail, status)
	_, status = f.start(conn, "ANONYMOUS")
	assert.Equal(t, native.StatusFail, status)
}

func TestEngine_StepBeforeStart(t *testing.T) {
	f := newFixture(t)
	f.init()
	pconn, _ := f.dial("imap", nil)
	_, status := f.step(native.ReadUintptr(pconn.Addr()), []byte("challenge"))
	assert.Equal(t, native.StatusFail, status)
}

func TestEngine_StepAfterDone(t *testing.T) {
	f := newFixture(t)
	f.init()
	table := f.credTable(creds{authname: str("alice"), pass: []byte("secret")})
	pconn, _ := f.dial("imap", table)
	conn := native.ReadUintptr(pconn.Addr())
	_, status := f.start(conn, "PLAIN")
	require.Equal(t, native.StatusOK, status)

	_, status = f.step(conn, nil)
	assert.Equal(t, native.StatusBadProt, status)
}

func TestEngine_UnknownConnection(t *testing.T) {
	f := newFixture(t)
	f.init()
	_, status := f.start(0xdead0, "PLAIN")
	assert.Equal(t, native.StatusBadParam, status)
	assert.Zero(t, f.e.ErrDetail(0xdead0))
}

func TestEngine_ListMech(t *testing.T) {
	f := newFixture(t, WithMechanisms("PLAIN", "ANONYMOUS", "EXTERNAL"))
	f.init()
	table := f.credTable(creds{authname: str("alice"), pass: []byte("secret")})
	pconn, _ := f.dial("imap", table)
	conn := native.ReadUintptr(pconn.Addr())

	prefix := f.hold(native.CString("("))
	sep := f.hold(native.CString(","))
	suffix := f.hold(native.CString(")"))
	result := f.hold(native.NewCell())
	plen := f.hold(native.NewCell())
	pcount := f.hold(native.NewCell())

	status := f.e.ListMech(conn, 0, prefix.Addr(), sep.Addr(), suffix.Addr(), result.Addr(), plen.Addr(), pcount.Addr())
	require.Equal(t, native.StatusOK, status)
	got := native.GoString(native.ReadUintptr(result.Addr()))
	assert.Equal(t, "(PLAIN,EXTERNAL,ANONYMOUS)", got)
	assert.Equal(t, uint32(len(got)), native.ReadUint32(plen.Addr()))
	assert.Equal(t, uint32(3), native.ReadUint32(pcount.Addr()))
}

func TestEngine_ListMechWithoutCredentials(t *testing.T) {
	f := newFixture(t)
	f.init()
	pconn, _ := f.dial("imap", nil)
	sep := f.hold(native.CString(" "))
	result := f.hold(native.NewCell())

	status := f.e.ListMech(native.ReadUintptr(pconn.Addr()), 0, 0, sep.Addr(), 0, result.Addr(), 0, 0)
	require.Equal(t, native.StatusOK, status)
	assert.Equal(t, []string{"EXTERNAL", "ANONYMOUS"}, strings.Fields(native.GoString(native.ReadUintptr(result.Addr()))))
}

func TestEngine_GetPathAtInit(t *testing.T) {
	f := newFixture(t)
	dir := f.hold(native.CString(`C:\sasl2`))
	getpath := native.GetPathFunc(func(_, path uintptr) uintptr {
		native.WriteUintptr(path, dir.Addr())
		return 0
	})
	f.init(native.Entry{ID: native.CallbackGetPath, Proc: f.e.NewCallback(getpath)})
	assert.Equal(t, `C:\sasl2`, f.e.PluginPath())

	// A second init keeps the first table.
	assert.Equal(t, native.StatusOK, f.e.ClientInit(0))
	assert.Equal(t, `C:\sasl2`, f.e.PluginPath())
}

func TestEngine_CallbackFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.init()
	failing := native.GetSimpleFunc(func(_, _, _, _ uintptr) uintptr {
		return ret(native.StatusFail)
	})
	secret := native.GetSecretFunc(func(_, _, _, _ uintptr) uintptr { return 0 })
	table := native.NewTable(native.HostLayout, []native.Entry{
		{ID: native.CallbackAuthName, Proc: f.e.NewCallback(failing)},
		{ID: native.CallbackPass, Proc: f.e.NewCallback(secret)},
	})
	t.Cleanup(table.Free)
	pconn, _ := f.dial("imap", table)

	_, status := f.start(native.ReadUintptr(pconn.Addr()), "PLAIN")
	assert.Equal(t, native.StatusFail, status)
}

func TestEngine_NullSecretIsBadParam(t *testing.T) {
	f := newFixture(t)
	f.init()
	simple := native.GetSimpleFunc(func(_, _, result, _ uintptr) uintptr {
		b := f.hold(native.CString("alice"))
		native.WriteUintptr(result, b.Addr())
		return 0
	})
	secret := native.GetSecretFunc(func(_, _, _, psecret uintptr) uintptr {
		native.WriteUintptr(psecret, 0)
		return 0
	})
	table := native.NewTable(native.HostLayout, []native.Entry{
		{ID: native.CallbackAuthName, Proc: f.e.NewCallback(simple)},
		{ID: native.CallbackPass, Proc: f.e.NewCallback(secret)},
	})
	t.Cleanup(table.Free)
	pconn, _ := f.dial("imap", table)

	_, status := f.start(native.ReadUintptr(pconn.Addr()), "PLAIN")
	assert.Equal(t, native.StatusBadParam, status)
}

func TestEngine_ErrString(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "successful result", native.GoString(f.e.ErrString(native.StatusOK)))
	assert.Equal(t, "no mechanism available", native.GoString(f.e.ErrString(native.StatusNoMech)))
	assert.Equal(t, "undefined error!", native.GoString(f.e.ErrString(native.Status(-99))))
	// Cached.
	assert.Equal(t, f.e.ErrString(native.StatusFail), f.e.ErrString(native.StatusFail))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, native.StatusBadAuth, statusOf(newStatusError(native.StatusBadAuth, "x"), native.StatusFail))
	assert.Equal(t, native.StatusFail, statusOf(assert.AnError, native.StatusFail))
}
