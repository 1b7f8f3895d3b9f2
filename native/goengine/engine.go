package goengine

import (
	"strings"
	"sync"
	"unicode"

	"github.com/smnsjas/go-sasl2/native"
)

// Name is the backend name reported by [Engine.Name].
const Name = "go"

const (
	// symbolBase is the first fake address handed out by NewCallback.
	symbolBase uintptr = 0x7f0000001000
	// connBase is the first fake sasl_conn_t address.
	connBase uintptr = 0x7e0000001000
	addrStride       = 16
)

// KerberosConfig enables the GSSAPI mechanism.
type KerberosConfig struct {
	// Realm is the Kerberos realm. Empty means the default realm of the
	// krb5.conf file.
	Realm string

	// Krb5ConfPath is the krb5.conf location. Defaults to KRB5_CONFIG or
	// /etc/krb5.conf.
	Krb5ConfPath string

	// KeytabPath authenticates with a keytab instead of a password.
	KeytabPath string

	// CCachePath authenticates with an existing credential cache.
	CCachePath string

	// DisablePAFXFAST turns off FAST pre-authentication (needed for Active Directory).
	DisablePAFXFAST bool
}

// NTLMConfig configures the NTLM mechanism.
type NTLMConfig struct {
	// Domain is sent in the negotiate message. When empty, a DOMAIN\user
	// authentication name supplies it.
	Domain string

	// Workstation is sent in the negotiate message.
	Workstation string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLayout overrides the memory layout used to read callback tables and
// write secrets. Defaults to native.HostLayout.
func WithLayout(l native.Layout) Option {
	return func(e *Engine) { e.layout = l }
}

// WithMechanisms restricts the engine to the named mechanisms.
func WithMechanisms(names ...string) Option {
	return func(e *Engine) {
		e.allowed = make(map[string]bool, len(names))
		for _, n := range names {
			e.allowed[strings.ToUpper(n)] = true
		}
	}
}

// WithKerberos enables GSSAPI.
func WithKerberos(cfg KerberosConfig) Option {
	return func(e *Engine) { e.kerberos = &cfg }
}

// WithNTLM sets the NTLM domain and workstation.
func WithNTLM(cfg NTLMConfig) Option {
	return func(e *Engine) { e.ntlm = cfg }
}

// Engine is a pure Go native.Engine.
type Engine struct {
	layout   native.Layout
	allowed  map[string]bool
	kerberos *KerberosConfig
	ntlm     NTLMConfig

	mu          sync.Mutex
	initialized bool
	globals     uintptr
	pluginPath  string
	conns       map[uintptr]*conn
	nextConn    uintptr
	symbols     map[uintptr]any
	nextSymbol  uintptr
	errStrings  map[native.Status]*native.Block
}

var _ native.Engine = (*Engine)(nil)

// New creates an engine. The engine is not initialized until ClientInit.
func New(opts ...Option) *Engine {
	e := &Engine{
		layout:     native.HostLayout,
		conns:      make(map[uintptr]*conn),
		nextConn:   connBase,
		symbols:    make(map[uintptr]any),
		nextSymbol: symbolBase,
		errStrings: make(map[native.Status]*native.Block),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns "go".
func (e *Engine) Name() string {
	return Name
}

// NewCallback registers fn and returns its fake function address.
func (e *Engine) NewCallback(fn any) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	addr := e.nextSymbol
	e.nextSymbol += addrStride
	e.symbols[addr] = fn
	return addr
}

func (e *Engine) symbol(addr uintptr) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.symbols[addr]
}

// Conns reports the number of connections not yet disposed.
func (e *Engine) Conns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns)
}

// PluginPath returns the directory reported by the getpath callback during
// ClientInit, if any.
func (e *Engine) PluginPath() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pluginPath
}

// ClientInit records the global callback table. Repeated calls succeed and
// keep the first table.
func (e *Engine) ClientInit(callbacks uintptr) native.Status {
	e.mu.Lock()
	if e.initialized {
		e.mu.Unlock()
		return native.StatusOK
	}
	if err := e.layout.Validate(); err != nil {
		e.mu.Unlock()
		return native.StatusBadParam
	}
	if _, err := e.layout.DecodeAt(callbacks); err != nil {
		e.mu.Unlock()
		return native.StatusBadParam
	}
	e.globals = callbacks
	e.initialized = true
	e.mu.Unlock()

	if path, ok := e.getPath(); ok {
		e.mu.Lock()
		e.pluginPath = path
		e.mu.Unlock()
		e.log(nil, native.LogDebug, "plugin path "+path)
	}
	return native.StatusOK
}

// ClientNew creates a connection and writes its address to *pconn.
func (e *Engine) ClientNew(service, serverFQDN, ipLocalPort, ipRemotePort, callbacks uintptr, flags uint32, pconn uintptr) native.Status {
	if pconn == 0 {
		return native.StatusBadParam
	}
	native.WriteUintptr(pconn, 0)

	e.mu.Lock()
	initialized := e.initialized
	e.mu.Unlock()
	if !initialized {
		return native.StatusNotInit
	}

	svc := native.GoString(service)
	if !validService(svc) {
		return native.StatusBadParam
	}
	local := native.GoString(ipLocalPort)
	remote := native.GoString(ipRemotePort)
	if !validIPPort(local) || !validIPPort(remote) {
		return native.StatusBadParam
	}
	if _, err := e.layout.DecodeAt(callbacks); err != nil {
		return native.StatusBadParam
	}

	e.mu.Lock()
	c := &conn{
		addr:       e.nextConn,
		service:    svc,
		serverFQDN: native.GoString(serverFQDN),
		localAddr:  local,
		remoteAddr: remote,
		flags:      flags,
		callbacks:  callbacks,
	}
	e.nextConn += addrStride
	e.conns[c.addr] = c
	e.mu.Unlock()

	native.WriteUintptr(pconn, c.addr)
	return native.StatusOK
}

// validService rejects empty names and names with spaces or control characters.
func validService(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// validIPPort accepts "" (not supplied) or "host;port".
func validIPPort(s string) bool {
	if s == "" {
		return true
	}
	host, port, ok := strings.Cut(s, ";")
	if !ok || host == "" || port == "" {
		return false
	}
	for _, r := range port {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Dispose releases the connection at *pconn and writes NULL to it.
func (e *Engine) Dispose(pconn uintptr) {
	if pconn == 0 {
		return
	}
	addr := native.ReadUintptr(pconn)
	if addr == 0 {
		return
	}
	e.mu.Lock()
	c := e.conns[addr]
	delete(e.conns, addr)
	e.mu.Unlock()
	if c != nil {
		c.release()
	}
	native.WriteUintptr(pconn, 0)
}

func (e *Engine) conn(addr uintptr) *conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conns[addr]
}

// ListMech writes prefix + mechanism names joined by sep + suffix.
func (e *Engine) ListMech(connAddr, user, prefix, sep, suffix, result, plen, pcount uintptr) native.Status {
	c := e.conn(connAddr)
	if c == nil || result == 0 {
		return native.StatusBadParam
	}
	if c.failed {
		return native.StatusFail
	}
	names := e.available(c)
	s := native.GoString(prefix) + strings.Join(names, native.GoString(sep)) + native.GoString(suffix)
	block := c.replace(&c.list, native.CString(s))
	native.WriteUintptr(result, block.Addr())
	native.WriteUint32(plen, uint32(len(s)))
	native.WriteUint32(pcount, uint32(len(names)))
	return native.StatusOK
}

// ClientStart selects the strongest usable mechanism from mechlist and runs
// its first step.
func (e *Engine) ClientStart(connAddr, mechlist, promptNeed, clientOut, clientOutLen, mechOut uintptr) native.Status {
	c := e.conn(connAddr)
	if c == nil {
		return native.StatusBadParam
	}
	if c.failed {
		return native.StatusFail
	}
	if c.started {
		return c.fail(e, native.StatusBadProt, "negotiation already started")
	}
	if mechlist == 0 {
		return c.fail(e, native.StatusBadParam, "no mechanism list")
	}
	if promptNeed != 0 {
		native.WriteUintptr(promptNeed, 0)
	}

	info, ok := e.choose(c, splitMechList(native.GoString(mechlist)))
	if !ok {
		return c.fail(e, native.StatusNoMech, "No worthy mechs found")
	}

	s := &session{e: e, c: c}
	m := info.newMech(s)
	e.log(c, native.LogDebug, "selected mechanism "+info.name)

	out, done, err := m.start(s)
	c.started = true
	c.mechName = info.name
	c.mech = m
	if err != nil {
		return c.fail(e, statusOf(err, native.StatusFail), err.Error())
	}

	if mechOut != 0 {
		block := c.replace(&c.mechBlock, native.CString(info.name))
		native.WriteUintptr(mechOut, block.Addr())
	}
	c.output(clientOut, clientOutLen, out)
	if done {
		c.done = true
		return native.StatusOK
	}
	return native.StatusContinue
}

// ClientStep feeds one server challenge to the selected mechanism.
func (e *Engine) ClientStep(connAddr, serverIn uintptr, serverInLen uint32, promptNeed, clientOut, clientOutLen uintptr) native.Status {
	c := e.conn(connAddr)
	if c == nil {
		return native.StatusBadParam
	}
	if c.failed {
		return native.StatusFail
	}
	if !c.started {
		return c.fail(e, native.StatusFail, "step called before start")
	}
	if c.done {
		return c.fail(e, native.StatusBadProt, "authentication already complete")
	}
	if promptNeed != 0 {
		native.WriteUintptr(promptNeed, 0)
	}

	in := native.GoBytes(serverIn, int(serverInLen))
	out, done, err := c.mech.step(&session{e: e, c: c}, in)
	if err != nil {
		return c.fail(e, statusOf(err, native.StatusBadProt), err.Error())
	}
	c.output(clientOut, clientOutLen, out)
	if done {
		c.done = true
		return native.StatusOK
	}
	return native.StatusContinue
}

// ErrDetail returns the detail message of the last failure on the connection.
func (e *Engine) ErrDetail(connAddr uintptr) uintptr {
	c := e.conn(connAddr)
	if c == nil {
		return 0
	}
	if c.detail == nil {
		c.replace(&c.detail, native.CString(""))
	}
	return c.detail.Addr()
}

// ErrString returns a static description of status.
func (e *Engine) ErrString(status native.Status) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.errStrings[status]
	if !ok {
		b = native.CString(errorString(status))
		e.errStrings[status] = b
	}
	return b.Addr()
}

func splitMechList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	})
}
