package native

// Engine is the C ABI of a SASL client engine.
//
// Every pointer argument is a native address (see [Block]). Output
// parameters are addresses of cells the callee writes to. Memory returned
// through output parameters belongs to the engine: callers copy it and never
// free it.
//
// # Thread Safety
//
// ClientInit must complete before ClientNew is called. Distinct connections
// may be driven from distinct goroutines; a single connection must not be
// used concurrently.
type Engine interface {
	// Name identifies the backend, e.g. "libsasl2" or "go".
	Name() string

	// ClientInit is sasl_client_init(const sasl_callback_t *callbacks).
	ClientInit(callbacks uintptr) Status

	// ClientNew is sasl_client_new(service, serverFQDN, iplocalport,
	// ipremoteport, prompt_supp, flags, sasl_conn_t **pconn).
	ClientNew(service, serverFQDN, ipLocalPort, ipRemotePort, callbacks uintptr, flags uint32, pconn uintptr) Status

	// Dispose is sasl_dispose(sasl_conn_t **pconn). It writes NULL to *pconn.
	Dispose(pconn uintptr)

	// ListMech is sasl_listmech(conn, user, prefix, sep, suffix,
	// const char **result, unsigned *plen, int *pcount).
	ListMech(conn, user, prefix, sep, suffix, result, plen, pcount uintptr) Status

	// ClientStart is sasl_client_start(conn, mechlist, prompt_need,
	// const char **clientout, unsigned *clientoutlen, const char **mech).
	ClientStart(conn, mechlist, promptNeed, clientOut, clientOutLen, mech uintptr) Status

	// ClientStep is sasl_client_step(conn, serverin, serverinlen,
	// prompt_need, const char **clientout, unsigned *clientoutlen).
	ClientStep(conn, serverIn uintptr, serverInLen uint32, promptNeed, clientOut, clientOutLen uintptr) Status

	// ErrDetail is sasl_errdetail(conn).
	ErrDetail(conn uintptr) uintptr

	// ErrString is sasl_errstring(status, NULL, NULL).
	ErrString(status Status) uintptr

	// NewCallback returns a native function pointer for fn, which must be
	// one of LogFunc, GetPathFunc, GetSimpleFunc or GetSecretFunc.
	// Function pointers are never released; create them once per process.
	NewCallback(fn any) uintptr
}
