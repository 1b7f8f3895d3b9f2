package native

import "fmt"

// CallbackID identifies the role of an entry in a callback table.
type CallbackID uint32

const (
	// CallbackListEnd terminates a callback table.
	CallbackListEnd CallbackID = 0
	CallbackGetOpt  CallbackID = 1
	CallbackLog     CallbackID = 2
	CallbackGetPath CallbackID = 3

	CallbackUser     CallbackID = 0x4001
	CallbackAuthName CallbackID = 0x4002
	CallbackLanguage CallbackID = 0x4003
	CallbackPass     CallbackID = 0x4004
)

// String returns the symbolic name of the callback id.
func (id CallbackID) String() string {
	switch id {
	case CallbackListEnd:
		return "SASL_CB_LIST_END"
	case CallbackGetOpt:
		return "SASL_CB_GETOPT"
	case CallbackLog:
		return "SASL_CB_LOG"
	case CallbackGetPath:
		return "SASL_CB_GETPATH"
	case CallbackUser:
		return "SASL_CB_USER"
	case CallbackAuthName:
		return "SASL_CB_AUTHNAME"
	case CallbackLanguage:
		return "SASL_CB_LANGUAGE"
	case CallbackPass:
		return "SASL_CB_PASS"
	}
	return fmt.Sprintf("SASL_CB(0x%x)", uint32(id))
}

// LogLevel is the severity passed to the logging callback.
type LogLevel int32

const (
	LogNone  LogLevel = 0
	LogErr   LogLevel = 1
	LogFail  LogLevel = 2
	LogWarn  LogLevel = 3
	LogNote  LogLevel = 4
	LogDebug LogLevel = 5
	LogTrace LogLevel = 6
	LogPass  LogLevel = 7
)

// Client flags accepted by new_connection.
const (
	FlagSuccessData uint32 = 0x0004
	FlagNeedProxy   uint32 = 0x0008
	FlagNeedHTTP    uint32 = 0x0010
)

// Callback function signatures. Arguments mirror the C prototypes with every
// pointer and integer widened to uintptr; the return value is a Status.
type (
	// LogFunc is sasl_log_t: (context, level, message).
	LogFunc func(context, level, message uintptr) uintptr

	// GetPathFunc is sasl_getpath_t: (context, const char **path).
	GetPathFunc func(context, path uintptr) uintptr

	// GetSimpleFunc is sasl_getsimple_t: (context, id, const char **result, unsigned *len).
	GetSimpleFunc func(context, id, result, length uintptr) uintptr

	// GetSecretFunc is sasl_getsecret_t: (conn, context, id, sasl_secret_t **psecret).
	GetSecretFunc func(conn, context, id, psecret uintptr) uintptr
)
