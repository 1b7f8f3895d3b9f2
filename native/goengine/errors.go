package goengine

import (
	"errors"
	"fmt"

	"github.com/smnsjas/go-sasl2/native"
)

// statusError carries the status a failing mechanism reports to the caller.
type statusError struct {
	status native.Status
	msg    string
}

func (e *statusError) Error() string {
	return e.msg
}

func newStatusError(status native.Status, format string, args ...any) error {
	return &statusError{status: status, msg: fmt.Sprintf(format, args...)}
}

// statusOf maps err to the status returned through the ABI.
func statusOf(err error, fallback native.Status) native.Status {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return fallback
}

var errorStrings = map[native.Status]string{
	native.StatusContinue:  "another step is needed in authentication",
	native.StatusOK:        "successful result",
	native.StatusFail:      "generic failure",
	native.StatusNoMem:     "no memory available",
	native.StatusBufOver:   "overflowed buffer",
	native.StatusNoMech:    "no mechanism available",
	native.StatusBadProt:   "bad protocol / cancel",
	native.StatusNotDone:   "can't request information until later in exchange",
	native.StatusBadParam:  "invalid parameter supplied",
	native.StatusTryAgain:  "transient failure (e.g., weak key)",
	native.StatusBadMAC:    "integrity check failed",
	native.StatusNotInit:   "SASL library is not initialized",
	native.StatusInteract:  "needs user interaction",
	native.StatusBadServ:   "server failed mutual authentication step",
	native.StatusWrongMech: "mechanism doesn't support requested feature",
	native.StatusBadAuth:   "authentication failure",
	native.StatusNoAuthz:   "authorization failure",
	native.StatusTooWeak:   "mechanism too weak for this user",
	native.StatusEncrypt:   "encryption needed to use mechanism",
	native.StatusTrans:     "One time use of a plaintext password will enable requested mechanism for user",
	native.StatusExpired:   "passphrase expired, has to be reset",
	native.StatusDisabled:  "account disabled",
	native.StatusNoUser:    "user not found",
	native.StatusBadVers:   "version mismatch with plug-in",
	native.StatusUnavail:   "remote authentication server unavailable",
	native.StatusNoVerify:  "user exists, but no verifier for user",
}

func errorString(status native.Status) string {
	if s, ok := errorStrings[status]; ok {
		return s
	}
	return "undefined error!"
}
