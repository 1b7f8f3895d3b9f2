package native

import "fmt"

// Status is a result code returned by every engine entry point.
// Zero is success, one means another step is needed, negative values are errors.
type Status int32

const (
	StatusContinue  Status = 1
	StatusOK        Status = 0
	StatusFail      Status = -1
	StatusNoMem     Status = -2
	StatusBufOver   Status = -3
	StatusNoMech    Status = -4
	StatusBadProt   Status = -5
	StatusNotDone   Status = -6
	StatusBadParam  Status = -7
	StatusTryAgain  Status = -8
	StatusBadMAC    Status = -9
	StatusBadServ   Status = -10
	StatusWrongMech Status = -11
	StatusNotInit   Status = -12
	StatusInteract  Status = 2
	StatusBadAuth   Status = -13
	StatusNoAuthz   Status = -14
	StatusTooWeak   Status = -15
	StatusEncrypt   Status = -16
	StatusTrans     Status = -17
	StatusExpired   Status = -18
	StatusDisabled  Status = -19
	StatusNoUser    Status = -20
	StatusBadVers   Status = -23
	StatusUnavail   Status = -24
	StatusNoVerify  Status = -26
)

var statusNames = map[Status]string{
	StatusContinue:  "SASL_CONTINUE",
	StatusOK:        "SASL_OK",
	StatusFail:      "SASL_FAIL",
	StatusNoMem:     "SASL_NOMEM",
	StatusBufOver:   "SASL_BUFOVER",
	StatusNoMech:    "SASL_NOMECH",
	StatusBadProt:   "SASL_BADPROT",
	StatusNotDone:   "SASL_NOTDONE",
	StatusBadParam:  "SASL_BADPARAM",
	StatusTryAgain:  "SASL_TRYAGAIN",
	StatusBadMAC:    "SASL_BADMAC",
	StatusBadServ:   "SASL_BADSERV",
	StatusWrongMech: "SASL_WRONGMECH",
	StatusNotInit:   "SASL_NOTINIT",
	StatusInteract:  "SASL_INTERACT",
	StatusBadAuth:   "SASL_BADAUTH",
	StatusNoAuthz:   "SASL_NOAUTHZ",
	StatusTooWeak:   "SASL_TOOWEAK",
	StatusEncrypt:   "SASL_ENCRYPT",
	StatusTrans:     "SASL_TRANS",
	StatusExpired:   "SASL_EXPIRED",
	StatusDisabled:  "SASL_DISABLED",
	StatusNoUser:    "SASL_NOUSER",
	StatusBadVers:   "SASL_BADVERS",
	StatusUnavail:   "SASL_UNAVAIL",
	StatusNoVerify:  "SASL_NOVERIFY",
}

// String returns the symbolic name of the status, or its number if unknown.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SASL(%d)", int32(s))
}

// Failed reports whether s is an error status.
func (s Status) Failed() bool {
	return s < 0
}
