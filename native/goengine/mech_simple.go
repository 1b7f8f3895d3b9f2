package goengine

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"

	gosasl "github.com/emersion/go-sasl"

	"github.com/smnsjas/go-sasl2/native"
)

func init() {
	register(mechInfo{
		name:     gosasl.Plain,
		strength: 30,
		needs:    []native.CallbackID{native.CallbackAuthName, native.CallbackPass},
		newMech:  func(*session) mechanism { return &plainMech{} },
	})
	register(mechInfo{
		name:     gosasl.Login,
		strength: 20,
		needs:    []native.CallbackID{native.CallbackAuthName, native.CallbackPass},
		newMech:  func(*session) mechanism { return &loginMech{} },
	})
	register(mechInfo{
		name:     gosasl.Anonymous,
		strength: 5,
		newMech:  func(*session) mechanism { return &anonymousMech{} },
	})
	register(mechInfo{
		name:     gosasl.External,
		strength: 10,
		newMech:  func(*session) mechanism { return &externalMech{} },
	})
	register(mechInfo{
		name:     "CRAM-MD5",
		strength: 50,
		needs:    []native.CallbackID{native.CallbackAuthName, native.CallbackPass},
		newMech:  func(*session) mechanism { return &cramMD5Mech{} },
	})
}

var errNoSteps = newStatusError(native.StatusBadProt, "mechanism takes no further steps")

// plainMech sends authzid NUL authcid NUL password as the initial response.
type plainMech struct{}

func (plainMech) start(s *session) ([]byte, bool, error) {
	authname, err := s.authname()
	if err != nil {
		return nil, false, err
	}
	authzid, err := s.user()
	if err != nil {
		return nil, false, err
	}
	pass, err := s.password()
	if err != nil {
		return nil, false, err
	}
	defer clear(pass)
	if authzid == authname {
		authzid = ""
	}
	_, ir, err := gosasl.NewPlainClient(authzid, authname, string(pass)).Start()
	return ir, true, err
}

func (plainMech) step(*session, []byte) ([]byte, bool, error) {
	return nil, false, errNoSteps
}

// loginMech sends the user name first and the password on the next
// challenge. The password is only requested once the server asks for it.
type loginMech struct {
	username string
}

func (m *loginMech) start(s *session) ([]byte, bool, error) {
	authname, err := s.authname()
	if err != nil {
		return nil, false, err
	}
	m.username = authname
	_, ir, err := gosasl.NewLoginClient(authname, "").Start()
	return ir, false, err
}

func (m *loginMech) step(s *session, in []byte) ([]byte, bool, error) {
	if bytes.EqualFold(in, []byte("Username:")) {
		return []byte(m.username), false, nil
	}
	pass, err := s.password()
	if err != nil {
		return nil, false, err
	}
	out, err := gosasl.NewLoginClient(m.username, string(pass)).Next(in)
	clear(pass)
	if err != nil {
		return nil, false, newStatusError(native.StatusBadProt, "LOGIN: %v", err)
	}
	return out, true, nil
}

// anonymousMech sends a trace string, the authentication name when one is
// available.
type anonymousMech struct{}

func (anonymousMech) start(s *session) ([]byte, bool, error) {
	trace, _, err := s.simple(native.CallbackAuthName)
	if err != nil {
		return nil, false, err
	}
	if trace == "" {
		trace = "anonymous"
	}
	_, ir, err := gosasl.NewAnonymousClient(trace).Start()
	return ir, true, err
}

func (anonymousMech) step(*session, []byte) ([]byte, bool, error) {
	return nil, false, errNoSteps
}

// externalMech relies on credentials established outside SASL and sends
// only the authorization identity.
type externalMech struct{}

func (externalMech) start(s *session) ([]byte, bool, error) {
	authzid, err := s.user()
	if err != nil {
		return nil, false, err
	}
	_, ir, err := gosasl.NewExternalClient(authzid).Start()
	return ir, true, err
}

func (externalMech) step(*session, []byte) ([]byte, bool, error) {
	return nil, false, errNoSteps
}

// cramMD5Mech answers the server challenge with user SP hex(HMAC-MD5(password, challenge)).
type cramMD5Mech struct{}

func (cramMD5Mech) start(*session) ([]byte, bool, error) {
	return nil, false, nil
}

func (cramMD5Mech) step(s *session, in []byte) ([]byte, bool, error) {
	if len(in) == 0 {
		return nil, false, newStatusError(native.StatusBadProt, "CRAM-MD5: empty challenge")
	}
	authname, err := s.authname()
	if err != nil {
		return nil, false, err
	}
	pass, err := s.password()
	if err != nil {
		return nil, false, err
	}
	defer clear(pass)
	mac := hmac.New(md5.New, pass)
	mac.Write(in)
	return []byte(authname + " " + hex.EncodeToString(mac.Sum(nil))), true, nil
}
