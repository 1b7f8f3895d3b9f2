package goengine

import (
	"github.com/xdg-go/scram"

	"github.com/smnsjas/go-sasl2/native"
)

func init() {
	for _, m := range []struct {
		name     string
		strength int
		hash     scram.HashGeneratorFcn
	}{
		{"SCRAM-SHA-1", 80, scram.SHA1},
		{"SCRAM-SHA-256", 85, scram.SHA256},
		{"SCRAM-SHA-512", 90, scram.SHA512},
	} {
		hash := m.hash
		register(mechInfo{
			name:     m.name,
			strength: m.strength,
			needs:    []native.CallbackID{native.CallbackAuthName, native.CallbackPass},
			newMech:  func(*session) mechanism { return &scramMech{hash: hash} },
		})
	}
}

// scramMech runs a SCRAM conversation: client-first, client-final, then
// verification of the server signature.
type scramMech struct {
	hash  scram.HashGeneratorFcn
	convo *scram.ClientConversation
}

func (m *scramMech) start(s *session) ([]byte, bool, error) {
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

	client, err := m.hash.NewClient(authname, string(pass), authzid)
	if err != nil {
		return nil, false, newStatusError(native.StatusBadParam, "SCRAM: %v", err)
	}
	m.convo = client.NewConversation()
	first, err := m.convo.Step("")
	if err != nil {
		return nil, false, newStatusError(native.StatusFail, "SCRAM: %v", err)
	}
	return []byte(first), false, nil
}

func (m *scramMech) step(_ *session, in []byte) ([]byte, bool, error) {
	out, err := m.convo.Step(string(in))
	if err != nil {
		if m.convo.Done() {
			return nil, false, newStatusError(native.StatusBadServ, "SCRAM: %v", err)
		}
		return nil, false, newStatusError(native.StatusBadAuth, "SCRAM: %v", err)
	}
	if m.convo.Done() {
		if !m.convo.Valid() {
			return nil, false, newStatusError(native.StatusBadServ, "SCRAM: server signature mismatch")
		}
		return []byte(out), true, nil
	}
	return []byte(out), false, nil
}
