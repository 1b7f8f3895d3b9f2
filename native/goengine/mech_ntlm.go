package goengine

import (
	"github.com/Azure/go-ntlmssp"

	"github.com/smnsjas/go-sasl2/native"
)

func init() {
	register(mechInfo{
		name:     "NTLM",
		strength: 60,
		needs:    []native.CallbackID{native.CallbackAuthName, native.CallbackPass},
		newMech: func(s *session) mechanism {
			return &ntlmMech{cfg: s.e.ntlm}
		},
	})
}

// ntlmMech sends a negotiate message and answers the challenge with an
// authenticate message.
type ntlmMech struct {
	cfg          NTLMConfig
	user         string
	domainNeeded bool
}

func (m *ntlmMech) start(s *session) ([]byte, bool, error) {
	authname, err := s.authname()
	if err != nil {
		return nil, false, err
	}
	user, domain, domainNeeded := ntlmssp.GetDomain(authname)
	if m.cfg.Domain != "" {
		domain = m.cfg.Domain
		domainNeeded = true
	}
	m.user = user
	m.domainNeeded = domainNeeded

	msg, err := ntlmssp.NewNegotiateMessage(domain, m.cfg.Workstation)
	if err != nil {
		return nil, false, newStatusError(native.StatusFail, "NTLM: %v", err)
	}
	return msg, false, nil
}

func (m *ntlmMech) step(s *session, in []byte) ([]byte, bool, error) {
	if len(in) == 0 {
		return nil, false, newStatusError(native.StatusBadProt, "NTLM: challenge message is empty")
	}
	pass, err := s.password()
	if err != nil {
		return nil, false, err
	}
	defer clear(pass)
	out, err := ntlmssp.ProcessChallenge(in, m.user, string(pass), m.domainNeeded)
	if err != nil {
		return nil, false, newStatusError(native.StatusBadProt, "NTLM: %v", err)
	}
	return out, true, nil
}
