package goengine

import (
	"encoding/asn1"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/iana/chksumtype"
	"github.com/jcmturner/gokrb5/v8/iana/keyusage"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/types"

	"github.com/smnsjas/go-sasl2/native"
)

// tokIDKrbAPReq prefixes the AP-REQ inside the initial context token (RFC 4121 4.1).
const tokIDKrbAPReq = "\x01\x00"

// securityLayerNone is the only security layer offered (RFC 4752 3.1).
const securityLayerNone = 0x01

func init() {
	register(mechInfo{
		name:     "GSSAPI",
		strength: 100,
		enabled:  func(e *Engine) bool { return e.kerberos != nil },
		newMech: func(s *session) mechanism {
			return &gssapiMech{cfg: *s.e.kerberos}
		},
	})
}

// gssapiMech implements the Kerberos V5 GSSAPI mechanism without a
// security layer.
type gssapiMech struct {
	cfg     KerberosConfig
	client  *client.Client
	key     types.EncryptionKey
	authzid string
	sent    bool
}

func (m *gssapiMech) start(s *session) ([]byte, bool, error) {
	if s.c.serverFQDN == "" {
		return nil, false, newStatusError(native.StatusBadParam, "GSSAPI: server name is required")
	}
	cl, err := m.newClient(s)
	if err != nil {
		return nil, false, newStatusError(native.StatusFail, "GSSAPI: %v", err)
	}
	m.client = cl
	if err := cl.Login(); err != nil {
		return nil, false, newStatusError(native.StatusBadAuth, "GSSAPI: kerberos login: %v", err)
	}
	if m.authzid, err = s.user(); err != nil {
		return nil, false, err
	}

	spn := s.c.service + "/" + s.c.serverFQDN
	s.debug("requesting service ticket for " + spn)
	ticket, key, err := cl.GetServiceTicket(spn)
	if err != nil {
		return nil, false, newStatusError(native.StatusUnavail, "GSSAPI: get service ticket: %v", err)
	}

	authenticator, err := types.NewAuthenticator(cl.Credentials.Realm(), cl.Credentials.CName())
	if err != nil {
		return nil, false, newStatusError(native.StatusFail, "GSSAPI: %v", err)
	}
	et, err := crypto.GetEtype(key.KeyType)
	if err != nil {
		return nil, false, newStatusError(native.StatusFail, "GSSAPI: %v", err)
	}
	if err := authenticator.GenerateSeqNumberAndSubKey(key.KeyType, et.GetKeyByteSize()); err != nil {
		return nil, false, newStatusError(native.StatusFail, "GSSAPI: %v", err)
	}
	authenticator.Cksum = types.Checksum{
		CksumType: chksumtype.GSSAPI,
		Checksum:  contextChecksum(),
	}

	apReq, err := messages.NewAPReq(ticket, key, authenticator)
	if err != nil {
		return nil, false, newStatusError(native.StatusFail, "GSSAPI: %v", err)
	}
	raw, err := apReq.Marshal()
	if err != nil {
		return nil, false, newStatusError(native.StatusFail, "GSSAPI: marshal AP-REQ: %v", err)
	}
	token, err := initialContextToken(append([]byte(tokIDKrbAPReq), raw...))
	if err != nil {
		return nil, false, newStatusError(native.StatusFail, "GSSAPI: %v", err)
	}
	m.key = authenticator.SubKey
	return token, false, nil
}

func (m *gssapiMech) newClient(s *session) (*client.Client, error) {
	path := m.cfg.Krb5ConfPath
	if path == "" {
		path = os.Getenv("KRB5_CONFIG")
		if path == "" {
			path = "/etc/krb5.conf"
		}
	}
	conf, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load krb5.conf from %s: %w", path, err)
	}
	realm := m.cfg.Realm
	if realm == "" {
		realm = conf.LibDefaults.DefaultRealm
	}
	opts := []func(*client.Settings){client.DisablePAFXFAST(m.cfg.DisablePAFXFAST)}

	switch {
	case m.cfg.CCachePath != "":
		cc, err := credentials.LoadCCache(m.cfg.CCachePath)
		if err != nil {
			return nil, fmt.Errorf("load ccache from %s: %w", m.cfg.CCachePath, err)
		}
		return client.NewFromCCache(cc, conf, opts...)
	case m.cfg.KeytabPath != "":
		kt, err := keytab.Load(m.cfg.KeytabPath)
		if err != nil {
			return nil, fmt.Errorf("load keytab from %s: %w", m.cfg.KeytabPath, err)
		}
		authname, err := s.authname()
		if err != nil {
			return nil, err
		}
		return client.NewWithKeytab(authname, realm, kt, conf, opts...), nil
	default:
		authname, err := s.authname()
		if err != nil {
			return nil, err
		}
		pass, err := s.password()
		if err != nil {
			return nil, err
		}
		defer clear(pass)
		return client.NewWithPassword(authname, realm, string(pass), conf, opts...), nil
	}
}

func (m *gssapiMech) step(s *session, in []byte) ([]byte, bool, error) {
	if m.sent {
		return nil, false, errNoSteps
	}
	var challenge gssapi.WrapToken
	if err := challenge.Unmarshal(in, true); err != nil {
		// AP-REP for mutual authentication, or an empty token.
		s.debug("skipping non-wrap server token")
		return nil, false, nil
	}
	ok, err := challenge.Verify(m.key, keyusage.GSSAPI_ACCEPTOR_SEAL)
	if !ok {
		return nil, false, newStatusError(native.StatusBadServ, "GSSAPI: verify server token: %v", err)
	}
	if len(challenge.Payload) < 4 || challenge.Payload[0]&securityLayerNone == 0 {
		return nil, false, newStatusError(native.StatusTooWeak, "GSSAPI: server requires a security layer")
	}

	payload := make([]byte, 4, 4+len(m.authzid))
	payload[0] = securityLayerNone
	payload = append(payload, m.authzid...)

	resp, err := gssapi.NewInitiatorWrapToken(payload, m.key)
	if err != nil {
		return nil, false, newStatusError(native.StatusFail, "GSSAPI: %v", err)
	}
	out, err := resp.Marshal()
	if err != nil {
		return nil, false, newStatusError(native.StatusFail, "GSSAPI: %v", err)
	}
	m.sent = true
	return out, true, nil
}

func (m *gssapiMech) close() {
	if m.client != nil {
		m.client.Destroy()
		m.client = nil
	}
}

// contextChecksum is the RFC 4121 4.1.1 checksum field: no channel
// bindings, integrity requested.
func contextChecksum() []byte {
	checksum := make([]byte, 24)
	binary.LittleEndian.PutUint32(checksum[0:4], 16)
	binary.LittleEndian.PutUint32(checksum[20:24], uint32(gssapi.ContextFlagInteg))
	return checksum
}

type contextToken struct {
	OID    asn1.ObjectIdentifier
	Object asn1.RawValue
}

// initialContextToken wraps payload in the RFC 2743 3.1 token framing.
func initialContextToken(payload []byte) ([]byte, error) {
	return asn1.MarshalWithParams(contextToken{
		OID:    asn1.ObjectIdentifier(gssapi.OIDKRB5.OID()),
		Object: asn1.RawValue{FullBytes: payload},
	}, "application")
}
