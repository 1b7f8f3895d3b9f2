package goengine

import (
	"sort"
	"strings"

	"github.com/smnsjas/go-sasl2/native"
)

// mechanism is one client-side exchange.
type mechanism interface {
	// start produces the initial response.
	start(s *session) (out []byte, done bool, err error)
	// step answers a server challenge.
	step(s *session, in []byte) (out []byte, done bool, err error)
}

// mechInfo describes a registered mechanism.
type mechInfo struct {
	name string
	// strength orders candidates; higher wins.
	strength int
	// needs lists callbacks that must be registered for the mechanism to be
	// considered.
	needs []native.CallbackID
	// enabled reports whether the engine is configured for the mechanism.
	enabled func(e *Engine) bool
	newMech func(s *session) mechanism
}

var registry = map[string]mechInfo{}

func register(info mechInfo) {
	registry[info.name] = info
}

func (e *Engine) eligible(c *conn, info mechInfo) bool {
	if e.allowed != nil && !e.allowed[info.name] {
		return false
	}
	if info.enabled != nil && !info.enabled(e) {
		return false
	}
	s := &session{e: e, c: c}
	for _, id := range info.needs {
		if !s.has(id) {
			return false
		}
	}
	return true
}

// available lists the mechanisms usable on c, strongest first.
func (e *Engine) available(c *conn) []string {
	var infos []mechInfo
	for _, info := range registry {
		if e.eligible(c, info) {
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].strength > infos[j].strength })
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.name
	}
	return names
}

// choose picks the strongest eligible mechanism among the offered names.
func (e *Engine) choose(c *conn, offered []string) (mechInfo, bool) {
	var best mechInfo
	found := false
	for _, name := range offered {
		info, ok := registry[strings.ToUpper(name)]
		if !ok || !e.eligible(c, info) {
			continue
		}
		if !found || info.strength > best.strength {
			best = info
			found = true
		}
	}
	return best, found
}
