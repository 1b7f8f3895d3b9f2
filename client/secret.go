package client

import "github.com/smnsjas/go-sasl2/native"

// secretSlot holds the one password buffer a connection may have handed to
// the engine. The engine reads the buffer until its next password request,
// so a buffer is released only when it is replaced or the slot is cleared.
type secretSlot struct {
	current *native.Block
}

// replace zeroes and frees the current buffer and installs next, which may
// be nil. It is the only way the slot changes.
func (s *secretSlot) replace(next *native.Block) {
	if s.current != nil {
		s.current.Free()
	}
	s.current = next
}

// live reports how many buffers the slot holds (0 or 1).
func (s *secretSlot) live() int {
	if s.current == nil {
		return 0
	}
	return 1
}

// valueSlots holds the last string returned for each simple callback id.
// Values are zeroed when replaced or cleared.
type valueSlots map[native.CallbackID]*native.Block

func (v valueSlots) replace(id native.CallbackID, next *native.Block) {
	if prev := v[id]; prev != nil {
		prev.Free()
	}
	if next == nil {
		delete(v, id)
		return
	}
	v[id] = next
}

func (v valueSlots) clear() {
	for id := range v {
		v.replace(id, nil)
	}
}
