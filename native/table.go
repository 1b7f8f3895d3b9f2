package native

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"
)

// maxTableEntries bounds table decoding when no terminator is found.
const maxTableEntries = 64

// ErrUnterminatedTable is returned when a callback table has no list-end entry.
var ErrUnterminatedTable = errors.New("native: callback table is not terminated")

// Entry is one sasl_callback_t: an id, a function pointer and an opaque context.
type Entry struct {
	ID      CallbackID
	Proc    uintptr
	Context uintptr
}

// Layout describes how callback tables and secret structs are laid out in
// native memory. The id field and the secret length header are C unsigned
// longs, whose width differs between platforms (LLP64 vs LP64); pointer
// fields are always pointer-sized.
type Layout struct {
	// LongSize is the width of a C unsigned long in bytes.
	LongSize int

	// PtrSize is the width of a native pointer in bytes.
	PtrSize int

	// Order is the byte order of the target.
	Order binary.ByteOrder
}

// HostLayout is the layout of the running process, selected once at startup.
var HostLayout = Layout{
	LongSize: hostLongSize,
	PtrSize:  PtrSize,
	Order:    binary.NativeEndian,
}

// Validate checks that the field widths are supported.
func (l Layout) Validate() error {
	if l.LongSize != 4 && l.LongSize != 8 {
		return fmt.Errorf("native: unsupported long size %d", l.LongSize)
	}
	if l.PtrSize != 4 && l.PtrSize != 8 {
		return fmt.Errorf("native: unsupported pointer size %d", l.PtrSize)
	}
	if l.Order == nil {
		return errors.New("native: byte order is required")
	}
	return nil
}

// idFieldSize is the id width padded to pointer alignment.
func (l Layout) idFieldSize() int {
	return (l.LongSize + l.PtrSize - 1) / l.PtrSize * l.PtrSize
}

// EntrySize returns the size of one encoded entry.
func (l Layout) EntrySize() int {
	return l.idFieldSize() + 2*l.PtrSize
}

// Encode lays out entries followed by the list-end sentinel.
func (l Layout) Encode(entries []Entry) []byte {
	size := l.EntrySize()
	out := make([]byte, size*(len(entries)+1))
	for i, e := range entries {
		l.putEntry(out[i*size:], e)
	}
	l.putEntry(out[len(entries)*size:], Entry{ID: CallbackListEnd})
	return out
}

func (l Layout) putEntry(b []byte, e Entry) {
	l.putWord(b, l.LongSize, uint64(e.ID))
	off := l.idFieldSize()
	l.putWord(b[off:], l.PtrSize, uint64(e.Proc))
	l.putWord(b[off+l.PtrSize:], l.PtrSize, uint64(e.Context))
}

func (l Layout) putWord(b []byte, width int, v uint64) {
	if width == 4 {
		l.Order.PutUint32(b, uint32(v))
		return
	}
	l.Order.PutUint64(b, v)
}

func (l Layout) word(b []byte, width int) uint64 {
	if width == 4 {
		return uint64(l.Order.Uint32(b))
	}
	return l.Order.Uint64(b)
}

// Decode parses an encoded table up to, but not including, the sentinel.
func (l Layout) Decode(b []byte) ([]Entry, error) {
	size := l.EntrySize()
	var entries []Entry
	for off := 0; off+size <= len(b); off += size {
		e := l.entry(b[off : off+size])
		if e.ID == CallbackListEnd {
			return entries, nil
		}
		entries = append(entries, e)
	}
	return entries, ErrUnterminatedTable
}

func (l Layout) entry(b []byte) Entry {
	off := l.idFieldSize()
	return Entry{
		ID:      CallbackID(l.word(b, l.LongSize)),
		Proc:    uintptr(l.word(b[off:], l.PtrSize)),
		Context: uintptr(l.word(b[off+l.PtrSize:], l.PtrSize)),
	}
}

// DecodeAt reads a table from native memory at p. A zero address is an empty table.
func (l Layout) DecodeAt(p uintptr) ([]Entry, error) {
	if p == 0 {
		return nil, nil
	}
	size := l.EntrySize()
	var entries []Entry
	for i := 0; i < maxTableEntries; i++ {
		raw := unsafe.Slice((*byte)(pointerAt(p+uintptr(i*size))), size)
		e := l.entry(raw)
		if e.ID == CallbackListEnd {
			return entries, nil
		}
		entries = append(entries, e)
	}
	return entries, ErrUnterminatedTable
}

// SecretHeaderSize is the offset of the data bytes in a sasl_secret_t.
func (l Layout) SecretHeaderSize() int {
	return l.LongSize
}

// EncodeSecret writes a sasl_secret_t (length header followed by the raw
// bytes, no terminator) into a new block.
func (l Layout) EncodeSecret(secret []byte) *Block {
	b := Alloc(l.SecretHeaderSize() + len(secret))
	l.putWord(b.buf, l.LongSize, uint64(len(secret)))
	copy(b.buf[l.SecretHeaderSize():], secret)
	return b
}

// DecodeSecretAt copies the data of the sasl_secret_t at p.
func (l Layout) DecodeSecretAt(p uintptr) []byte {
	if p == 0 {
		return nil
	}
	header := unsafe.Slice((*byte)(pointerAt(p)), l.SecretHeaderSize())
	n := l.word(header, l.LongSize)
	if n > maxCString {
		return nil
	}
	out := make([]byte, int(n))
	copy(out, unsafe.Slice((*byte)(pointerAt(p+uintptr(l.SecretHeaderSize()))), int(n)))
	return out
}

// Table is an encoded callback table held in native-visible memory.
// The creator owns the table and must Free it exactly once, no earlier than
// the last native call that may read it.
type Table struct {
	layout  Layout
	entries []Entry
	block   *Block
}

// NewTable encodes entries with the given layout into a native block.
func NewTable(l Layout, entries []Entry) *Table {
	raw := l.Encode(entries)
	block := Alloc(len(raw))
	copy(block.buf, raw)
	return &Table{
		layout:  l,
		entries: append([]Entry(nil), entries...),
		block:   block,
	}
}

// Addr returns the native address of the table, or 0 once freed.
func (t *Table) Addr() uintptr {
	if t == nil {
		return 0
	}
	return t.block.Addr()
}

// Entries returns the entries encoded in the table, without the sentinel.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	return append([]Entry(nil), t.entries...)
}

// Free zeroes and releases the table memory. Free is idempotent.
func (t *Table) Free() {
	if t == nil {
		return
	}
	t.block.Free()
}

// Freed reports whether the table memory has been released.
func (t *Table) Freed() bool {
	return t != nil && t.block.Freed()
}
