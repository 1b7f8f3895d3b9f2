package native

import (
	"runtime"
	"unsafe"
)

// PtrSize is the size of a native pointer in bytes.
const PtrSize = int(unsafe.Sizeof(uintptr(0)))

// maxCString bounds GoString so that a missing terminator cannot walk memory forever.
const maxCString = 1 << 20

// Block is a buffer outside the Go heap whose address may be handed to
// native code. The address stays valid until Free is called.
type Block struct {
	buf   []byte
	freed bool
}

// Alloc returns a zeroed block of n bytes. A zero-length request still
// yields a valid, unique address.
func Alloc(n int) *Block {
	size := n
	if size < 1 {
		size = 1
	}
	b := &Block{buf: calloc(size)[:n]}
	// A block dropped without Free is still returned.
	runtime.SetFinalizer(b, (*Block).Free)
	return b
}

// CString copies s into a new block with a trailing NUL byte.
func CString(s string) *Block {
	b := Alloc(len(s) + 1)
	copy(b.buf, s)
	return b
}

// OptionalCString is CString for non-empty s and nil otherwise, so that empty
// values reach native code as NULL.
func OptionalCString(s string) *Block {
	if s == "" {
		return nil
	}
	return CString(s)
}

// Addr returns the native address of the block, or 0 for a nil or freed block.
func (b *Block) Addr() uintptr {
	if b == nil || b.freed {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b.buf[:cap(b.buf)])))
}

// Bytes returns the block contents. The slice aliases native-visible memory.
func (b *Block) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.buf
}

// Len returns the usable size of the block.
func (b *Block) Len() int {
	if b == nil {
		return 0
	}
	return len(b.buf)
}

// Zero overwrites the block contents with zero bytes.
func (b *Block) Zero() {
	if b == nil {
		return
	}
	clear(b.buf[:cap(b.buf)])
}

// Free zeroes the block and returns its memory. Free is idempotent. The
// contents must not be read afterwards.
func (b *Block) Free() {
	if b == nil || b.freed {
		return
	}
	b.Zero()
	b.freed = true
	release(b.buf)
	b.buf = nil
	runtime.SetFinalizer(b, nil)
}

// Freed reports whether Free has been called.
func (b *Block) Freed() bool {
	return b != nil && b.freed
}

// NewCell allocates a block large enough to hold one pointer. Cells are used
// for C out-parameters such as const char ** and sasl_conn_t **.
func NewCell() *Block {
	return Alloc(PtrSize)
}

// pointerAt converts a native address into a pointer. Addresses handled by
// this package point outside the Go heap: engine memory or Block memory.
func pointerAt(p uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&p))
}

// GoString copies the NUL-terminated string at p. A zero address yields "".
func GoString(p uintptr) string {
	if p == 0 {
		return ""
	}
	n := 0
	for n < maxCString && *(*byte)(pointerAt(p + uintptr(n))) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(pointerAt(p)), n))
}

// GoBytes copies n bytes starting at p. A zero address or length yields nil.
func GoBytes(p uintptr, n int) []byte {
	if p == 0 || n <= 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(pointerAt(p)), n))
	return out
}

// ReadUintptr reads a pointer-sized value stored at p.
func ReadUintptr(p uintptr) uintptr {
	if p == 0 {
		return 0
	}
	return *(*uintptr)(pointerAt(p))
}

// WriteUintptr stores v at p. Writes to a zero address are ignored, matching
// optional out-parameters in the C ABI.
func WriteUintptr(p, v uintptr) {
	if p == 0 {
		return
	}
	*(*uintptr)(pointerAt(p)) = v
}

// ReadUint32 reads a C unsigned stored at p.
func ReadUint32(p uintptr) uint32 {
	if p == 0 {
		return 0
	}
	return *(*uint32)(pointerAt(p))
}

// WriteUint32 stores a C unsigned at p. Writes to a zero address are ignored.
func WriteUint32(p uintptr, v uint32) {
	if p == 0 {
		return
	}
	*(*uint32)(pointerAt(p)) = v
}
