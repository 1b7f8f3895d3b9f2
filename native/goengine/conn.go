package goengine

import (
	"fmt"

	"github.com/smnsjas/go-sasl2/native"
)

// conn is the engine side of a sasl_conn_t.
type conn struct {
	addr       uintptr
	service    string
	serverFQDN string
	localAddr  string
	remoteAddr string
	flags      uint32
	callbacks  uintptr

	mech     mechanism
	mechName string
	started  bool
	done     bool
	failed   bool

	// Buffers handed to the caller. Each stays valid until it is replaced
	// or the connection is disposed.
	out       *native.Block
	mechBlock *native.Block
	list      *native.Block
	detail    *native.Block
}

// replace frees *slot and stores b in it.
func (c *conn) replace(slot **native.Block, b *native.Block) *native.Block {
	if *slot != nil {
		(*slot).Free()
	}
	*slot = b
	return b
}

// output publishes out through the clientout cells. An empty output is a
// NULL pointer with length zero.
func (c *conn) output(clientOut, clientOutLen uintptr, out []byte) {
	var addr uintptr
	if len(out) > 0 {
		b := native.Alloc(len(out))
		copy(b.Bytes(), out)
		addr = c.replace(&c.out, b).Addr()
	} else {
		c.replace(&c.out, nil)
	}
	native.WriteUintptr(clientOut, addr)
	native.WriteUint32(clientOutLen, uint32(len(out)))
}

// fail marks the connection failed and records the detail message.
func (c *conn) fail(e *Engine, status native.Status, msg string) native.Status {
	c.failed = true
	detail := fmt.Sprintf("SASL(%d): %s: %s", int32(status), errorString(status), msg)
	c.replace(&c.detail, native.CString(detail))
	e.log(c, native.LogFail, detail)
	return status
}

func (c *conn) release() {
	for _, slot := range []**native.Block{&c.out, &c.mechBlock, &c.list, &c.detail} {
		c.replace(slot, nil)
	}
	if closer, ok := c.mech.(interface{ close() }); ok {
		closer.close()
	}
	c.mech = nil
}
