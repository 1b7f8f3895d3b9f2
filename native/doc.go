// Package native describes the C ABI of a SASL client engine.
//
// Everything that crosses the boundary between Go and the engine is defined
// here: status codes, callback ids, the layout of the callback table, the
// memory blocks whose addresses are handed to native code, and the Engine
// interface itself.
//
// # Memory
//
// Native code only ever sees addresses. Every address handed out by this
// package refers to a [Block] allocated outside the Go heap (mmap on unix,
// VirtualAlloc on Windows), so addresses may be converted back to pointers on
// either side of the boundary. Blocks are zeroed before their memory is
// returned.
//
// # Callbacks
//
// The engine calls back into Go through function pointers obtained from
// [Engine.NewCallback]. Callback functions must use the fixed signatures
// [LogFunc], [GetPathFunc], [GetSimpleFunc] and [GetSecretFunc]; all
// arguments are passed as uintptr so that the same function works with every
// backend.
package native
