//go:build !windows

package native

// C unsigned long is pointer-sized on LP64 and ILP32.
const hostLongSize = PtrSize

// NeedsPluginPath reports whether the engine must be told where its
// mechanism plugins live.
const NeedsPluginPath = false

// SocketStartup is a no-op outside Windows.
func SocketStartup() error {
	return nil
}
