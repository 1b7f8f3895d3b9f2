//go:build windows

package native

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// C unsigned long is 32 bits on LLP64.
const hostLongSize = 4

// NeedsPluginPath reports whether the engine must be told where its
// mechanism plugins live. On Windows there is no compiled-in plugin directory.
const NeedsPluginPath = true

// SocketStartup initialises Winsock 2.2 for the process.
func SocketStartup() error {
	var data windows.WSAData
	if err := windows.WSAStartup(uint32(0x0202), &data); err != nil {
		return fmt.Errorf("WSAStartup: %w", err)
	}
	return nil
}
