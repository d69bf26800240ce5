//go:build windows

package privileges

import "golang.org/x/sys/windows"

// IsElevated reports whether the current process token carries administrator
// rights. Partitioning a raw disk is refused without them.
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
