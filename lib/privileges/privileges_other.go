//go:build !windows

package privileges

// IsElevated always reports false off Windows; the partitioning utility and
// the CIM queries only exist there.
func IsElevated() bool {
	return false
}
