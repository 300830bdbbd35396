//go:build windows

package traceroute

// IsPrivileged always reports true on Windows: tracert.exe's only
// capability (icmp) needs no elevation.
func IsPrivileged() bool {
	return true
}
