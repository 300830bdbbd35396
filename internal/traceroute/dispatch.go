package traceroute

import "runtime"

// For selects the Driver for the named OS (runtime.GOOS spelling),
// falling back to Default for anything unrecognized.
func For(goos string) Driver {
	switch goos {
	case "darwin", "openbsd", "freebsd", "netbsd":
		return BSD{}
	case "linux":
		return Linux{}
	case "windows":
		return Windows{}
	default:
		return Default{}
	}
}

// Current returns the Driver for the platform this binary is running on.
func Current() Driver {
	return For(runtime.GOOS)
}
