package main

import "runtime"

// currentSubdir maps the running process's OS/arch to the conda
// platform subdir naming convention (e.g. "linux-64", "osx-arm64").
func currentSubdir() string {
	switch runtime.GOOS {
	case "linux":
		switch runtime.GOARCH {
		case "arm64":
			return "linux-aarch64"
		default:
			return "linux-64"
		}
	case "darwin":
		switch runtime.GOARCH {
		case "arm64":
			return "osx-arm64"
		default:
			return "osx-64"
		}
	case "windows":
		return "win-64"
	default:
		return "noarch"
	}
}
