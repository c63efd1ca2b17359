package launcher

import (
	"os"
	"path/filepath"
)

// Resolve returns the Gradle launcher for goos: the project's wrapper script
// when it exists in root, otherwise the bare command expected on PATH.
func Resolve(root, goos string) string {
	wrapper, fallback := "gradlew", "gradle"
	if goos == "windows" {
		wrapper, fallback = "gradlew.bat", "gradle.bat"
	}

	path := filepath.Join(root, wrapper)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path
	}
	return fallback
}
