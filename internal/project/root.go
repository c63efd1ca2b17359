package project

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// DefaultMarkers identify a Gradle project root.
var DefaultMarkers = []string{"gradlew", "gradlew.bat"}

// Root is the result of a root search.
type Root struct {
	Path string
	// Found is false when no marker was seen and Path is the fallback.
	Found bool
	// Marker is the file that matched, empty on fallback.
	Marker string
}

// Locate walks from start towards the filesystem root and returns the first
// directory that contains one of the markers. When none does, the parent of
// start is returned with Found unset.
func Locate(start string, markers []string) Root {
	start, err := filepath.Abs(start)
	if err != nil {
		start = filepath.Clean(start)
	}

	dir := start
	for {
		for _, m := range markers {
			_, err := os.Stat(filepath.Join(dir, m))
			if err == nil {
				return Root{Path: dir, Found: true, Marker: m}
			}
			if !eris.Is(err, os.ErrNotExist) {
				// unreadable directory, give up rather than guess further up
				return Root{Path: filepath.Dir(start)}
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return Root{Path: filepath.Dir(start)}
}

// ExecutableDir returns the directory holding the running binary with
// symlinks resolved.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", eris.Wrap(err, "failed to determine executable path")
	}

	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	return filepath.Dir(exe), nil
}

// Default locates the root starting at the executable's directory.
func Default(markers []string) (Root, error) {
	dir, err := ExecutableDir()
	if err != nil {
		return Root{}, err
	}

	return Locate(dir, markers), nil
}
