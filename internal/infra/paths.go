package infra

import (
	"path/filepath"
	"runtime"
	"strings"
)

// Realpath returns the canonical path with normalized case. Case folding
// matters on Windows where build directories may be reached through paths
// that differ only in case; elsewhere it resolves symlinks only.
func Realpath(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		abs = filepath.Clean(resolved)
	}
	if runtime.GOOS == "windows" {
		abs = strings.ToLower(abs)
	}
	return abs
}
