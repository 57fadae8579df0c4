// Package domain contains core build entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

// Settings holds the resolved configuration of one CLI session.
// Every field is declared statically, so an invalid setting access is a
// compile-time error rather than a runtime lookup failure.
type Settings struct {
	ProjectDir        string
	BuildDir          string
	Generator         string // empty means auto-detect or adopt from cache
	Verbose           bool
	Ccache            bool
	NoHints           bool
	WarnUninitialized bool

	// DefineCacheEntries collects KEY=VALUE pairs destined for the
	// configure step as -D arguments. The target resolver may append an
	// inferred target entry here.
	DefineCacheEntries []string
}

// FailureHandler receives the exit code and captured log paths of a failed
// tool invocation. When set, it fully owns reporting: no hint scan runs and
// no generic failure is raised.
type FailureHandler func(exitCode int, stderrLog, stdoutLog string)

// ToolInvocation describes one subprocess launch. It is created by the
// caller and consumed exactly once by a ToolRunner.
type ToolInvocation struct {
	Name string   // display name, e.g. "cmake" or "ninja"
	Args []string // argument vector; Args[0] is the executable
	Cwd  string
	Env  map[string]string // merged over the inherited process environment

	// LogDir is where the log/ directory is created. Tools that do not run
	// in the build directory set it explicitly; empty means Cwd.
	LogDir string

	Hints            bool // capture output and scan it for hints on failure
	ForceProgression bool // redraw "["-prefixed lines in place on a TTY
	Interactive      bool // byte-wise reads for tools that prompt mid-line

	OnFailure FailureHandler
}

// EffectiveLogDir returns the directory under which log files are written.
func (inv ToolInvocation) EffectiveLogDir() string {
	if inv.LogDir != "" {
		return inv.LogDir
	}
	return inv.Cwd
}

// CacheEntry is one parsed line of the persisted configure cache. The type
// tag is carried through but never interpreted.
type CacheEntry struct {
	Type  string
	Value string
}

// CacheSnapshot maps cache keys to their stored entries. It is rebuilt
// fresh on every read; for a duplicate key the last line wins.
type CacheSnapshot map[string]CacheEntry

// Get returns the stored value for key and whether it was present.
func (s CacheSnapshot) Get(key string) (string, bool) {
	e, ok := s[key]
	return e.Value, ok
}
