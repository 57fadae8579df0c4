package domain

// ToolRunner executes tool invocations.
type ToolRunner interface {
	// Run launches the invocation and blocks until the tool and its stream
	// readers finish. A nil return means exit code zero, or a non-zero exit
	// that a custom failure handler already reported.
	Run(inv ToolInvocation) error
}

// CacheReader parses the persisted configure cache.
type CacheReader interface {
	// Parse returns the snapshot at path, or an empty snapshot when the
	// file does not exist.
	Parse(path string) (CacheSnapshot, error)

	// WouldChange reports whether applying the proposed KEY=VALUE entries
	// would alter the cache at path. A missing cache always changes.
	WouldChange(path string, entries []string) (bool, error)
}

// HintScanner matches captured tool output against the rule database.
type HintScanner interface {
	// Scan reads each file and returns the formatted hints in rule order.
	// A malformed rule is a fatal configuration error, not a skipped rule.
	Scan(paths ...string) ([]string, error)
}

// GeneratorProber checks whether a tool responds to its version command.
type GeneratorProber interface {
	ExecutableExists(args []string) bool
}
