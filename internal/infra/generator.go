package infra

import (
	"os/exec"
	"runtime"
	"strconv"

	"github.com/embuild/embuild/internal/domain"
)

// Generator describes one supported build backend.
type Generator struct {
	Name        string
	Command     []string // base argument vector for running targets
	Version     []string // version probe argument vector
	VerboseFlag string
	Progression bool // whether its output supports progress redraw
}

// Generators lists the supported backends in auto-detection preference
// order: the first one whose version probe succeeds wins.
func Generators() []Generator {
	return []Generator{
		{
			Name:        "Ninja",
			Command:     []string{"ninja"},
			Version:     []string{"ninja", "--version"},
			VerboseFlag: "-v",
			Progression: true,
		},
		{
			Name:        "Unix Makefiles",
			Command:     []string{"make", "-j" + strconv.Itoa(runtime.NumCPU()+2)},
			Version:     []string{"make", "--version"},
			VerboseFlag: "VERBOSE=1",
		},
	}
}

// GeneratorByName returns the generator with the given cache name.
func GeneratorByName(name string) (Generator, bool) {
	for _, g := range Generators() {
		if g.Name == name {
			return g, true
		}
	}
	return Generator{}, false
}

// CommandRunner abstracts command execution for testing.
type CommandRunner interface {
	Output(name string, args ...string) ([]byte, error)
}

// RealCommandRunner executes real system commands.
type RealCommandRunner struct{}

// Output executes a command and returns its stdout.
func (RealCommandRunner) Output(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

// Prober implements domain.GeneratorProber by running version commands.
type Prober struct {
	runner CommandRunner
}

// NewProber creates a prober using real command execution.
func NewProber() *Prober {
	return &Prober{runner: RealCommandRunner{}}
}

// NewProberWithRunner creates a prober with an injectable runner (for tests).
func NewProberWithRunner(r CommandRunner) *Prober {
	return &Prober{runner: r}
}

// ExecutableExists reports whether the argument vector runs successfully.
func (p *Prober) ExecutableExists(args []string) bool {
	if len(args) == 0 {
		return false
	}
	_, err := p.runner.Output(args[0], args[1:]...)
	return err == nil
}

// DetectGenerator returns the name of the first generator whose version
// probe succeeds. Fatal when none is usable.
func DetectGenerator(p domain.GeneratorProber, prog string) (string, error) {
	for _, g := range Generators() {
		if p.ExecutableExists(g.Version) {
			return g.Name, nil
		}
	}
	return "", domain.NewConfigError(
		"To use %s, either the 'ninja' or 'GNU make' build tool must be available in the PATH", prog)
}

// Ensure Prober implements domain.GeneratorProber.
var _ domain.GeneratorProber = (*Prober)(nil)
