package infra

import (
	"github.com/shirou/gopsutil/v3/process"
)

// BuildProcess describes a build tool process observed on the system.
type BuildProcess struct {
	PID  int32
	Name string
	Cwd  string
}

// Inspector reports generator and driver processes currently running in a
// build directory. The build directory assumes single-writer usage, so the
// status command surfaces concurrent tools instead of guessing.
type Inspector struct{}

// NewInspector creates a process inspector.
func NewInspector() *Inspector {
	return &Inspector{}
}

// GeneratorProcesses returns processes whose name matches a known
// generator command (or the meta-build driver) and whose working directory
// is buildDir.
func (i *Inspector) GeneratorProcesses(buildDir string) ([]BuildProcess, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	known := map[string]bool{"cmake": true}
	for _, g := range Generators() {
		known[g.Command[0]] = true
	}

	normalized := Realpath(buildDir)
	var found []BuildProcess
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // process may have exited
		}
		if !known[name] {
			continue
		}
		cwd, err := p.Cwd()
		if err != nil {
			continue
		}
		if Realpath(cwd) == normalized {
			found = append(found, BuildProcess{PID: p.Pid, Name: name, Cwd: cwd})
		}
	}
	return found, nil
}
