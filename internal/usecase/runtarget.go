package usecase

import (
	"os"

	"github.com/embuild/embuild/internal/domain"
	"github.com/embuild/embuild/internal/infra"
)

// RunTargetOptions adjusts how a build target is executed.
type RunTargetOptions struct {
	Env         map[string]string
	OnFailure   domain.FailureHandler
	Interactive bool
}

// RunTarget executes a named build target in the build directory through
// the configured generator.
func RunTarget(runner domain.ToolRunner, settings *domain.Settings, targetName string, opts RunTargetOptions) error {
	generator, ok := infra.GeneratorByName(settings.Generator)
	if !ok {
		return domain.NewConfigError("unknown build generator '%s'", settings.Generator)
	}

	args := append([]string{}, generator.Command...)
	if settings.Verbose {
		args = append(args, generator.VerboseFlag)
	}
	args = append(args, targetName)

	env := opts.Env
	if env == nil {
		env = map[string]string{}
	}
	// Make and Ninja strip color escape sequences when they see their
	// stdout redirected. If our stdout is a real terminal, tell them to
	// keep the colors. (Requires Ninja v1.9.0 or later.)
	if infra.IsTerminal(os.Stdout.Fd()) {
		if _, ok := env["CLICOLOR_FORCE"]; !ok {
			env["CLICOLOR_FORCE"] = "1"
		}
	}

	return runner.Run(domain.ToolInvocation{
		Name:             generator.Command[0],
		Args:             args,
		Cwd:              settings.BuildDir,
		Env:              env,
		Hints:            !settings.NoHints,
		ForceProgression: generator.Progression,
		Interactive:      opts.Interactive,
		OnFailure:        opts.OnFailure,
	})
}
