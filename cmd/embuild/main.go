// Package main is the CLI entry point for embuild.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/embuild/embuild/internal/domain"
	"github.com/embuild/embuild/internal/hints"
	"github.com/embuild/embuild/internal/infra"
	"github.com/embuild/embuild/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

const (
	// programNameEnvVar overrides the display name used in remediation
	// text, e.g. when embuild is invoked through a wrapper script.
	programNameEnvVar = "EMBUILD_PROGRAM_NAME"

	// completeEnvVar is set while shell completion is being generated;
	// warnings are suppressed so they cannot corrupt the completion output.
	completeEnvVar = "_EMBUILD_COMPLETE"
)

// prog is the program display name, resolved once at startup.
var prog = programName()

func programName() string {
	if name := os.Getenv(programNameEnvVar); name != "" {
		return name
	}
	return "embuild"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		exitWithError(err)
	}
}

// exitWithError renders the closed error kinds once, at the CLI boundary.
func exitWithError(err error) {
	printer := infra.NewPrinter(os.Getenv(completeEnvVar) != "")

	var fatal *domain.FatalError
	var failure *domain.ToolFailure
	switch {
	case errors.As(err, &fatal):
		printer.Red(fatal.Message)
		if fatal.Remediation != "" {
			printer.Yellow(fatal.Remediation)
		}
	case errors.As(err, &failure):
		printer.Red(failure.Error())
	default:
		printer.Red(err.Error())
	}
	os.Exit(2)
}

var rootCmd = &cobra.Command{
	Use:   "embuild",
	Short: "Build orchestration CLI for CMake-based embedded projects",
	Long: `embuild drives the meta-build configure step and the Ninja or Make
generator for target-specific embedded projects. It keeps the build
directory consistent with the declared target across invocations and
diagnoses common build failures from the captured tool output.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var buildCmd = &cobra.Command{
	Use:   "build [target]...",
	Short: "Build the project (default target 'all')",
	Long: `Ensures the build directory is configured, then runs the given build
targets through the configured generator. With no arguments the 'all'
target is built.`,
	RunE: runBuild,
}

var reconfigureCmd = &cobra.Command{
	Use:   "reconfigure",
	Short: "Re-run the configure step unconditionally",
	Long: `Re-runs the meta-build configure step even when the persisted cache
already matches the requested settings.`,
	RunE: runReconfigure,
}

var setTargetCmd = &cobra.Command{
	Use:   "set-target <target>",
	Short: "Switch the project to a different build target",
	Long: `Sets the build target and re-runs the configure step. The existing
project configuration file is set aside as sdkconfig.old because it was
generated for the previous target.`,
	Args: cobra.ExactArgs(1),
	RunE: runSetTarget,
}

var fullcleanCmd = &cobra.Command{
	Use:   "fullclean",
	Short: "Delete the entire contents of the build directory",
	Long: `Removes everything inside the build directory, forcing a full
reconfiguration on the next build. The directory itself is kept.`,
	RunE: runFullclean,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the build directory configuration",
	Long: `Prints the configuration recorded in the persisted cache (generator,
target, source directory) and any generator processes currently running
in the build directory.`,
	RunE: runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	projectDir string
	buildDir   string
	generator  string
	verbose    bool
	defines    []string
	noHints    bool
	noCcache   bool
	warnUninit bool
	jsonOutput bool
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&projectDir, "project-dir", "C", ".", "Project directory")
	pf.StringVarP(&buildDir, "build-dir", "B", "", "Build directory (default <project-dir>/build)")
	pf.StringVarP(&generator, "generator", "G", "", "Build generator (Ninja or Unix Makefiles)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	pf.StringArrayVarP(&defines, "define-cache-entry", "D", nil, "Extra KEY=VALUE cache entry for the configure step")
	pf.BoolVar(&noHints, "no-hints", false, "Disable output capture and failure hints")
	pf.BoolVar(&noCcache, "no-ccache", false, "Disable the compiler cache")
	pf.BoolVar(&warnUninit, "cmake-warn-uninitialized", false, "Warn about uninitialized values in the project description")

	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(reconfigureCmd)
	rootCmd.AddCommand(setTargetCmd)
	rootCmd.AddCommand(fullcleanCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

// app wires the execution core for one CLI session.
type app struct {
	settings *domain.Settings
	runner   domain.ToolRunner
	cache    domain.CacheReader
	manager  *usecase.BuildDirectoryManager
	printer  *infra.Printer
	logger   *zap.Logger
}

func newApp() (*app, error) {
	settings, err := settingsFromFlags()
	if err != nil {
		return nil, err
	}

	logger := createLogger()
	printer := infra.NewPrinter(os.Getenv(completeEnvVar) != "")

	engine, err := hints.NewEngine()
	if err != nil {
		return nil, err
	}

	runner := infra.NewToolRunner(engine, printer, logger)
	cache := infra.NewCMakeCache()
	prober := infra.NewProber()
	resolver := usecase.NewTargetResolver()
	manager := usecase.NewBuildDirectoryManager(runner, cache, prober, resolver, logger)

	return &app{
		settings: settings,
		runner:   runner,
		cache:    cache,
		manager:  manager,
		printer:  printer,
		logger:   logger,
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

func settingsFromFlags() (*domain.Settings, error) {
	pd, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, err
	}
	bd := buildDir
	if bd == "" {
		bd = filepath.Join(pd, "build")
	} else if bd, err = filepath.Abs(bd); err != nil {
		return nil, err
	}
	return &domain.Settings{
		ProjectDir:         pd,
		BuildDir:           bd,
		Generator:          generator,
		Verbose:            verbose,
		Ccache:             !noCcache,
		NoHints:            noHints,
		WarnUninitialized:  warnUninit,
		DefineCacheEntries: append([]string{}, defines...),
	}, nil
}

func createLogger() *zap.Logger {
	if verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	config.OutputPaths = []string{"stderr"}
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func runBuild(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.manager.Ensure(a.settings, prog, false); err != nil {
		return err
	}

	targets := args
	if len(targets) == 0 {
		targets = []string{"all"}
	}
	for _, target := range targets {
		if err := usecase.RunTarget(a.runner, a.settings, target, usecase.RunTargetOptions{}); err != nil {
			return err
		}
	}
	return nil
}

func runReconfigure(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	return a.manager.Ensure(a.settings, prog, true)
}

func runSetTarget(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	target := args[0]

	// The existing sdkconfig was generated for the previous target; keep a
	// copy instead of silently mixing settings.
	sdkconfig := filepath.Join(a.settings.ProjectDir, "sdkconfig")
	if _, err := os.Stat(sdkconfig); err == nil {
		old := sdkconfig + ".old"
		if err := os.Rename(sdkconfig, old); err != nil {
			return err
		}
		a.printer.Yellow(fmt.Sprintf("Set Target: moved %s to %s", sdkconfig, old))
	}

	a.settings.DefineCacheEntries = append(a.settings.DefineCacheEntries, "IDF_TARGET="+target)
	return a.manager.Ensure(a.settings, prog, true)
}

func runFullclean(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	bd := a.settings.BuildDir
	info, err := os.Stat(bd)
	if os.IsNotExist(err) {
		fmt.Printf("Build directory '%s' not found. Nothing to clean.\n", bd)
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return domain.NewConfigError("%s must be a build directory", bd)
	}

	entries, err := os.ReadDir(bd)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("Build directory '%s' is empty. Nothing to clean.\n", bd)
		return nil
	}

	// Refuse to delete a directory that does not look like ours.
	if _, err := os.Stat(filepath.Join(bd, usecase.CacheFileName)); err != nil {
		return domain.NewConfigError(
			"Directory '%s' doesn't seem to be a build directory. Refusing to automatically delete files in this directory.", bd)
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(bd, entry.Name())); err != nil {
			return err
		}
	}
	fmt.Printf("Done. Removed the contents of the build directory '%s'.\n", bd)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	cachePath := filepath.Join(a.settings.BuildDir, usecase.CacheFileName)
	snapshot, err := a.cache.Parse(cachePath)
	if err != nil {
		return err
	}

	fmt.Println("\n=== Build Directory Status ===")
	fmt.Printf("Project directory: %s\n", a.settings.ProjectDir)
	fmt.Printf("Build directory:   %s\n", a.settings.BuildDir)

	if len(snapshot) == 0 {
		fmt.Println("Configured:        no (cache not found)")
	} else {
		fmt.Println("Configured:        yes")
		if g, ok := snapshot.Get("CMAKE_GENERATOR"); ok {
			fmt.Printf("Generator:         %s\n", g)
		}
		if t, ok := snapshot.Get("IDF_TARGET"); ok {
			fmt.Printf("Target:            %s\n", t)
		}
		if h, ok := snapshot.Get("CMAKE_HOME_DIRECTORY"); ok {
			fmt.Printf("Source directory:  %s\n", h)
		}
		if p, ok := snapshot.Get("PYTHON"); ok {
			fmt.Printf("Configured with:   %s\n", p)
		}
	}

	inspector := infra.NewInspector()
	procs, err := inspector.GeneratorProcesses(a.settings.BuildDir)
	if err != nil {
		a.printer.Warn(fmt.Sprintf("WARNING: cannot inspect running processes: %v", err))
	} else if len(procs) > 0 {
		fmt.Println("\nRunning build tools in this directory:")
		for _, p := range procs {
			fmt.Printf("  - %s (pid %d)\n", p.Name, p.PID)
		}
	}

	fmt.Println("==============================")
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("%s %s (commit: %s, built: %s)\n", prog, Version, Commit, BuildTime)
	}
}
