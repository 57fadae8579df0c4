package usecase

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/embuild/embuild/internal/domain"
	"github.com/embuild/embuild/internal/infra"
)

const (
	// CacheFileName is the persisted configure cache inside the build
	// directory.
	CacheFileName = "CMakeCache.txt"

	// projectDescriptorFile must exist at the project root.
	projectDescriptorFile = "CMakeLists.txt"

	generatorCacheKey = "CMAKE_GENERATOR"
	homeDirCacheKey   = "CMAKE_HOME_DIRECTORY"

	// interpreterCacheKey records which driver executable configured the
	// build directory. The key name is kept for compatibility with caches
	// written by the pre-existing Python tooling.
	interpreterCacheKey = "PYTHON"

	ccacheCacheKey = "CCACHE_ENABLE"
)

// BuildDirectoryManager guarantees a build directory is valid and
// configured before further build actions run. It is invoked once per CLI
// session and may trigger one configure step through the tool runner.
type BuildDirectoryManager struct {
	runner     domain.ToolRunner
	cache      domain.CacheReader
	prober     domain.GeneratorProber
	resolver   *TargetResolver
	logger     *zap.Logger
	executable func() (string, error)
}

// NewBuildDirectoryManager creates a manager using this process as the
// interpreter identity.
func NewBuildDirectoryManager(
	runner domain.ToolRunner,
	cache domain.CacheReader,
	prober domain.GeneratorProber,
	resolver *TargetResolver,
	logger *zap.Logger,
) *BuildDirectoryManager {
	return &BuildDirectoryManager{
		runner:     runner,
		cache:      cache,
		prober:     prober,
		resolver:   resolver,
		logger:     logger,
		executable: os.Executable,
	}
}

// NewBuildDirectoryManagerWithExecutable creates a manager with an
// injectable executable lookup (for tests).
func NewBuildDirectoryManagerWithExecutable(
	runner domain.ToolRunner,
	cache domain.CacheReader,
	prober domain.GeneratorProber,
	resolver *TargetResolver,
	logger *zap.Logger,
	executable func() (string, error),
) *BuildDirectoryManager {
	m := NewBuildDirectoryManager(runner, cache, prober, resolver, logger)
	m.executable = executable
	return m
}

// Ensure checks that the build directory exists and that the configure
// step has been run there, creating the directory and running the step
// when needed. It validates settings.Generator against the build
// directory: unset adopts the configured one, mismatch is fatal. It may
// also append to settings.DefineCacheEntries.
func (m *BuildDirectoryManager) Ensure(settings *domain.Settings, prog string, alwaysRunConfigure bool) error {
	if !m.prober.ExecutableExists([]string{"cmake", "--version"}) {
		return domain.NewConfigError(`"cmake" must be available on the PATH to use %s`, prog)
	}

	projectDir := settings.ProjectDir
	info, err := os.Stat(projectDir)
	if os.IsNotExist(err) {
		return domain.NewConfigError("Project directory %s does not exist", projectDir)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return domain.NewConfigError("%s must be a project directory", projectDir)
	}
	if _, err := os.Stat(filepath.Join(projectDir, projectDescriptorFile)); err != nil {
		return domain.NewConfigError("%s not found in project directory %s", projectDescriptorFile, projectDir)
	}

	if err := os.MkdirAll(settings.BuildDir, 0o755); err != nil {
		return err
	}

	cachePath := filepath.Join(settings.BuildDir, CacheFileName)
	cache, err := m.cache.Parse(cachePath)
	if err != nil {
		return err
	}

	if err := m.resolver.Resolve(settings, prog, cache); err != nil {
		return err
	}

	ccache := 0
	if settings.Ccache {
		ccache = 1
	}
	settings.DefineCacheEntries = append(settings.DefineCacheEntries,
		fmt.Sprintf("%s=%d", ccacheCacheKey, ccache))

	changed, err := m.cache.WouldChange(cachePath, settings.DefineCacheEntries)
	if err != nil {
		return err
	}
	if alwaysRunConfigure || changed {
		if err := m.runConfigure(settings, prog, cachePath); err != nil {
			return err
		}
	}

	// Re-parse so the checks below reflect the configure run.
	cache, err = m.cache.Parse(cachePath)
	if err != nil {
		return err
	}

	generator, ok := cache.Get(generatorCacheKey)
	if !ok {
		generator, err = infra.DetectGenerator(m.prober, prog)
		if err != nil {
			return err
		}
	}
	if settings.Generator == "" {
		settings.Generator = generator // reuse the previously configured generator
	}
	if generator != settings.Generator {
		return domain.NewConfigErrorWithRemediation(
			fmt.Sprintf("Build is configured for generator '%s' not '%s'.", generator, settings.Generator),
			fmt.Sprintf("Run '%s fullclean' to start again.", prog))
	}

	// Guard against a build directory reused for a different project
	// location. CMAKE_HOME_DIRECTORY may be absent if the configure step
	// failed part way.
	if homeDir, ok := cache.Get(homeDirCacheKey); ok {
		if infra.Realpath(homeDir) != infra.Realpath(projectDir) {
			return domain.NewConfigErrorWithRemediation(
				fmt.Sprintf("Build directory '%s' configured for project '%s' not '%s'.",
					settings.BuildDir, infra.Realpath(homeDir), infra.Realpath(projectDir)),
				fmt.Sprintf("Run '%s fullclean' to start again.", prog))
		}
	}

	// Guard against silently mixing artifacts configured by a different
	// driver executable.
	if configuredWith, ok := cache.Get(interpreterCacheKey); ok {
		self, err := m.executable()
		if err != nil {
			return err
		}
		if configuredWith != self {
			return domain.NewConfigErrorWithRemediation(
				fmt.Sprintf("'%s' is currently active in the environment while the project was configured with '%s'.",
					self, configuredWith),
				fmt.Sprintf("Run '%s fullclean' to start again.", prog))
		}
	}

	return nil
}

// runConfigure assembles and runs the configure step. On any failure the
// persisted cache is removed before the error propagates, so partial cache
// state is never left behind and the next "needs reconfigure" decision
// stays simple.
func (m *BuildDirectoryManager) runConfigure(settings *domain.Settings, prog, cachePath string) error {
	if settings.Generator == "" {
		generator, err := infra.DetectGenerator(m.prober, prog)
		if err != nil {
			return err
		}
		settings.Generator = generator
	}

	self, err := m.executable()
	if err != nil {
		return err
	}

	args := []string{
		"cmake",
		"-G",
		settings.Generator,
		"-DPYTHON_DEPS_CHECKED=1",
		"-DPYTHON=" + self,
		"-DESP_PLATFORM=1",
	}
	if settings.WarnUninitialized {
		args = append(args, "--warn-uninitialized")
	}
	for _, entry := range settings.DefineCacheEntries {
		args = append(args, "-D"+entry)
	}
	args = append(args, settings.ProjectDir)

	m.logger.Debug("running configure step",
		zap.String("generator", settings.Generator),
		zap.Strings("args", args))

	inv := domain.ToolInvocation{
		Name:  "cmake",
		Args:  args,
		Cwd:   settings.BuildDir,
		Hints: !settings.NoHints,
	}
	if err := m.runner.Run(inv); err != nil {
		if rmErr := os.Remove(cachePath); rmErr != nil && !os.IsNotExist(rmErr) {
			m.logger.Warn("failed to remove partial cache", zap.Error(rmErr))
		}
		return err
	}
	return nil
}
