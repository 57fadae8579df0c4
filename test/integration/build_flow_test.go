//go:build integration

package integration

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/embuild/embuild/internal/domain"
	"github.com/embuild/embuild/internal/hints"
	"github.com/embuild/embuild/internal/infra"
	"github.com/embuild/embuild/internal/usecase"
)

// cmakeScript stands in for the real configure tool. It answers the
// availability probe and otherwise writes a cache file into the working
// directory derived from its argument vector, appending a line to
// $EMBUILD_CMAKE_CALLS per configure run.
const cmakeScript = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "cmake version 3.28.1"
  exit 0
fi
if [ -n "$EMBUILD_CMAKE_CALLS" ]; then
  echo run >> "$EMBUILD_CMAKE_CALLS"
fi
gen=""
prev=""
proj=""
for a in "$@"; do
  if [ "$prev" = "-G" ]; then gen="$a"; fi
  prev="$a"
  proj="$a"
done
{
  echo "CMAKE_GENERATOR:INTERNAL=$gen"
  echo "CMAKE_HOME_DIRECTORY:INTERNAL=$proj"
  for a in "$@"; do
    case "$a" in
      -D*) printf '%s\n' "${a#-D}" | sed 's/=/:UNINITIALIZED=/' ;;
    esac
  done
} > CMakeCache.txt
`

// ninjaScript answers the availability probe and records which target it
// was asked to build.
const ninjaScript = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "1.11.1"
  exit 0
fi
last=all
for a in "$@"; do last="$a"; done
touch "built-$last"
`

var _ = Describe("Build Flow", func() {
	var (
		tmpDir     string
		projectDir string
		buildDir   string
		callsFile  string
		origPath   string
		console    *bytes.Buffer
		runner     domain.ToolRunner
		manager    *usecase.BuildDirectoryManager
	)

	writeScript := func(name, content string) {
		err := os.WriteFile(filepath.Join(tmpDir, "bin", name), []byte(content), 0o755)
		Expect(err).NotTo(HaveOccurred())
	}

	settings := func() *domain.Settings {
		return &domain.Settings{ProjectDir: projectDir, BuildDir: buildDir}
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "embuild-integration-*")
		Expect(err).NotTo(HaveOccurred())

		projectDir = filepath.Join(tmpDir, "project")
		buildDir = filepath.Join(tmpDir, "build")
		callsFile = filepath.Join(tmpDir, "cmake-calls")
		Expect(os.MkdirAll(projectDir, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(projectDir, "CMakeLists.txt"), []byte("project(app)\n"), 0o644)).To(Succeed())

		Expect(os.MkdirAll(filepath.Join(tmpDir, "bin"), 0o755)).To(Succeed())
		writeScript("cmake", cmakeScript)
		writeScript("ninja", ninjaScript)

		origPath = os.Getenv("PATH")
		Expect(os.Setenv("PATH", filepath.Join(tmpDir, "bin")+":"+origPath)).To(Succeed())
		Expect(os.Setenv("EMBUILD_CMAKE_CALLS", callsFile)).To(Succeed())

		engine, err := hints.NewEngine()
		Expect(err).NotTo(HaveOccurred())

		console = &bytes.Buffer{}
		runner = infra.NewToolRunner(engine, infra.NewPrinterTo(console, false), zap.NewNop())
		manager = usecase.NewBuildDirectoryManagerWithExecutable(
			runner,
			infra.NewCMakeCache(),
			infra.NewProber(),
			usecase.NewTargetResolverWithEnv(func(string) string { return "" }),
			zap.NewNop(),
			func() (string, error) { return "/opt/embuild", nil },
		)
	})

	AfterEach(func() {
		os.Setenv("PATH", origPath)
		os.Unsetenv("EMBUILD_CMAKE_CALLS")
		os.RemoveAll(tmpDir)
	})

	configureRuns := func() int {
		data, err := os.ReadFile(callsFile)
		if os.IsNotExist(err) {
			return 0
		}
		Expect(err).NotTo(HaveOccurred())
		return bytes.Count(data, []byte("\n"))
	}

	Describe("Ensure", func() {
		Context("when the build directory is new", func() {
			It("creates it and runs the configure step", func() {
				Expect(manager.Ensure(settings(), "embuild", false)).To(Succeed())

				Expect(configureRuns()).To(Equal(1))
				_, err := os.Stat(filepath.Join(buildDir, usecase.CacheFileName))
				Expect(err).NotTo(HaveOccurred())
			})

			It("records the detected generator in the cache", func() {
				s := settings()
				Expect(manager.Ensure(s, "embuild", false)).To(Succeed())
				Expect(s.Generator).To(Equal("Ninja"))

				cache, err := infra.NewCMakeCache().Parse(filepath.Join(buildDir, usecase.CacheFileName))
				Expect(err).NotTo(HaveOccurred())
				generator, ok := cache.Get("CMAKE_GENERATOR")
				Expect(ok).To(BeTrue())
				Expect(generator).To(Equal("Ninja"))
			})
		})

		Context("when the directory is already configured", func() {
			It("does not run the configure step again", func() {
				Expect(manager.Ensure(settings(), "embuild", false)).To(Succeed())
				Expect(manager.Ensure(settings(), "embuild", false)).To(Succeed())

				Expect(configureRuns()).To(Equal(1))
			})

			It("reconfigures when a cache entry changes", func() {
				Expect(manager.Ensure(settings(), "embuild", false)).To(Succeed())

				s := settings()
				s.DefineCacheEntries = []string{"FOO=bar"}
				Expect(manager.Ensure(s, "embuild", false)).To(Succeed())

				Expect(configureRuns()).To(Equal(2))
			})
		})

		Context("when the directory belongs to another project", func() {
			It("refuses with a fullclean remediation", func() {
				Expect(manager.Ensure(settings(), "embuild", false)).To(Succeed())

				otherProject := filepath.Join(tmpDir, "other")
				Expect(os.MkdirAll(otherProject, 0o755)).To(Succeed())
				Expect(os.WriteFile(filepath.Join(otherProject, "CMakeLists.txt"), []byte("project(other)\n"), 0o644)).To(Succeed())

				err := manager.Ensure(&domain.Settings{ProjectDir: otherProject, BuildDir: buildDir}, "embuild", false)
				Expect(err).To(HaveOccurred())

				var fatal *domain.FatalError
				Expect(errors.As(err, &fatal)).To(BeTrue())
				Expect(fatal.Message).To(ContainSubstring("configured for project"))
				Expect(fatal.Remediation).To(ContainSubstring("fullclean"))
			})
		})
	})

	Describe("RunTarget", func() {
		It("invokes the generator in the build directory", func() {
			s := settings()
			Expect(manager.Ensure(s, "embuild", false)).To(Succeed())

			Expect(usecase.RunTarget(runner, s, "all", usecase.RunTargetOptions{})).To(Succeed())

			_, err := os.Stat(filepath.Join(buildDir, "built-all"))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Failure hints", func() {
		It("scans captured logs and prints matching hints", func() {
			inv := domain.ToolInvocation{
				Name:  "sh",
				Args:  []string{"/bin/sh", "-c", "echo \"ld: undefined reference to \\`app_main'\" >&2; exit 1"},
				Cwd:   buildDir,
				Hints: true,
			}
			Expect(os.MkdirAll(buildDir, 0o755)).To(Succeed())

			err := runner.Run(inv)
			Expect(err).To(HaveOccurred())

			var failure *domain.ToolFailure
			Expect(errors.As(err, &failure)).To(BeTrue())
			Expect(failure.ExitCode).To(Equal(1))

			logged, readErr := os.ReadFile(failure.StderrLog)
			Expect(readErr).NotTo(HaveOccurred())
			Expect(string(logged)).To(ContainSubstring("undefined reference"))

			Expect(console.String()).To(ContainSubstring("HINT: Undefined reference to app_main"))
		})
	})
})
