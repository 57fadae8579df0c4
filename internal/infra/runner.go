package infra

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/embuild/embuild/internal/domain"
)

const logDirName = "log"

// interactiveBufferMax bounds the bytes held back while waiting for a
// complete UTF-8 sequence. Multi-byte characters contain up to 4 bytes;
// anything longer is flushed lossily.
const interactiveBufferMax = 4

// ToolRunnerImpl implements domain.ToolRunner. With hints enabled, the
// tool's stdout and stderr are drained by two independent goroutines into
// per-stream log files and the console, so neither stream can block the
// other while the tool writes into a full pipe.
type ToolRunnerImpl struct {
	hints   domain.HintScanner
	printer *Printer
	logger  *zap.Logger
}

// NewToolRunner creates a tool runner.
func NewToolRunner(hints domain.HintScanner, printer *Printer, logger *zap.Logger) domain.ToolRunner {
	return &ToolRunnerImpl{hints: hints, printer: printer, logger: logger}
}

// Run launches the invocation and blocks until the tool and both stream
// readers finish. Log files persist on disk regardless of outcome.
func (r *ToolRunnerImpl) Run(inv domain.ToolInvocation) error {
	display := make([]string, len(inv.Args))
	for i, a := range inv.Args {
		display[i] = quoteArg(a)
	}
	fmt.Printf("Running %s in directory %s\n", inv.Name, quoteArg(inv.Cwd))
	fmt.Printf("Executing \"%s\"...\n", strings.Join(display, " "))

	env := mergedEnv(inv.Env)

	if !inv.Hints {
		return r.runPassthrough(inv, env)
	}
	return r.runCaptured(inv, env)
}

// quoteArg quotes arguments containing whitespace for display; arguments
// that already carry quotes pass through unchanged.
func quoteArg(arg string) string {
	if strings.HasPrefix(arg, "'") || strings.HasPrefix(arg, `"`) {
		return arg
	}
	if strings.IndexFunc(arg, unicode.IsSpace) >= 0 {
		return "'" + arg + "'"
	}
	return arg
}

// mergedEnv merges the invocation overrides over the inherited environment.
func mergedEnv(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return os.Environ()
	}
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		merged[key] = value
	}
	for key, value := range overrides {
		merged[key] = value
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, key+"="+merged[key])
	}
	return env
}

// runPassthrough runs the tool with streams inherited from this process;
// only the exit code is checked.
func (r *ToolRunnerImpl) runPassthrough(inv domain.ToolInvocation, env []string) error {
	cmd := exec.Command(inv.Args[0], inv.Args[1:]...)
	cmd.Dir = inv.Cwd
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("starting %s: %w", inv.Name, err)
	}
	code := exitErr.ExitCode()
	if inv.OnFailure != nil {
		inv.OnFailure(code, "", "")
		return nil
	}
	return &domain.ToolFailure{Tool: inv.Name, ExitCode: code}
}

// runCaptured redirects both streams into pipes, drains them concurrently
// and classifies a non-zero exit.
func (r *ToolRunnerImpl) runCaptured(inv domain.ToolInvocation, env []string) error {
	logDir := filepath.Join(inv.EffectiveLogDir(), logDirName)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}

	cmd := exec.Command(inv.Args[0], inv.Args[1:]...)
	cmd.Dir = inv.Cwd
	cmd.Env = env
	cmd.Stdin = os.Stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return platformError(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return platformError(err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", inv.Name, err)
	}

	pid := cmd.Process.Pid
	stdoutLog := filepath.Join(logDir, fmt.Sprintf("embuild_stdout_output_%d", pid))
	stderrLog := filepath.Join(logDir, fmt.Sprintf("embuild_stderr_output_%d", pid))
	r.logger.Debug("capturing tool output",
		zap.String("tool", inv.Name),
		zap.Int("pid", pid),
		zap.String("stdout_log", stdoutLog),
		zap.String("stderr_log", stderrLog))

	// Both readers run to completion before the exit status is collected,
	// so a fast-exiting tool cannot lose buffered output.
	var g errgroup.Group
	g.Go(func() error {
		r.drainStream(inv, stdout, stdoutLog, os.Stdout, "stdout")
		return nil
	})
	g.Go(func() error {
		r.drainStream(inv, stderr, stderrLog, os.Stderr, "stderr")
		return nil
	})
	_ = g.Wait()

	code := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("waiting for %s: %w", inv.Name, err)
		}
		code = exitErr.ExitCode()
	}
	if code == 0 {
		return nil
	}

	if inv.OnFailure != nil {
		inv.OnFailure(code, stderrLog, stdoutLog)
		return nil
	}

	if r.hints != nil {
		found, err := r.hints.Scan(stderrLog, stdoutLog)
		if err != nil {
			return err
		}
		for _, hint := range found {
			r.printer.Yellow(hint)
		}
	}
	return &domain.ToolFailure{Tool: inv.Name, ExitCode: code, StdoutLog: stdoutLog, StderrLog: stderrLog}
}

func platformError(err error) error {
	return domain.NewPlatformError(
		fmt.Sprintf("cannot capture subprocess output: %v.", err),
		"The issue can be worked around by re-running with the --no-hints argument.")
}

// drainStream copies one stream to its log file and the console until the
// stream closes. Faults abort this stream only, with a warning; the other
// stream continues independently.
func (r *ToolRunnerImpl) drainStream(inv domain.ToolInvocation, in io.Reader, logPath string, console *os.File, kind string) {
	logFile, err := os.Create(logPath)
	if err != nil {
		r.warnStream(err, kind)
		return
	}
	defer logFile.Close()

	consoleTTY := IsTerminal(console.Fd())
	reader := bufio.NewReaderSize(in, 256*1024)
	for {
		var chunk string
		var rerr error
		if inv.Interactive {
			chunk, rerr = readInteractive(reader)
		} else {
			chunk, rerr = reader.ReadString('\n')
		}

		if chunk != "" {
			stripped := StripANSI(chunk)
			// The build log is always escape-free.
			if _, werr := logFile.WriteString(stripped); werr != nil {
				r.warnStream(werr, kind)
				return
			}
			out := chunk
			if !consoleTTY {
				out = stripped
			}
			if inv.ForceProgression && strings.HasPrefix(out, "[") && consoleTTY && !verboseRequested(inv.Args) {
				printProgression(console, out)
			} else {
				console.WriteString(out)
			}
		}

		if rerr != nil {
			if rerr != io.EOF {
				r.warnStream(rerr, kind)
			}
			return
		}
	}
}

func (r *ToolRunnerImpl) warnStream(err error, kind string) {
	r.printer.Yellow(fmt.Sprintf(
		"WARNING: The error %v was raised and we can't capture all your %s and hints on how to resolve errors can be not accurate.",
		err, kind))
}

// verboseRequested reports whether the tool was already asked for verbose
// output; progress redraw would hide it.
func verboseRequested(args []string) bool {
	for _, a := range args {
		if a == "-v" {
			return true
		}
	}
	return false
}

// readInteractive reads one byte at a time, deferring decoding until the
// pending bytes form complete UTF-8. Past interactiveBufferMax pending
// bytes the data is flushed with invalid sequences dropped, so a broken
// sequence cannot stall the stream.
func readInteractive(r *bufio.Reader) (string, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			if len(buf) > 0 {
				return strings.ToValidUTF8(string(buf), ""), err
			}
			return "", err
		}
		buf = append(buf, b)
		if utf8.Valid(buf) {
			return string(buf), nil
		}
		if len(buf) > interactiveBufferMax {
			return strings.ToValidUTF8(string(buf), ""), nil
		}
	}
}

// printProgression redraws the current console line in place: clear the
// line, return the carriage, and print the line truncated to the terminal
// width with the middle elided.
func printProgression(console *os.File, out string) {
	fmt.Fprint(console, "\x1b[K\r")
	fmt.Fprint(console, FitToWidth(strings.Trim(out, "\r\n"), TerminalWidth(console.Fd())))
}

// Ensure ToolRunnerImpl implements domain.ToolRunner.
var _ domain.ToolRunner = (*ToolRunnerImpl)(nil)
