package processor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// stderrTailLines is how many trailing stderr lines are kept for error reports
const stderrTailLines = 20

// Runner executes an external tool and blocks until it exits
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, name string, args ...string) error

// Run calls f
func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) error {
	return f(ctx, name, args...)
}

// ExitError reports a tool that ran but exited unsuccessfully
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// CommandRunner runs external tools as child processes, streaming their output into the logger
type CommandRunner struct {
	logger *zap.Logger
	env    []string
}

// NewCommandRunner creates a new CommandRunner instance
func NewCommandRunner(logger *zap.Logger) *CommandRunner {
	return &CommandRunner{
		logger: logger,
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment
func (r *CommandRunner) WithEnv(env ...string) *CommandRunner {
	r.env = append(r.env, env...)
	return r
}

// Run starts the tool, logs its output line by line and waits for it to exit.
// A non-zero exit is returned as *ExitError carrying the tail of stderr.
func (r *CommandRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	r.logger.Info("starting external tool",
		zap.String("command", name),
		zap.Strings("args", args))
	started := time.Now()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}

	tail := newLineTail(stderrTailLines)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.drain(name, "stdout", stdout, nil)
	}()
	go func() {
		defer wg.Done()
		r.drain(name, "stderr", stderr, tail)
	}()
	// Pipes must be fully read before Wait closes them.
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{
				Command:  name,
				ExitCode: exitErr.ExitCode(),
				Stderr:   tail.String(),
				Err:      err,
			}
		}
		return fmt.Errorf("%s: %w", name, err)
	}

	r.logger.Info("external tool finished",
		zap.String("command", name),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

// drain logs every line read from an output pipe; tool errors are raised to warnings
func (r *CommandRunner) drain(name, stream string, pipe io.Reader, tail *lineTail) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLinesOrCarriageReturns)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if tail != nil {
			tail.add(line)
		}
		if containsToolError(line) {
			r.logger.Warn("external tool output",
				zap.String("command", name),
				zap.String("stream", stream),
				zap.String("output", line))
		} else {
			r.logger.Debug("external tool output",
				zap.String("command", name),
				zap.String("stream", stream),
				zap.String("output", line))
		}
	}
	if err := scanner.Err(); err != nil {
		r.logger.Debug("output reading completed", zap.String("stream", stream), zap.Error(err))
		// Keep the pipe empty so the child never blocks on a full buffer.
		_, _ = io.Copy(io.Discard, pipe)
	}
}

// containsToolError checks if a line of tool output reports an actual failure
func containsToolError(output string) bool {
	errorIndicators := []string{
		"Error",
		"error:",
		"Traceback",
		"No such file",
		"Permission denied",
		"out of memory",
	}

	for _, indicator := range errorIndicators {
		if strings.Contains(output, indicator) {
			return true
		}
	}
	return false
}

// scanLinesOrCarriageReturns splits on \n and on the bare \r progress bars use
func scanLinesOrCarriageReturns(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// lineTail keeps the last n lines written to it
type lineTail struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newLineTail(n int) *lineTail {
	return &lineTail{n: n}
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
