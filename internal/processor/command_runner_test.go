package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCommandRunner_Run(t *testing.T) {
	t.Run("should run a tool to completion", func(t *testing.T) {
		// Arrange
		runner := NewCommandRunner(zaptest.NewLogger(t))

		// Act
		err := runner.Run(context.Background(), "echo", "separating")

		// Assert
		assert.NoError(t, err)
	})

	t.Run("should report non-zero exit with stderr tail", func(t *testing.T) {
		// Arrange
		runner := NewCommandRunner(zaptest.NewLogger(t))

		// Act
		err := runner.Run(context.Background(), "sh", "-c", "echo 'RuntimeError: bad input' >&2; exit 3")

		// Assert
		require.Error(t, err)
		var exitErr *ExitError
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, 3, exitErr.ExitCode)
		assert.Equal(t, "sh", exitErr.Command)
		assert.Contains(t, exitErr.Stderr, "RuntimeError: bad input")
	})

	t.Run("should fail when the binary does not exist", func(t *testing.T) {
		// Arrange
		runner := NewCommandRunner(zaptest.NewLogger(t))

		// Act
		err := runner.Run(context.Background(), "definitely-not-a-real-tool-binary")

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to start")
	})

	t.Run("should pass extra environment variables", func(t *testing.T) {
		// Arrange
		runner := NewCommandRunner(zaptest.NewLogger(t)).WithEnv("CORPUSPREP_TEST_VALUE=42")

		// Act
		err := runner.Run(context.Background(), "sh", "-c", `test "$CORPUSPREP_TEST_VALUE" = 42`)

		// Assert
		assert.NoError(t, err)
	})

	t.Run("should stop the tool when the context is cancelled", func(t *testing.T) {
		// Arrange
		runner := NewCommandRunner(zaptest.NewLogger(t))
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		// Act
		start := time.Now()
		err := runner.Run(ctx, "sleep", "5")

		// Assert
		assert.Error(t, err)
		assert.Less(t, time.Since(start), 4*time.Second)
	})
}

func TestRunnerFunc(t *testing.T) {
	var gotName string
	var gotArgs []string
	runner := RunnerFunc(func(ctx context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		return nil
	})

	err := runner.Run(context.Background(), "demucs", "--two-stems=vocals", "in.wav")

	assert.NoError(t, err)
	assert.Equal(t, "demucs", gotName)
	assert.Equal(t, []string{"--two-stems=vocals", "in.wav"}, gotArgs)
}

func TestContainsToolError(t *testing.T) {
	assert.True(t, containsToolError("Traceback (most recent call last):"))
	assert.True(t, containsToolError("RuntimeError: CUDA out of memory"))
	assert.False(t, containsToolError("Separating track raw_data/a.mp3"))
}

func TestLineTail(t *testing.T) {
	tail := newLineTail(2)
	tail.add("one")
	tail.add("two")
	tail.add("three")

	assert.Equal(t, "two\nthree", tail.String())
}
