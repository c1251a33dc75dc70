package separator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"corpusprep/internal/media"
	"corpusprep/internal/performance"
	"corpusprep/internal/processor"
)

type fakeDemucs struct {
	mu      sync.Mutex
	calls   [][]string
	scratch []string
	write   bool
	err     error
}

func (f *fakeDemucs) Run(ctx context.Context, name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, append([]string{name}, args...))
	out := argAfter(args, "-o")
	f.scratch = append(f.scratch, out)
	if f.err != nil {
		return f.err
	}
	if !f.write {
		return nil
	}

	model := argAfter(args, "-n")
	input := args[len(args)-1]
	dir := filepath.Join(out, model, media.Stem(input))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "vocals.wav"), []byte("RIFF-vocals:"+input), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "no_vocals.wav"), []byte("RIFF-rest"), 0o644)
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func newTestSeparator(t *testing.T, runner processor.Runner) (*Separator, string) {
	workDir := filepath.Join(t.TempDir(), "work")
	sep := NewSeparator(zaptest.NewLogger(t), runner, performance.NewPerformanceMonitor(zaptest.NewLogger(t)), Config{
		Device:  "cuda",
		WorkDir: workDir,
	})
	return sep, workDir
}

func TestSeparator_Separate(t *testing.T) {
	t.Run("should copy the vocal stem to the denoised track", func(t *testing.T) {
		// Arrange
		fake := &fakeDemucs{write: true}
		sep, workDir := newTestSeparator(t, fake)

		// Act
		track, err := sep.Separate(context.Background(), "/raw/interview.mp3")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(workDir, "denoised_interview.wav"), track)
		data, err := os.ReadFile(track)
		require.NoError(t, err)
		assert.Equal(t, "RIFF-vocals:/raw/interview.mp3", string(data))
	})

	t.Run("should invoke demucs in two-stem mode", func(t *testing.T) {
		// Arrange
		fake := &fakeDemucs{write: true}
		sep, _ := newTestSeparator(t, fake)

		// Act
		_, err := sep.Separate(context.Background(), "talk.flac")

		// Assert
		require.NoError(t, err)
		require.Len(t, fake.calls, 1)
		args := fake.calls[0]
		assert.Equal(t, "demucs", args[0])
		assert.Equal(t, "--two-stems=vocals", args[1])
		assert.Equal(t, "htdemucs", argAfter(args, "-n"))
		assert.Equal(t, "cuda", argAfter(args, "-d"))
		assert.Equal(t, "talk.flac", args[len(args)-1])
	})

	t.Run("should remove the scratch tree after success", func(t *testing.T) {
		// Arrange
		fake := &fakeDemucs{write: true}
		sep, workDir := newTestSeparator(t, fake)

		// Act
		_, err := sep.Separate(context.Background(), "a.wav")

		// Assert
		require.NoError(t, err)
		_, statErr := os.Stat(fake.scratch[0])
		assert.True(t, os.IsNotExist(statErr))
		entries, err := os.ReadDir(workDir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Name(), "separated-")
		}
	})

	t.Run("should fail and clean up when the tool fails", func(t *testing.T) {
		// Arrange
		fake := &fakeDemucs{write: true, err: &processor.ExitError{Command: "demucs", ExitCode: 1}}
		sep, workDir := newTestSeparator(t, fake)

		// Act
		_, err := sep.Separate(context.Background(), "a.wav")

		// Assert
		assert.ErrorIs(t, err, ErrSeparationFailed)
		var exitErr *processor.ExitError
		assert.True(t, errors.As(err, &exitErr))
		_, statErr := os.Stat(fake.scratch[0])
		assert.True(t, os.IsNotExist(statErr))
		_, statErr = os.Stat(filepath.Join(workDir, "denoised_a.wav"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("should fail when the tool produces no stem", func(t *testing.T) {
		// Arrange
		fake := &fakeDemucs{write: false}
		sep, _ := newTestSeparator(t, fake)

		// Act
		_, err := sep.Separate(context.Background(), "a.wav")

		// Assert
		assert.ErrorIs(t, err, ErrSeparationFailed)
		assert.ErrorContains(t, err, "expected output missing")
	})

	t.Run("should use a fresh scratch directory per call", func(t *testing.T) {
		// Arrange
		fake := &fakeDemucs{write: true}
		sep, _ := newTestSeparator(t, fake)

		// Act
		_, err1 := sep.Separate(context.Background(), "a.wav")
		_, err2 := sep.Separate(context.Background(), "b.wav")

		// Assert
		require.NoError(t, err1)
		require.NoError(t, err2)
		require.Len(t, fake.scratch, 2)
		assert.NotEqual(t, fake.scratch[0], fake.scratch[1])
	})

	t.Run("should serialize concurrent calls", func(t *testing.T) {
		// Arrange
		var inFlight, maxInFlight int
		var mu sync.Mutex
		fake := &fakeDemucs{write: true}
		runner := processor.RunnerFunc(func(ctx context.Context, name string, args ...string) error {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()
			err := fake.Run(ctx, name, args...)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return err
		})
		sep, _ := newTestSeparator(t, runner)

		// Act
		var wg sync.WaitGroup
		for _, name := range []string{"a.wav", "b.wav", "c.wav", "d.wav"} {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				_, err := sep.Separate(context.Background(), name)
				assert.NoError(t, err)
			}(name)
		}
		wg.Wait()

		// Assert
		assert.Equal(t, 1, maxInFlight)
	})

	t.Run("should record stage metrics", func(t *testing.T) {
		// Arrange
		monitor := performance.NewPerformanceMonitor(zaptest.NewLogger(t))
		sep := NewSeparator(zaptest.NewLogger(t), &fakeDemucs{err: errors.New("boom")}, monitor, Config{WorkDir: t.TempDir()})

		// Act
		_, err := sep.Separate(context.Background(), "a.wav")

		// Assert
		require.Error(t, err)
		m, ok := monitor.Stage(performance.StageSeparation)
		require.True(t, ok)
		assert.Equal(t, int64(1), m.Failures)
	})
}

func TestSeparator_TrackPath(t *testing.T) {
	sep := NewSeparator(zaptest.NewLogger(t), nil, nil, Config{WorkDir: "/tmp/w"})

	assert.Equal(t, "/tmp/w/denoised_song.live.wav", sep.TrackPath("/in/song.live.mp4"))
}
