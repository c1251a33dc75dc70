// Package separator isolates the vocal stem of a media file with an external source separation tool.
package separator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"corpusprep/internal/media"
	"corpusprep/internal/performance"
	"corpusprep/internal/processor"
)

// ErrSeparationFailed marks a file whose vocal track could not be produced
var ErrSeparationFailed = errors.New("separation failed")

const (
	lockFileName   = ".separator.lock"
	lockRetryDelay = 250 * time.Millisecond
)

// Config describes how the separation tool is invoked
type Config struct {
	Command string
	Model   string
	Stem    string
	Device  string
	WorkDir string
}

// Separator runs the separation tool one file at a time
type Separator struct {
	logger  *zap.Logger
	runner  processor.Runner
	monitor *performance.PerformanceMonitor
	cfg     Config

	mu   sync.Mutex
	lock *flock.Flock
}

// NewSeparator creates a Separator. Empty Config fields fall back to demucs defaults.
func NewSeparator(logger *zap.Logger, runner processor.Runner, monitor *performance.PerformanceMonitor, cfg Config) *Separator {
	if cfg.Command == "" {
		cfg.Command = "demucs"
	}
	if cfg.Model == "" {
		cfg.Model = "htdemucs"
	}
	if cfg.Stem == "" {
		cfg.Stem = "vocals"
	}
	if cfg.Device == "" {
		cfg.Device = "cpu"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "work"
	}
	if monitor == nil {
		monitor = performance.NewPerformanceMonitor(logger)
	}

	return &Separator{
		logger:  logger,
		runner:  runner,
		monitor: monitor,
		cfg:     cfg,
		lock:    flock.New(filepath.Join(cfg.WorkDir, lockFileName)),
	}
}

// TrackPath returns where the denoised track for inputPath is written
func (s *Separator) TrackPath(inputPath string) string {
	return filepath.Join(s.cfg.WorkDir, "denoised_"+media.Stem(inputPath)+".wav")
}

// Separate extracts the configured stem of inputPath and returns the denoised track path
func (s *Separator) Separate(ctx context.Context, inputPath string) (path string, err error) {
	timer := s.monitor.Start(performance.StageSeparation, inputPath)
	defer func() { s.monitor.End(timer, err) }()

	if err := os.MkdirAll(s.cfg.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: failed to create work directory: %w", ErrSeparationFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return "", fmt.Errorf("%w: acquire separator lock: %w", ErrSeparationFailed, err)
	}
	if !locked {
		return "", fmt.Errorf("%w: separator lock not acquired", ErrSeparationFailed)
	}
	defer func() {
		if unlockErr := s.lock.Unlock(); unlockErr != nil {
			s.logger.Warn("failed to release separator lock", zap.Error(unlockErr))
		}
	}()

	scratch := filepath.Join(s.cfg.WorkDir, "separated-"+uuid.NewString())
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			s.logger.Warn("failed to remove separation scratch directory",
				zap.String("path", scratch),
				zap.Error(rmErr))
		}
	}()

	s.logger.Info("separating vocals",
		zap.String("file", inputPath),
		zap.String("model", s.cfg.Model),
		zap.String("device", s.cfg.Device))

	if err := s.runner.Run(ctx, s.cfg.Command, s.buildArgs(scratch, inputPath)...); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSeparationFailed, err)
	}

	produced := filepath.Join(scratch, s.cfg.Model, media.Stem(inputPath), s.cfg.Stem+".wav")
	if _, err := os.Stat(produced); err != nil {
		return "", fmt.Errorf("%w: expected output missing: %w", ErrSeparationFailed, err)
	}

	track := s.TrackPath(inputPath)
	if err := copyAtomic(produced, track); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSeparationFailed, err)
	}

	s.logger.Debug("vocal track ready", zap.String("file", inputPath), zap.String("track", track))
	return track, nil
}

func (s *Separator) buildArgs(scratch, inputPath string) []string {
	return []string{
		"--two-stems=" + s.cfg.Stem,
		"-n", s.cfg.Model,
		"-d", s.cfg.Device,
		"-o", scratch,
		inputPath,
	}
}

// copyAtomic copies src to dst through a temp file in dst's directory
func copyAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open separated track: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".denoised-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp track: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to copy separated track: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp track: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move track into place: %w", err)
	}
	return nil
}
