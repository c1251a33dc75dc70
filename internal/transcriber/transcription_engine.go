package transcriber

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"corpusprep/internal/performance"
)

// ErrTranscriptionFailed marks a file the recognizer could not process
var ErrTranscriptionFailed = errors.New("transcription failed")

// TranscriptionEngine manages the recognizer model and times each transcription
type TranscriptionEngine struct {
	logger             *zap.Logger
	model              Model
	performanceMonitor *performance.PerformanceMonitor
}

// NewTranscriptionEngine creates a new TranscriptionEngine instance
func NewTranscriptionEngine(logger *zap.Logger, model Model, monitor *performance.PerformanceMonitor) *TranscriptionEngine {
	if monitor == nil {
		monitor = performance.NewPerformanceMonitor(logger)
	}
	return &TranscriptionEngine{
		logger:             logger,
		model:              model,
		performanceMonitor: monitor,
	}
}

// LoadModel loads the recognizer model of the given size
func (te *TranscriptionEngine) LoadModel(size string) error {
	te.logger.Info("loading recognition model", zap.String("size", size))

	if te.model == nil {
		return fmt.Errorf("recognition model not initialized")
	}

	if err := te.model.LoadModel(size); err != nil {
		return fmt.Errorf("failed to load recognition model %s: %w", size, err)
	}

	return nil
}

// Transcribe recognizes speech in audioPath
func (te *TranscriptionEngine) Transcribe(ctx context.Context, audioPath string) (TranscriptResult, error) {
	if te.model == nil {
		return TranscriptResult{}, fmt.Errorf("%w: recognition model not initialized", ErrTranscriptionFailed)
	}

	timer := te.performanceMonitor.Start(performance.StageTranscription, audioPath)
	result, err := te.model.Transcribe(ctx, audioPath)
	te.performanceMonitor.End(timer, err)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}

	te.logger.Info("transcription completed",
		zap.String("file", audioPath),
		zap.String("language", result.Language),
		zap.Int("segments", len(result.Segments)))
	return result, nil
}

// Close releases the model
func (te *TranscriptionEngine) Close() error {
	if te.model == nil {
		return nil
	}
	if err := te.model.Close(); err != nil {
		te.logger.Error("failed to close recognition model", zap.Error(err))
		return fmt.Errorf("failed to close recognition model: %w", err)
	}
	return nil
}
