package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"corpusprep/internal/media"
	"corpusprep/internal/processor"
)

// Decoding constants passed to the recognizer on every call
const (
	beamSize = 5
	bestOf   = 5
)

// Model defines the operations needed from a speech recognizer
type Model interface {
	LoadModel(size string) error
	Transcribe(ctx context.Context, audioPath string) (TranscriptResult, error)
	Close() error
}

// WhisperCLIModel implements Model by invoking the whisper command line tool
type WhisperCLIModel struct {
	logger  *zap.Logger
	runner  processor.Runner
	command string
	device  string
	workDir string
	size    string
}

// WhisperOption customizes a WhisperCLIModel
type WhisperOption func(*WhisperCLIModel)

// WithCommand overrides the whisper executable
func WithCommand(command string) WhisperOption {
	return func(w *WhisperCLIModel) {
		if command != "" {
			w.command = command
		}
	}
}

// WithDevice sets the inference device (cpu or cuda)
func WithDevice(device string) WhisperOption {
	return func(w *WhisperCLIModel) {
		if device != "" {
			w.device = device
		}
	}
}

// WithWorkDir sets the parent directory for per-call output directories
func WithWorkDir(dir string) WhisperOption {
	return func(w *WhisperCLIModel) {
		w.workDir = dir
	}
}

// NewWhisperCLIModel creates a whisper CLI model that runs commands through runner
func NewWhisperCLIModel(logger *zap.Logger, runner processor.Runner, opts ...WhisperOption) *WhisperCLIModel {
	w := &WhisperCLIModel{
		logger:  logger,
		runner:  runner,
		command: "whisper",
		device:  "cpu",
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// LoadModel selects the model size used for every subsequent call
func (w *WhisperCLIModel) LoadModel(size string) error {
	if !IsValidModelSize(size) {
		return fmt.Errorf("unknown whisper model size %q", size)
	}

	w.size = size
	w.logger.Info("whisper model selected",
		zap.String("size", size),
		zap.String("device", w.device))
	return nil
}

// Transcribe runs whisper on audioPath and parses its JSON output
func (w *WhisperCLIModel) Transcribe(ctx context.Context, audioPath string) (TranscriptResult, error) {
	if w.size == "" {
		return TranscriptResult{}, fmt.Errorf("whisper model not loaded")
	}

	if w.workDir != "" {
		if err := os.MkdirAll(w.workDir, 0o755); err != nil {
			return TranscriptResult{}, fmt.Errorf("failed to create work directory: %w", err)
		}
	}

	outDir, err := os.MkdirTemp(w.workDir, "whisper-")
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("failed to create whisper output directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	if err := w.runner.Run(ctx, w.command, w.buildArgs(audioPath, outDir)...); err != nil {
		return TranscriptResult{}, fmt.Errorf("whisper failed on %s: %w", audioPath, err)
	}

	result, err := readWhisperJSON(filepath.Join(outDir, media.Stem(audioPath)+".json"))
	if err != nil {
		return TranscriptResult{}, err
	}

	w.logger.Debug("whisper output parsed",
		zap.String("file", audioPath),
		zap.String("language", result.Language),
		zap.Int("segments", len(result.Segments)))
	return result, nil
}

func (w *WhisperCLIModel) buildArgs(audioPath, outDir string) []string {
	return []string{
		audioPath,
		"--model", w.size,
		"--task", "transcribe",
		"--beam_size", fmt.Sprint(beamSize),
		"--best_of", fmt.Sprint(bestOf),
		"--word_timestamps", "True",
		"--output_format", "json",
		"--output_dir", outDir,
		"--device", w.device,
		"--verbose", "False",
	}
}

// whisperOutput mirrors the fields of whisper's JSON writer that are consumed here
type whisperOutput struct {
	Language string `json:"language"`
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func readWhisperJSON(path string) (TranscriptResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("failed to read whisper output: %w", err)
	}

	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return TranscriptResult{}, fmt.Errorf("failed to parse whisper output %s: %w", path, err)
	}

	result := TranscriptResult{
		Language: strings.ToLower(strings.TrimSpace(out.Language)),
		Text:     out.Text,
		Segments: make([]TranscriptSegment, 0, len(out.Segments)),
	}
	for _, s := range out.Segments {
		result.Segments = append(result.Segments, TranscriptSegment{
			Start: s.Start,
			End:   s.End,
			Text:  s.Text,
		})
	}
	return result, nil
}

// Close releases the model selection
func (w *WhisperCLIModel) Close() error {
	w.size = ""
	w.logger.Debug("whisper model closed")
	return nil
}
