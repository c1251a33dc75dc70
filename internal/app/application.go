package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"corpusprep/internal/annotation"
	"corpusprep/internal/audio"
	"corpusprep/internal/config"
	"corpusprep/internal/gpu"
	"corpusprep/internal/language"
	"corpusprep/internal/media"
	"corpusprep/internal/performance"
	"corpusprep/internal/processor"
	"corpusprep/internal/segmenter"
	"corpusprep/internal/separator"
	"corpusprep/internal/transcriber"
)

// ErrDuplicateStem marks an input whose clips would overwrite those of an earlier input
// with the same base name.
var ErrDuplicateStem = errors.New("duplicate input name")

// Separator isolates the vocal track of one input file
type Separator interface {
	Separate(ctx context.Context, inputPath string) (string, error)
}

// Transcriber recognizes speech in one audio file
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (transcriber.TranscriptResult, error)
}

// Application runs the corpus preparation pipeline over an input directory
type Application struct {
	config      *config.Configuration
	logger      *zap.Logger
	separator   Separator
	transcriber Transcriber
	monitor     *performance.PerformanceMonitor
	tokens      *language.TokenMap
	accumulator *annotation.Accumulator
	progress    Progress
	summary     io.Writer
	closers     []func() error
}

// Option customizes an Application
type Option func(*Application)

// WithSeparator replaces the demucs-backed separator
func WithSeparator(s Separator) Option {
	return func(a *Application) { a.separator = s }
}

// WithTranscriber replaces the whisper-backed transcriber
func WithTranscriber(t Transcriber) Option {
	return func(a *Application) { a.transcriber = t }
}

// WithMonitor shares a performance monitor with the caller
func WithMonitor(m *performance.PerformanceMonitor) Option {
	return func(a *Application) { a.monitor = m }
}

// WithProgress replaces the progress reporter
func WithProgress(p Progress) Option {
	return func(a *Application) { a.progress = p }
}

// WithSummaryWriter sets where the end-of-run table is rendered; nil disables it
func WithSummaryWriter(w io.Writer) Option {
	return func(a *Application) { a.summary = w }
}

// NewApplication creates a new application instance with all components initialized.
// Components not supplied through options are built from cfg.
func NewApplication(cfg *config.Configuration, logger *zap.Logger, opts ...Option) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tokens, err := language.ParsePreset(cfg.GetLanguages())
	if err != nil {
		return nil, err
	}

	app := &Application{
		config:      cfg,
		logger:      logger,
		tokens:      tokens,
		accumulator: annotation.NewAccumulator(),
	}
	for _, opt := range opts {
		opt(app)
	}

	if app.monitor == nil {
		app.monitor = performance.NewPerformanceMonitorWithBenchmark(logger, cfg.GetLogBenchmark())
	} else if cfg.GetLogBenchmark() {
		app.monitor.BenchmarkMode(true)
	}

	if app.separator == nil || app.transcriber == nil {
		device := gpu.NewGPUDetector(logger).ResolveDevice(cfg.GetDevice())
		// demucs and whisper are Python tools; unbuffered output keeps their progress lines live in the log.
		runner := processor.NewCommandRunner(logger).WithEnv("PYTHONUNBUFFERED=1")
		logger.Info("external tools configured", zap.String("device", device))

		if app.separator == nil {
			app.separator = separator.NewSeparator(logger, runner, app.monitor, separator.Config{
				Command: cfg.GetSeparatorCommand(),
				Model:   cfg.GetSeparatorModel(),
				Stem:    cfg.GetSeparatorStem(),
				Device:  device,
				WorkDir: cfg.GetWorkDir(),
			})
		}

		if app.transcriber == nil {
			model := transcriber.NewWhisperCLIModel(logger, runner,
				transcriber.WithCommand(cfg.GetTranscriberCommand()),
				transcriber.WithDevice(device),
				transcriber.WithWorkDir(cfg.GetWorkDir()))
			engine := transcriber.NewTranscriptionEngine(logger, model, app.monitor)
			if err := engine.LoadModel(cfg.GetRecognitionModelSize()); err != nil {
				return nil, err
			}
			app.transcriber = engine
			app.closers = append(app.closers, engine.Close)
		}
	}

	if app.progress == nil {
		app.progress = NewProgress(logger)
	}

	return app, nil
}

// Monitor returns the stage performance monitor
func (app *Application) Monitor() *performance.PerformanceMonitor {
	return app.monitor
}

// Close releases the components built by NewApplication
func (app *Application) Close() error {
	var errs []error
	for _, c := range app.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run processes every input file and writes the annotation file.
// Per-file failures are logged and skipped; only setup and the final flush are fatal.
func (app *Application) Run(ctx context.Context) (*Report, error) {
	runID := uuid.NewString()
	mode := app.config.GetMode()
	log := app.logger.With(zap.String("component", "pipeline"), zap.String("run_id", runID), zap.String("mode", mode))
	app.monitor.ResetMetrics()
	app.accumulator = annotation.NewAccumulator()

	inputs, err := media.ListInputs(app.config.GetInputDir())
	if err != nil {
		return nil, err
	}

	dest := app.config.GetDestinationDir()
	report := &Report{
		RunID:          runID,
		Mode:           mode,
		Destination:    dest,
		AnnotationPath: app.config.GetAnnotationPath(),
	}
	if mode == config.ModeShorts {
		// The speaker directory may already hold long-form clips; shorts only add to it.
		report.AnnotationPath = app.config.GetShortsAnnotationPath()
		err = os.MkdirAll(dest, 0o755)
	} else {
		err = resetDir(dest)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to prepare destination %s: %w", dest, err)
	}
	if err := os.MkdirAll(app.config.GetWorkDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	log.Info("starting corpus preparation",
		zap.String("input_dir", app.config.GetInputDir()),
		zap.String("destination", dest),
		zap.String("languages", string(app.tokens.Preset())),
		zap.Int("files", len(inputs)))

	// clip stem -> first input that claimed it
	claimed := make(map[string]string)
	tracker := newProgressTracker(app.progress, len(inputs))
	for i, in := range inputs {
		if ctx.Err() != nil {
			log.Warn("run interrupted, remaining files skipped",
				zap.Int("processed", i),
				zap.Int("remaining", len(inputs)-i))
			report.Interrupted = true
			break
		}

		if in.Kind.Supported() {
			report.MediaFiles++
		}

		var (
			result  FileResult
			records []annotation.Record
		)
		switch {
		case mode == config.ModeShorts:
			result, records = app.processShort(ctx, log, in, i, dest, tracker.file(i, in.Path))
		case in.Kind.Supported() && claimed[segmenter.ClipStem(in.Stem())] != "":
			first := claimed[segmenter.ClipStem(in.Stem())]
			result = FileResult{
				Path: in.Path,
				Kind: in.Kind,
				Err:  fmt.Errorf("%w: %s writes the same clip names as %s", ErrDuplicateStem, in.Path, first),
			}
			log.Warn("input shares its name with an earlier input, skipping file",
				zap.String("file", in.Path),
				zap.String("kept", first))
		default:
			if in.Kind.Supported() {
				claimed[segmenter.ClipStem(in.Stem())] = in.Path
			}
			result, records = app.processFile(ctx, log, in, dest, tracker.file(i, in.Path))
		}

		if result.Err == nil {
			app.accumulator.Append(records...)
		}
		report.Files = append(report.Files, result)
		tracker.fileDone(i)
	}
	app.progress.Finish()

	report.Records = app.accumulator.Len()
	if err := app.accumulator.Flush(report.AnnotationPath); err != nil {
		return report, fmt.Errorf("failed to write annotation file: %w", err)
	}

	app.logSummary(log, report)
	return report, nil
}

// processFile runs one input through every stage. The returned records are only valid when
// result.Err is nil; clips written before a failure are removed.
func (app *Application) processFile(ctx context.Context, log *zap.Logger, in media.InputFile, dest string, step func(done, total int)) (result FileResult, records []annotation.Record) {
	result = FileResult{Path: in.Path, Kind: in.Kind}
	log = log.With(zap.String("file", in.Path))

	var written []string
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("panic while processing %s: %v", in.Path, r)
			log.Error("recovered from panic", zap.Any("panic", r))
		}
		if result.Err != nil {
			removeAll(log, written)
			result.Written = 0
			records = nil
		}
	}()

	if !in.Kind.Supported() {
		result.Err = fmt.Errorf("%w: %s", media.ErrUnrecognizedMedia, in.Path)
		log.Debug("skipping non-media file")
		return result, nil
	}

	track, err := app.separator.Separate(ctx, in.Path)
	if err != nil {
		result.Err = err
		log.Warn("vocal separation failed, skipping file", zap.Error(err))
		return result, nil
	}
	if !app.config.GetKeepDenoised() {
		defer func() {
			if err := os.Remove(track); err != nil && !os.IsNotExist(err) {
				log.Warn("failed to remove denoised track", zap.String("track", track), zap.Error(err))
			}
		}()
	}

	transcript, err := app.transcriber.Transcribe(ctx, track)
	if err != nil {
		result.Err = err
		log.Warn("transcription failed, skipping file", zap.Error(err))
		return result, nil
	}
	result.Language = transcript.Language
	result.Segments = len(transcript.Segments)

	if !app.tokens.Supports(transcript.Language) {
		result.Err = fmt.Errorf("%w: %s", language.ErrUnsupportedLanguage, transcript.Language)
		log.Warn("language not supported, ignoring file",
			zap.String("language", transcript.Language),
			zap.String("language_name", language.DisplayName(transcript.Language)))
		return result, nil
	}

	timer := app.monitor.Start(performance.StageSegmentation, in.Path)
	records, result.Skipped, err = app.writeClips(log, in, track, dest, transcript, &written, step)
	app.monitor.End(timer, err)
	if err != nil {
		result.Err = err
		log.Warn("segmentation failed, skipping file", zap.Error(err))
		return result, nil
	}

	result.Written = len(written)
	log.Info("file processed",
		zap.String("language", transcript.Language),
		zap.Int("segments", result.Segments),
		zap.Int("written", result.Written),
		zap.Int("skipped", result.Skipped))
	return result, records
}

// writeClips slices the denoised track by transcript segment and writes one clip per segment.
// Every clip path is appended to written as soon as the file exists.
func (app *Application) writeClips(log *zap.Logger, in media.InputFile, track, dest string, transcript transcriber.TranscriptResult, written *[]string, step func(done, total int)) ([]annotation.Record, int, error) {
	waveform, err := audio.ReadWAV(track)
	if err != nil {
		return nil, 0, err
	}

	clips, skipped := segmenter.Slice(waveform, transcript.Segments)
	for _, s := range skipped {
		log.Warn("skipping segment",
			zap.Int("index", s.Index),
			zap.Float64("start", s.Segment.Start),
			zap.Float64("end", s.Segment.End),
			zap.Error(s.Err))
	}

	writer := segmenter.NewWriter(dest, audio.Options{
		SampleRate: app.config.GetSampleRate(),
		BitDepth:   app.config.GetBitDepth(),
	})

	records := make([]annotation.Record, 0, len(clips))
	for n, clip := range clips {
		path, err := writer.Write(in.Stem(), clip)
		if err != nil {
			return nil, len(skipped), err
		}
		*written = append(*written, path)

		text := strings.TrimSpace(clip.Segment.Text)
		tagged, err := app.tokens.Wrap(transcript.Language, text, app.config.GetTagLanguages())
		if err != nil {
			return nil, len(skipped), err
		}
		records = append(records, annotation.Record{Path: path, Text: tagged})

		log.Debug("segment written",
			zap.String("clip", path),
			zap.Float64("seconds", clip.Segment.Duration()),
			zap.String("text", tagged))
		step(n+1, len(clips))
	}
	return records, len(skipped), nil
}

// resetDir removes dir and everything under it, then recreates it empty
func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func removeAll(log *zap.Logger, paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove clip of failed file", zap.String("clip", p), zap.Error(err))
		}
	}
}

// absOrSelf is used for log output only
func absOrSelf(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
