package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"corpusprep/internal/annotation"
	"corpusprep/internal/audio"
	"corpusprep/internal/language"
	"corpusprep/internal/media"
	"corpusprep/internal/performance"
)

// ErrNotShortClip marks an input that shorts mode cannot read as a WAV clip
var ErrNotShortClip = errors.New("not a short WAV clip")

// ShortName returns the file name a short clip is converted to
func ShortName(index int) string {
	return fmt.Sprintf("processed_%d.wav", index)
}

// processShort converts one pre-cut clip and transcribes it whole. There is no
// separation or slicing: each accepted clip yields exactly one record.
func (app *Application) processShort(ctx context.Context, log *zap.Logger, in media.InputFile, index int, dest string, step func(done, total int)) (result FileResult, records []annotation.Record) {
	result = FileResult{Path: in.Path, Kind: in.Kind}
	log = log.With(zap.String("file", in.Path))

	var written string
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("panic while processing %s: %v", in.Path, r)
			log.Error("recovered from panic", zap.Any("panic", r))
		}
		if result.Err != nil {
			if written != "" {
				removeAll(log, []string{written})
			}
			result.Written = 0
			records = nil
		}
	}()

	if in.Kind != media.KindAudio {
		result.Err = fmt.Errorf("%w: %s", ErrNotShortClip, in.Path)
		log.Debug("skipping non-audio file")
		return result, nil
	}

	timer := app.monitor.Start(performance.StageConversion, in.Path)
	path, err := app.convertShort(in.Path, filepath.Join(dest, ShortName(index)))
	app.monitor.End(timer, err)
	if err != nil {
		if errors.Is(err, ErrNotShortClip) {
			log.Debug("skipping audio that is not a WAV clip", zap.Error(err))
		} else {
			log.Warn("conversion failed, skipping file", zap.Error(err))
		}
		result.Err = err
		return result, nil
	}
	written = path

	transcript, err := app.transcriber.Transcribe(ctx, path)
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

	tagged, err := app.tokens.Wrap(transcript.Language, transcript.FullText(), app.config.GetTagLanguages())
	if err != nil {
		result.Err = err
		return result, nil
	}

	result.Written = 1
	step(1, 1)
	log.Info("short clip processed",
		zap.String("clip", path),
		zap.String("language", transcript.Language),
		zap.String("text", tagged))
	return result, []annotation.Record{{Path: path, Text: tagged}}
}

// convertShort downmixes, resamples and re-quantizes src into dst
func (app *Application) convertShort(src, dst string) (string, error) {
	waveform, err := audio.ReadWAV(src)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotShortClip, err)
	}

	converted, err := audio.Transform(waveform, audio.Options{
		SampleRate: app.config.GetSampleRate(),
		BitDepth:   app.config.GetBitDepth(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to convert %s: %w", src, err)
	}

	if err := audio.WriteWAV(dst, converted); err != nil {
		return "", err
	}
	app.logger.Debug("short clip converted",
		zap.String("source", src),
		zap.String("clip", dst),
		zap.Duration("duration", converted.Duration()))
	return dst, nil
}
