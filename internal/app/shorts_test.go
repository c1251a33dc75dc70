package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"corpusprep/internal/audio"
	"corpusprep/internal/config"
	"corpusprep/internal/language"
	"corpusprep/internal/transcriber"
)

func newShortsEnv(t *testing.T) *testEnv {
	env := newTestEnv(t)
	env.cfg.Set("mode", config.ModeShorts)
	env.cfg.Set("shorts_annotation_path", env.anno)
	return env
}

func TestApplication_RunShorts(t *testing.T) {
	t.Run("should convert and transcribe each clip whole", func(t *testing.T) {
		// Arrange
		env := newShortsEnv(t)
		env.cfg.Set("sample_rate", 8000)
		env.writeWAV(t, "a.wav", 1, 16000, 2)
		env.writeWAV(t, "b.wav", 1, 16000, 1)
		sep := &fakeSeparator{}
		tr := &fakeTranscriber{results: map[string]transcriber.TranscriptResult{
			"processed_0.wav": {Language: "en", Text: " hello there ", Segments: []transcriber.TranscriptSegment{
				{Start: 0, End: 0.4, Text: " hello"},
				{Start: 0.4, End: 1, Text: " there"},
			}},
			"processed_1.wav": {Language: "ja", Segments: []transcriber.TranscriptSegment{{Start: 0, End: 1, Text: "こんにちは"}}},
		}}

		// Act
		report, anno := env.run(t, sep, tr)

		// Assert
		expected := filepath.Join(env.dest, "processed_0.wav") + "|[EN]hello there[EN]\n" +
			filepath.Join(env.dest, "processed_1.wav") + "|[JA]こんにちは[JA]\n"
		assert.Equal(t, expected, anno)
		assert.Equal(t, config.ModeShorts, report.Mode)
		assert.Equal(t, 2, report.Records)
		assert.Empty(t, sep.calls)

		w, err := audio.ReadWAV(filepath.Join(env.dest, "processed_0.wav"))
		require.NoError(t, err)
		assert.Equal(t, 1, w.NumChannels())
		assert.Equal(t, 8000, w.SampleRate)
		assert.Equal(t, 8000, w.Len())
	})

	t.Run("should skip inputs that are not WAV clips", func(t *testing.T) {
		// Arrange
		env := newShortsEnv(t)
		env.writeWAV(t, "a.wav", 1, 16000, 1)
		mp3 := append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 64)...)
		require.NoError(t, os.WriteFile(filepath.Join(env.inputDir, "b.mp3"), mp3, 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(env.inputDir, "c.txt"), []byte("notes"), 0o644))
		tr := &fakeTranscriber{results: map[string]transcriber.TranscriptResult{
			"processed_0.wav": {Language: "zh", Text: "你好"},
		}}

		// Act
		report, anno := env.run(t, &fakeSeparator{}, tr)

		// Assert
		assert.Equal(t, filepath.Join(env.dest, "processed_0.wav")+"|[ZH]你好[ZH]\n", anno)
		require.Len(t, report.Files, 3)
		assert.NoError(t, report.Files[0].Err)
		assert.ErrorIs(t, report.Files[1].Err, ErrNotShortClip)
		assert.ErrorIs(t, report.Files[2].Err, ErrNotShortClip)
		assert.NoFileExists(t, filepath.Join(env.dest, "processed_1.wav"))
	})

	t.Run("should drop converted clips in unsupported languages or failed transcriptions", func(t *testing.T) {
		// Arrange
		env := newShortsEnv(t)
		env.writeWAV(t, "a.wav", 1, 16000, 1)
		env.writeWAV(t, "b.wav", 1, 16000, 1)
		tr := &fakeTranscriber{
			results: map[string]transcriber.TranscriptResult{"processed_0.wav": {Language: "de", Text: "hallo"}},
			fail:    map[string]bool{"processed_1.wav": true},
		}

		// Act
		report, anno := env.run(t, &fakeSeparator{}, tr)

		// Assert
		assert.Empty(t, anno)
		assert.ErrorIs(t, report.Files[0].Err, language.ErrUnsupportedLanguage)
		assert.ErrorIs(t, report.Files[1].Err, transcriber.ErrTranscriptionFailed)
		assert.NoFileExists(t, filepath.Join(env.dest, "processed_0.wav"))
		assert.NoFileExists(t, filepath.Join(env.dest, "processed_1.wav"))
	})

	t.Run("should keep existing speaker files and warn when nothing was produced", func(t *testing.T) {
		// Arrange
		env := newShortsEnv(t)
		require.NoError(t, os.MkdirAll(env.dest, 0o755))
		longClip := filepath.Join(env.dest, "talk_0.wav")
		require.NoError(t, os.WriteFile(longClip, []byte("clip"), 0o644))
		logger, logs := observedLogger(zapcore.WarnLevel)

		// Act
		report, anno := env.runWithLogger(t, logger, &fakeSeparator{}, &fakeTranscriber{})

		// Assert
		assert.Empty(t, anno)
		assert.Equal(t, 0, report.Records)
		assert.FileExists(t, longClip)
		assert.Equal(t, 1, logs.FilterMessageSnippet("no short audios found").Len())
		assert.Equal(t, 1, logs.FilterMessageSnippet("this is not expected if short clips were supplied").Len())
		assert.Equal(t, 0, logs.FilterMessage("no audio or video files found").Len())
	})

	t.Run("should isolate a panicking transcription", func(t *testing.T) {
		env := newShortsEnv(t)
		env.writeWAV(t, "a.wav", 1, 16000, 1)
		tr := &fakeTranscriber{panics: map[string]bool{"processed_0.wav": true}}

		report, anno := env.run(t, &fakeSeparator{}, tr)

		assert.Empty(t, anno)
		assert.ErrorContains(t, report.Files[0].Err, "panic")
		assert.NoFileExists(t, filepath.Join(env.dest, "processed_0.wav"))
	})
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "processed_0.wav", ShortName(0))
	assert.Equal(t, "processed_12.wav", ShortName(12))
}
