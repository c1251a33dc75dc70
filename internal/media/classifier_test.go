package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wavHeader is the minimal RIFF/WAVE preamble of a PCM file
var wavHeader = []byte{
	'R', 'I', 'F', 'F', 0x24, 0x00, 0x00, 0x00, 'W', 'A', 'V', 'E',
	'f', 'm', 't', ' ', 0x10, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x3e, 0x00, 0x00, 0x00, 0x7d, 0x00, 0x00, 0x02, 0x00, 0x10, 0x00,
	'd', 'a', 't', 'a', 0x00, 0x00, 0x00, 0x00,
}

// mp4Header is an ISO base media "ftyp" box
var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2',
	0x00, 0x00, 0x00, 0x00, 'm', 'p', '4', '2', 'i', 's', 'o', 'm',
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestClassify(t *testing.T) {
	dir := t.TempDir()

	t.Run("should classify a WAV file as audio", func(t *testing.T) {
		// Arrange
		path := writeFile(t, dir, "speech.wav", wavHeader)

		// Act
		kind, mime, err := Classify(path)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, KindAudio, kind)
		assert.Contains(t, mime, "audio/")
	})

	t.Run("should classify an MP4 file as video", func(t *testing.T) {
		path := writeFile(t, dir, "clip.mp4", mp4Header)

		kind, _, err := Classify(path)

		require.NoError(t, err)
		assert.Equal(t, KindVideo, kind)
	})

	t.Run("should ignore the extension when content is text", func(t *testing.T) {
		path := writeFile(t, dir, "notes.wav", []byte("just some notes, not audio"))

		kind, _, err := Classify(path)

		require.NoError(t, err)
		assert.Equal(t, KindUnrecognized, kind)
	})

	t.Run("should detect audio hidden behind a misleading name", func(t *testing.T) {
		path := writeFile(t, dir, "readme.txt", wavHeader)

		kind, _, err := Classify(path)

		require.NoError(t, err)
		assert.Equal(t, KindAudio, kind)
	})

	t.Run("should treat an empty file as unrecognized", func(t *testing.T) {
		path := writeFile(t, dir, "empty.bin", nil)

		kind, _, err := Classify(path)

		require.NoError(t, err)
		assert.Equal(t, KindUnrecognized, kind)
	})

	t.Run("should return error for missing files", func(t *testing.T) {
		kind, _, err := Classify(filepath.Join(dir, "missing.wav"))

		assert.Error(t, err)
		assert.Equal(t, KindUnrecognized, kind)
	})
}

func TestListInputs(t *testing.T) {
	t.Run("should list regular files sorted with their kinds", func(t *testing.T) {
		// Arrange
		dir := t.TempDir()
		writeFile(t, dir, "b.wav", wavHeader)
		writeFile(t, dir, "a.mp4", mp4Header)
		writeFile(t, dir, "c.txt", []byte("hello"))
		require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))

		// Act
		inputs, err := ListInputs(dir)

		// Assert
		require.NoError(t, err)
		require.Len(t, inputs, 3)
		assert.Equal(t, "a.mp4", filepath.Base(inputs[0].Path))
		assert.Equal(t, KindVideo, inputs[0].Kind)
		assert.Equal(t, KindAudio, inputs[1].Kind)
		assert.Equal(t, KindUnrecognized, inputs[2].Kind)
		assert.False(t, inputs[2].Kind.Supported())
	})

	t.Run("should fail when the directory cannot be read", func(t *testing.T) {
		inputs, err := ListInputs(filepath.Join(t.TempDir(), "missing"))

		assert.Error(t, err)
		assert.Nil(t, inputs)
		assert.Contains(t, err.Error(), "failed to read input directory")
	})
}

func TestStem(t *testing.T) {
	assert.Equal(t, "interview", Stem("/data/raw/interview.mp3"))
	assert.Equal(t, "take.2", Stem("take.2.wav"))
	assert.Equal(t, "noext", Stem("noext"))
	assert.Equal(t, "interview", InputFile{Path: "raw/interview.flac"}.Stem())
}
