// Package media decides which input files are recordings worth processing.
// Classification looks at content signatures only; file names are never trusted.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/h2non/filetype"
)

// headerSize is how many leading bytes are inspected for a signature
const headerSize = 8192

// ErrUnrecognizedMedia marks a file that is neither audio nor video
var ErrUnrecognizedMedia = errors.New("unrecognized media")

// Kind is the coarse media class of a file
type Kind string

const (
	KindAudio        Kind = "audio"
	KindVideo        Kind = "video"
	KindUnrecognized Kind = "unrecognized"
)

// Supported reports whether the pipeline can process this kind
func (k Kind) Supported() bool {
	return k == KindAudio || k == KindVideo
}

// InputFile is one discovered input and its detected kind
type InputFile struct {
	Path string
	Kind Kind
	MIME string
}

// Stem returns the input's base name without extension
func (f InputFile) Stem() string {
	return Stem(f.Path)
}

// Classify sniffs the file header and reports audio, video or unrecognized
func Classify(path string) (Kind, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnrecognized, "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, headerSize)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return KindUnrecognized, "", fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	kind, err := filetype.Match(header[:n])
	if err != nil || kind == filetype.Unknown {
		return KindUnrecognized, "", nil
	}

	switch kind.MIME.Type {
	case "audio":
		return KindAudio, kind.MIME.Value, nil
	case "video":
		return KindVideo, kind.MIME.Value, nil
	default:
		return KindUnrecognized, kind.MIME.Value, nil
	}
}

// ListInputs returns every regular file directly inside dir, classified and sorted by name.
// Unreadable files are reported as unrecognized rather than failing the listing.
func ListInputs(dir string) ([]InputFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory %s: %w", dir, err)
	}

	inputs := make([]InputFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		kind, mime, err := Classify(path)
		if err != nil {
			kind = KindUnrecognized
		}
		inputs = append(inputs, InputFile{Path: path, Kind: kind, MIME: mime})
	}

	sort.Slice(inputs, func(i, j int) bool {
		return inputs[i].Path < inputs[j].Path
	})
	return inputs, nil
}

// Stem returns the base name of path without its final extension
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
