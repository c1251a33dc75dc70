// Package segmenter cuts a full vocal track into one clip per transcript segment.
package segmenter

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"corpusprep/internal/audio"
	"corpusprep/internal/transcriber"
)

// ErrDegenerateSegment marks a segment that maps to zero or negative length
var ErrDegenerateSegment = errors.New("degenerate segment")

// Clip is the slice of the waveform belonging to one transcript segment
type Clip struct {
	Index    int
	Segment  transcriber.TranscriptSegment
	Waveform *audio.Waveform
}

// Skipped records a segment that produced no clip and why
type Skipped struct {
	Index   int
	Segment transcriber.TranscriptSegment
	Err     error
}

// SampleRange converts segment times to the half-open frame range [start, end)
// at sampleRate, clamped to a buffer of length frames. Clamping happens before the
// integer conversion so far out-of-range timestamps cannot overflow.
func SampleRange(seg transcriber.TranscriptSegment, sampleRate, length int) (int, int) {
	rate := float64(sampleRate)
	start := clampFrame(math.Floor(seg.Start*rate), length)
	end := clampFrame(math.Floor(seg.End*rate), length)
	return start, end
}

func clampFrame(v float64, length int) int {
	if v <= 0 {
		return 0
	}
	if v >= float64(length) {
		return length
	}
	return int(v)
}

// Slice extracts a clip per segment, indexed by the segment's transcript position.
// Segments with start >= end after clamping are reported as skipped, never as empty clips.
func Slice(w *audio.Waveform, segments []transcriber.TranscriptSegment) ([]Clip, []Skipped) {
	clips := make([]Clip, 0, len(segments))
	var skipped []Skipped

	for i, seg := range segments {
		if err := seg.Validate(); err != nil {
			skipped = append(skipped, Skipped{
				Index:   i,
				Segment: seg,
				Err:     fmt.Errorf("%w: %v", ErrDegenerateSegment, err),
			})
			continue
		}

		start, end := SampleRange(seg, w.SampleRate, w.Len())
		if start >= end {
			skipped = append(skipped, Skipped{
				Index:   i,
				Segment: seg,
				Err: fmt.Errorf("%w: %.3fs-%.3fs maps to frames [%d, %d)",
					ErrDegenerateSegment, seg.Start, seg.End, start, end),
			})
			continue
		}

		part, err := w.Frames(start, end)
		if err != nil {
			skipped = append(skipped, Skipped{Index: i, Segment: seg, Err: err})
			continue
		}
		clips = append(clips, Clip{Index: i, Segment: seg, Waveform: part})
	}
	return clips, skipped
}

// ClipStem returns the clip name prefix for an input stem. The annotation separator
// is replaced so a clip path always parses back out of a manifest line.
func ClipStem(stem string) string {
	return strings.ReplaceAll(stem, "|", "_")
}

// ClipName returns the deterministic file name of a clip
func ClipName(stem string, index int) string {
	return fmt.Sprintf("%s_%d.wav", ClipStem(stem), index)
}

// Writer transforms clips and writes them into a destination directory
type Writer struct {
	dir  string
	opts audio.Options
}

// NewWriter creates a Writer for dir applying opts to every clip
func NewWriter(dir string, opts audio.Options) *Writer {
	return &Writer{dir: dir, opts: opts}
}

// Write downmixes, resamples and re-quantizes the clip, then writes it as <stem>_<index>.wav
func (w *Writer) Write(stem string, clip Clip) (string, error) {
	transformed, err := audio.Transform(clip.Waveform, w.opts)
	if err != nil {
		return "", fmt.Errorf("failed to transform clip %d: %w", clip.Index, err)
	}

	path := filepath.Join(w.dir, ClipName(stem, clip.Index))
	if err := audio.WriteWAV(path, transformed); err != nil {
		return "", err
	}
	return path, nil
}
