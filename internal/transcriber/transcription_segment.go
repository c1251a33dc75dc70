package transcriber

import (
	"fmt"
	"math"
	"strings"
)

// TranscriptSegment is one timed span of recognized speech, in seconds from the start of the track
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptResult is the recognizer output for one file
type TranscriptResult struct {
	Language string              `json:"language"`
	Text     string              `json:"text"`
	Segments []TranscriptSegment `json:"segments"`
}

// FullText returns the whole-file transcript, falling back to the joined segment texts
func (tr TranscriptResult) FullText() string {
	if text := strings.TrimSpace(tr.Text); text != "" {
		return text
	}
	parts := make([]string, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Validate checks if the TranscriptSegment has finite timestamps.
// Negative starts are clamped when slicing and end <= start is left to the segmenter.
func (ts *TranscriptSegment) Validate() error {
	if math.IsNaN(ts.Start) || math.IsInf(ts.Start, 0) {
		return fmt.Errorf("start must be a finite number")
	}

	if math.IsNaN(ts.End) || math.IsInf(ts.End, 0) {
		return fmt.Errorf("end must be a finite number")
	}

	return nil
}

// Duration returns the segment length in seconds; zero or negative for degenerate segments
func (ts *TranscriptSegment) Duration() float64 {
	return ts.End - ts.Start
}
