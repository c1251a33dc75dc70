// Package audio holds the in-memory waveform and the transforms applied to every clip
// before it is written: downmix to mono, optional resample, optional re-quantization.
package audio

import (
	"fmt"
	"time"
)

// Waveform is a channels-first buffer of samples normalized to [-1, 1]
type Waveform struct {
	Channels   [][]float64
	SampleRate int
	BitDepth   int
}

// NewWaveform allocates a silent waveform
func NewWaveform(numChannels, numFrames, sampleRate, bitDepth int) *Waveform {
	channels := make([][]float64, numChannels)
	for i := range channels {
		channels[i] = make([]float64, numFrames)
	}
	return &Waveform{Channels: channels, SampleRate: sampleRate, BitDepth: bitDepth}
}

// NumChannels returns the channel count
func (w *Waveform) NumChannels() int {
	return len(w.Channels)
}

// Len returns the number of frames (samples per channel)
func (w *Waveform) Len() int {
	if len(w.Channels) == 0 {
		return 0
	}
	return len(w.Channels[0])
}

// Duration returns the playback length
func (w *Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(w.Len()) / float64(w.SampleRate) * float64(time.Second))
}

// Frames returns a new waveform holding frames [start, end) of every channel.
// The sample slices are copied so later transforms never touch the source.
func (w *Waveform) Frames(start, end int) (*Waveform, error) {
	if start < 0 || end > w.Len() || start > end {
		return nil, fmt.Errorf("frame range [%d, %d) outside waveform of %d frames", start, end, w.Len())
	}
	out := &Waveform{
		Channels:   make([][]float64, len(w.Channels)),
		SampleRate: w.SampleRate,
		BitDepth:   w.BitDepth,
	}
	for i, ch := range w.Channels {
		out.Channels[i] = append([]float64(nil), ch[start:end]...)
	}
	return out, nil
}

// Validate checks that the buffer is rectangular and has a usable format
func (w *Waveform) Validate() error {
	if len(w.Channels) == 0 {
		return fmt.Errorf("waveform has no channels")
	}
	if w.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", w.SampleRate)
	}
	n := len(w.Channels[0])
	for i, ch := range w.Channels {
		if len(ch) != n {
			return fmt.Errorf("channel %d has %d frames, expected %d", i, len(ch), n)
		}
	}
	return nil
}
