package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// pcmFormat is the WAVE format tag for integer PCM
const pcmFormat = 1

// ReadWAV decodes an integer PCM WAV file into a normalized waveform
func ReadWAV(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid WAV file", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	numChannels := int(decoder.NumChans)
	bitDepth := int(decoder.BitDepth)
	if numChannels <= 0 || bitDepth <= 0 {
		return nil, fmt.Errorf("%s has an invalid format (%d channels, %d bits)", path, numChannels, bitDepth)
	}

	numFrames := len(buf.Data) / numChannels
	w := NewWaveform(numChannels, numFrames, int(decoder.SampleRate), bitDepth)
	scale := fullScale(bitDepth)
	for frame := 0; frame < numFrames; frame++ {
		for ch := 0; ch < numChannels; ch++ {
			sample := buf.Data[frame*numChannels+ch]
			if bitDepth == 8 {
				// 8-bit WAV is unsigned with a 128 midpoint.
				sample -= 128
			}
			w.Channels[ch][frame] = float64(sample) / scale
		}
	}
	return w, nil
}

// WriteWAV encodes w as integer PCM at its own bit depth. Waveforms without a depth or
// decoded from 8-bit sources are written as 16-bit. The file is written to a
// temporary name and renamed into place so readers never observe a partial clip.
func WriteWAV(path string, w *Waveform) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	bitDepth := w.BitDepth
	switch bitDepth {
	case 16, 24, 32:
	case 0, 8:
		bitDepth = 16
	default:
		return fmt.Errorf("cannot write %s: unsupported bit depth %d", path, w.BitDepth)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	numChannels := w.NumChannels()
	numFrames := w.Len()
	data := make([]int, numFrames*numChannels)
	scale := fullScale(bitDepth)
	for frame := 0; frame < numFrames; frame++ {
		for ch := 0; ch < numChannels; ch++ {
			data[frame*numChannels+ch] = quantize(w.Channels[ch][frame], scale)
		}
	}

	encoder := wav.NewEncoder(tmp, w.SampleRate, bitDepth, numChannels, pcmFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: numChannels, SampleRate: w.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := encoder.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := encoder.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// fullScale is the magnitude of the most negative integer sample at bitDepth
func fullScale(bitDepth int) float64 {
	return math.Ldexp(1, bitDepth-1)
}

// quantize maps a normalized sample onto the integer grid, clipping at full scale
func quantize(v, scale float64) int {
	q := math.Round(v * scale)
	if q > scale-1 {
		q = scale - 1
	}
	if q < -scale {
		q = -scale
	}
	return int(q)
}
