package audio

import (
	"fmt"
	"math"
)

// Resampler changes the sample rate of a mono or multi-channel waveform
type Resampler interface {
	Resample(w *Waveform, targetRate int) (*Waveform, error)
}

// Options selects the optional transform stages; zero values keep the original format
type Options struct {
	SampleRate int
	BitDepth   int
	Resampler  Resampler
}

// Transform runs downmix, resample and bit-depth conversion in that fixed order.
// Each stage either returns its input untouched or a new waveform.
func Transform(w *Waveform, opts Options) (*Waveform, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	out := Downmix(w)

	resampled, err := Resample(out, opts.SampleRate, opts.Resampler)
	if err != nil {
		return nil, err
	}

	return ConvertBitDepth(resampled, opts.BitDepth)
}

// Downmix averages all channels into one. Mono input is returned unchanged.
func Downmix(w *Waveform) *Waveform {
	if w.NumChannels() <= 1 {
		return w
	}
	n := w.Len()
	mono := make([]float64, n)
	for _, ch := range w.Channels {
		for i, v := range ch {
			mono[i] += v
		}
	}
	count := float64(w.NumChannels())
	for i := range mono {
		mono[i] /= count
	}
	return &Waveform{Channels: [][]float64{mono}, SampleRate: w.SampleRate, BitDepth: w.BitDepth}
}

// Resample converts w to targetRate when it is set and differs from the current rate
func Resample(w *Waveform, targetRate int, r Resampler) (*Waveform, error) {
	if targetRate <= 0 || targetRate == w.SampleRate {
		return w, nil
	}
	if r == nil {
		r = LinearResampler{}
	}
	out, err := r.Resample(w, targetRate)
	if err != nil {
		return nil, fmt.Errorf("failed to resample %d Hz to %d Hz: %w", w.SampleRate, targetRate, err)
	}
	return out, nil
}

// ConvertBitDepth re-quantizes samples onto the grid of targetBits when it is set and
// differs from the current depth. The result carries the new depth for encoding.
func ConvertBitDepth(w *Waveform, targetBits int) (*Waveform, error) {
	if targetBits <= 0 || targetBits == w.BitDepth {
		return w, nil
	}
	switch targetBits {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", targetBits)
	}

	scale := fullScale(targetBits)
	out := &Waveform{
		Channels:   make([][]float64, w.NumChannels()),
		SampleRate: w.SampleRate,
		BitDepth:   targetBits,
	}
	for i, ch := range w.Channels {
		converted := make([]float64, len(ch))
		for j, v := range ch {
			converted[j] = float64(quantize(v, scale)) / scale
		}
		out.Channels[i] = converted
	}
	return out, nil
}

// LinearResampler interpolates linearly between neighbouring samples
type LinearResampler struct{}

// Resample implements Resampler
func (LinearResampler) Resample(w *Waveform, targetRate int) (*Waveform, error) {
	if w.SampleRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("invalid rates %d -> %d", w.SampleRate, targetRate)
	}
	n := w.Len()
	outLen := int(math.Round(float64(n) * float64(targetRate) / float64(w.SampleRate)))
	step := float64(w.SampleRate) / float64(targetRate)

	out := &Waveform{
		Channels:   make([][]float64, w.NumChannels()),
		SampleRate: targetRate,
		BitDepth:   w.BitDepth,
	}
	for c, ch := range w.Channels {
		resampled := make([]float64, outLen)
		for i := range resampled {
			pos := float64(i) * step
			idx := int(pos)
			if idx >= n-1 {
				if n > 0 {
					resampled[i] = ch[n-1]
				}
				continue
			}
			frac := pos - float64(idx)
			resampled[i] = ch[idx]*(1-frac) + ch[idx+1]*frac
		}
		out.Channels[c] = resampled
	}
	return out, nil
}
