package voice_activity_detection

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// vadImpl measures how much the magnitude spectrum changes from one frame to
// the next. Onsets of speech show up as large positive flux; a steady hum
// does not.
type vadImpl struct {
	frameSize    int
	window       []float64
	lastSpectrum []float64
}

func New(frameSize int) Interface {
	if frameSize < 2 {
		frameSize = 2
	}

	return &vadImpl{
		frameSize: frameSize,
		window:    window.Hann(frameSize),
	}
}

// Flux returns the mean positive spectral difference against the previous
// frame. Samples are normalised to [-1, 1]; short frames are zero padded.
func (v *vadImpl) Flux(samples []int16) float64 {
	in := make([]float64, v.frameSize)
	for i := 0; i < v.frameSize && i < len(samples); i++ {
		in[i] = float64(samples[i]) / 32768.0 * v.window[i]
	}

	bins := v.frameSize / 2
	spectrum := make([]float64, bins)
	for i, c := range fft.FFTReal(in)[:bins] {
		spectrum[i] = cmplx.Abs(c)
	}

	var flux float64
	if v.lastSpectrum != nil {
		for i := range spectrum {
			if d := spectrum[i] - v.lastSpectrum[i]; d > 0 {
				flux += d
			}
		}
	} else {
		for _, m := range spectrum {
			flux += m
		}
	}

	v.lastSpectrum = spectrum

	return flux / float64(bins)
}

func (v *vadImpl) Reset() {
	v.lastSpectrum = nil
}

// RMS returns the root mean square of the normalised samples.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		f := float64(s) / 32768.0
		sum += f * f
	}

	return math.Sqrt(sum / float64(len(samples)))
}
