// Package clip_encoder turns raw PCM into a self-contained WAV clip.
package clip_encoder

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

const (
	// ContentType identifies the encoded payload for HTTP uploads.
	ContentType = "audio/vnd.wave;codec=1"

	pcmFormat = 1
	clipName  = "clip.wav"
)

var ErrEmptyClip = errors.New("clip_encoder: no audio to encode")

// Encode wraps little-endian PCM in a RIFF/WAVE container. The output only
// depends on its inputs, so encoding the same audio twice yields identical
// bytes. A trailing partial sample is dropped.
func Encode(pcm []byte, sampleRate, channels, sampleWidthBytes int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("clip_encoder: invalid format %d Hz, %d channels", sampleRate, channels)
	}

	if sampleWidthBytes != 1 && sampleWidthBytes != 2 {
		return nil, fmt.Errorf("clip_encoder: unsupported sample width %d", sampleWidthBytes)
	}

	samples := decodeSamples(pcm, sampleWidthBytes)
	if len(samples) == 0 {
		return nil, ErrEmptyClip
	}

	// the wav encoder seeks back to patch chunk sizes, so it writes into an
	// in-memory file rather than a plain buffer
	fs := afero.NewMemMapFs()
	f, err := fs.Create(clipName)
	if err != nil {
		return nil, err
	}

	enc := wav.NewEncoder(f, sampleRate, sampleWidthBytes*8, channels, pcmFormat)

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           samples,
		SourceBitDepth: sampleWidthBytes * 8,
	}

	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("clip_encoder: write samples: %w", err)
	}

	if err := enc.Close(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("clip_encoder: finalize: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, err
	}

	return afero.ReadFile(fs, clipName)
}

func decodeSamples(pcm []byte, width int) []int {
	if width == 1 {
		samples := make([]int, len(pcm))
		for i, b := range pcm {
			samples[i] = int(b)
		}
		return samples
	}

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return samples
}
