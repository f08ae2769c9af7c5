package speech_to_text

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

type sttImpl struct {
	model    whisper.Model
	language string
}

type Config struct {
	Model    whisper.Model
	Language string
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	language := cfg.Language
	if language == "" {
		language = "en"
	}

	return &sttImpl{
		model:    cfg.Model,
		language: language,
	}, nil
}

func (stt *sttImpl) Transcribe(samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	// a context is not safe for concurrent use, so every window gets its own
	context, err := stt.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}

	if err := context.SetLanguage(stt.language); err != nil {
		slog.Warn("failed to set whisper language, using default", "language", stt.language, "error", err)
	}

	if err := context.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}

	texts, err := outputSegments(context)
	if err != nil {
		return "", err
	}

	return strings.Join(texts, " "), nil
}

// segmentSource is the part of whisper.Context used to collect results.
type segmentSource interface {
	NextSegment() (whisper.Segment, error)
}

func outputSegments(context segmentSource) ([]string, error) {
	seenText := make(map[string]bool)

	texts := make([]string, 0)

	for {
		segment, err := context.NextSegment()
		if errors.Is(err, io.EOF) {
			return texts, nil
		} else if err != nil {
			return nil, fmt.Errorf("read segment: %w", err)
		}

		text := strings.TrimSpace(segment.Text)
		if !keepSegment(text) {
			continue
		}

		// if we've already seen this text, then ignore it
		if seenText[text] {
			continue
		}
		seenText[text] = true

		texts = append(texts, text)
	}
}

// keepSegment drops empty segments and whisper annotations such as
// "[BLANK_AUDIO]" or "(wind blowing)".
func keepSegment(text string) bool {
	if text == "" {
		return false
	}

	first, last := text[0], text[len(text)-1]

	return first != '(' && first != '[' && last != ')' && last != ']'
}

// PCM16ToFloat32 converts signed 16-bit samples to float32 in [-1, 1].
func PCM16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
