package speech_decoder

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"assistant-wake-recorder/app_errors"
)

const testFrameSamples = 1024

type fakeTranscriber struct {
	text    string
	err     error
	calls   int
	samples []int
}

func (f *fakeTranscriber) Transcribe(samples []float32) (string, error) {
	f.calls++
	f.samples = append(f.samples, len(samples))
	return f.text, f.err
}

func silenceFrame() []byte {
	return make([]byte, testFrameSamples*2)
}

func toneFrame() []byte {
	frame := make([]byte, testFrameSamples*2)
	for i := 0; i < testFrameSamples; i++ {
		s := int16(0.5 * 32767 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(s))
	}
	return frame
}

func newTestDecoder(t *testing.T, transcriber *fakeTranscriber, opts Options) Interface {
	t.Helper()

	cfg, err := NewConfig(opts)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}

	decoder, err := NewWhisper(&WhisperConfig{Transcriber: transcriber, Decoder: cfg, FrameSize: testFrameSamples})
	if err != nil {
		t.Fatalf("NewWhisper: %v", err)
	}
	return decoder
}

// feed pushes silence, speech and then enough silence to pass the default
// 500ms hangover (8 frames of 64ms).
func feed(t *testing.T, decoder Interface, opts ProcessOptions) {
	t.Helper()

	frames := [][]byte{silenceFrame(), silenceFrame()}
	for i := 0; i < 5; i++ {
		frames = append(frames, toneFrame())
	}
	for i := 0; i < 8; i++ {
		frames = append(frames, silenceFrame())
	}

	for i, frame := range frames {
		if err := decoder.ProcessFrame(frame, opts); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
}

func TestWhisperDecoderDetectsKeyphrase(t *testing.T) {
	transcriber := &fakeTranscriber{text: " Hey, Rodney! what time is it"}
	decoder := newTestDecoder(t, transcriber, Options{"keyphrase": "hey rodney"})

	if err := decoder.BeginUtterance(); err != nil {
		t.Fatalf("BeginUtterance: %v", err)
	}

	if err := decoder.ProcessFrame(silenceFrame(), ProcessOptions{}); err != nil {
		t.Fatal(err)
	}
	if decoder.InSpeech() {
		t.Error("silence should not be speech")
	}

	if err := decoder.ProcessFrame(toneFrame(), ProcessOptions{}); err != nil {
		t.Fatal(err)
	}
	if !decoder.InSpeech() {
		t.Error("tone onset should be speech")
	}

	for i := 0; i < 7; i++ {
		_ = decoder.ProcessFrame(silenceFrame(), ProcessOptions{})
	}
	if !decoder.InSpeech() || transcriber.calls != 0 {
		t.Fatal("speech should persist through the hangover without a search")
	}

	_ = decoder.ProcessFrame(silenceFrame(), ProcessOptions{})
	if decoder.InSpeech() {
		t.Error("speech should end after the hangover")
	}
	if transcriber.calls != 1 {
		t.Fatalf("expected one transcription, got %d", transcriber.calls)
	}
	if transcriber.samples[0] != 10*testFrameSamples {
		t.Errorf("expected the whole window (%d samples), got %d", 10*testFrameSamples, transcriber.samples[0])
	}
	if decoder.Hypothesis() != "hey rodney" {
		t.Errorf("Hypothesis() = %q, want %q", decoder.Hypothesis(), "hey rodney")
	}

	// the slot survives further frames
	feed(t, decoder, ProcessOptions{})
	if decoder.Hypothesis() != "hey rodney" {
		t.Error("hypothesis should only clear at utterance end")
	}

	hyp, err := decoder.EndUtterance()
	if err != nil {
		t.Fatalf("EndUtterance: %v", err)
	}
	if hyp != "hey rodney" {
		t.Errorf("EndUtterance() = %q, want %q", hyp, "hey rodney")
	}
	if decoder.Hypothesis() != "" || decoder.InSpeech() {
		t.Error("state should be reset after EndUtterance")
	}
}

func TestWhisperDecoderKeyphraseMismatch(t *testing.T) {
	transcriber := &fakeTranscriber{text: "hello there"}
	decoder := newTestDecoder(t, transcriber, Options{"keyphrase": "hey rodney"})

	_ = decoder.BeginUtterance()
	feed(t, decoder, ProcessOptions{})

	if transcriber.calls != 1 {
		t.Fatalf("expected one transcription, got %d", transcriber.calls)
	}
	if decoder.Hypothesis() != "" {
		t.Errorf("expected no hypothesis, got %q", decoder.Hypothesis())
	}
}

func TestWhisperDecoderWithoutKeyphrase(t *testing.T) {
	transcriber := &fakeTranscriber{text: "anything at all"}
	decoder := newTestDecoder(t, transcriber, nil)

	_ = decoder.BeginUtterance()
	feed(t, decoder, ProcessOptions{})

	if decoder.Hypothesis() != "anything at all" {
		t.Errorf("Hypothesis() = %q", decoder.Hypothesis())
	}
}

func TestWhisperDecoderNoSearch(t *testing.T) {
	transcriber := &fakeTranscriber{text: "hey rodney"}
	decoder := newTestDecoder(t, transcriber, Options{"keyphrase": "hey rodney"})

	_ = decoder.BeginUtterance()
	_ = decoder.ProcessFrame(silenceFrame(), ProcessOptions{NoSearch: true})
	_ = decoder.ProcessFrame(toneFrame(), ProcessOptions{NoSearch: true})

	if !decoder.InSpeech() {
		t.Error("voice activity must be tracked without search")
	}

	feed(t, decoder, ProcessOptions{NoSearch: true})

	if transcriber.calls != 0 {
		t.Errorf("expected no transcription, got %d", transcriber.calls)
	}
	if decoder.Hypothesis() != "" {
		t.Error("expected no hypothesis without search")
	}
}

func TestWhisperDecoderFullUtterance(t *testing.T) {
	transcriber := &fakeTranscriber{text: "hey rodney"}
	decoder := newTestDecoder(t, transcriber, Options{"keyphrase": "hey rodney"})

	_ = decoder.BeginUtterance()
	feed(t, decoder, ProcessOptions{FullUtterance: true})

	if transcriber.calls != 0 || decoder.Hypothesis() != "" {
		t.Fatal("full utterance mode must defer the search")
	}

	hyp, err := decoder.EndUtterance()
	if err != nil {
		t.Fatalf("EndUtterance: %v", err)
	}
	if transcriber.calls != 1 {
		t.Errorf("expected one transcription at utterance end, got %d", transcriber.calls)
	}
	if hyp != "hey rodney" {
		t.Errorf("EndUtterance() = %q", hyp)
	}
}

func TestWhisperDecoderErrors(t *testing.T) {
	t.Run("frames outside an utterance are rejected", func(t *testing.T) {
		decoder := newTestDecoder(t, &fakeTranscriber{}, nil)

		err := decoder.ProcessFrame(silenceFrame(), ProcessOptions{})
		if !app_errors.IsKind(err, app_errors.KindDecoder) {
			t.Errorf("expected decoder error, got %v", err)
		}

		if _, err := decoder.EndUtterance(); !app_errors.IsKind(err, app_errors.KindDecoder) {
			t.Errorf("expected decoder error, got %v", err)
		}
	})

	t.Run("beginning twice is rejected", func(t *testing.T) {
		decoder := newTestDecoder(t, &fakeTranscriber{}, nil)

		_ = decoder.BeginUtterance()
		if err := decoder.BeginUtterance(); !app_errors.IsKind(err, app_errors.KindDecoder) {
			t.Errorf("expected decoder error, got %v", err)
		}
	})

	t.Run("transcription failures are recoverable by rotating the utterance", func(t *testing.T) {
		boom := errors.New("boom")
		transcriber := &fakeTranscriber{err: boom}
		decoder := newTestDecoder(t, transcriber, Options{"keyphrase": "hey rodney"})

		_ = decoder.BeginUtterance()

		var failed error
		for _, frame := range [][]byte{toneFrame(), silenceFrame(), silenceFrame(), silenceFrame(), silenceFrame(),
			silenceFrame(), silenceFrame(), silenceFrame(), silenceFrame()} {
			if err := decoder.ProcessFrame(frame, ProcessOptions{}); err != nil {
				failed = err
			}
		}

		if !errors.Is(failed, boom) || !app_errors.IsKind(failed, app_errors.KindDecoder) {
			t.Fatalf("expected wrapped decoder error, got %v", failed)
		}

		_, _ = decoder.EndUtterance()
		if err := decoder.BeginUtterance(); err != nil {
			t.Fatalf("expected recovery, got %v", err)
		}

		transcriber.err = nil
		transcriber.text = "hey rodney"
		feed(t, decoder, ProcessOptions{})
		if decoder.Hypothesis() != "hey rodney" {
			t.Errorf("Hypothesis() = %q after recovery", decoder.Hypothesis())
		}
	})
}

func TestNewWhisperValidatesConfig(t *testing.T) {
	if _, err := NewWhisper(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewWhisper(&WhisperConfig{}); err == nil {
		t.Error("expected error for nil transcriber")
	}

	cfg, _ := NewConfig(Options{"samprate": 0})
	if _, err := NewWhisper(&WhisperConfig{Transcriber: &fakeTranscriber{}, Decoder: cfg}); err == nil {
		t.Error("expected error for zero sample rate")
	}
}
