package speech_decoder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"assistant-wake-recorder/app_errors"
	"assistant-wake-recorder/ring_buffer"
	"assistant-wake-recorder/speech_to_text"
	"assistant-wake-recorder/voice_activity_detection"
)

const (
	defaultSampleRate  = 16000
	defaultFrameSize   = 1024
	defaultMinRMS      = 0.01
	defaultMinFlux     = 0.005
	defaultHangover    = 500 * time.Millisecond
	defaultWindowInSec = 4.0
)

// whisperImpl emulates a keyphrase search on top of whisper. Voice activity
// comes from spectral flux and energy; whenever a stretch of speech ends the
// buffered window is transcribed and checked against the keyphrase.
type whisperImpl struct {
	transcriber speech_to_text.Interface
	vad         voice_activity_detection.Interface
	window      ring_buffer.Interface

	keyphrase  string
	sampleRate int
	minRMS     float64
	minFlux    float64
	hangover   time.Duration
	verbose    bool

	inUtterance   bool
	inSpeech      bool
	silence       time.Duration
	pendingSearch bool
	deferred      bool
	hypothesis    string
}

type WhisperConfig struct {
	Transcriber speech_to_text.Interface
	Decoder     *Config
	// FrameSize is the number of samples per frame, used to size the
	// spectral analysis.
	FrameSize int
}

// NewWhisper builds a decoder from the flags in cfg.Decoder:
// -keyphrase, -samprate, -vad_min_rms, -vad_min_flux, -vad_hangover (ms),
// -window (seconds) and -logfn.
func NewWhisper(cfg *WhisperConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is nil")
	}

	flags := cfg.Decoder
	if flags == nil {
		flags = &Config{flags: map[string]any{}}
	}

	frameSize := cfg.FrameSize
	if frameSize <= 0 {
		frameSize = defaultFrameSize
	}

	sampleRate := int(flags.Int("-samprate", defaultSampleRate))
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	windowSamples := int(flags.Float("-window", defaultWindowInSec) * float64(sampleRate))
	logfn := flags.String("-logfn", "")

	return &whisperImpl{
		transcriber: cfg.Transcriber,
		vad:         voice_activity_detection.New(frameSize),
		window:      ring_buffer.New(windowSamples),
		keyphrase:   flags.String("-keyphrase", ""),
		sampleRate:  sampleRate,
		minRMS:      flags.Float("-vad_min_rms", defaultMinRMS),
		minFlux:     flags.Float("-vad_min_flux", defaultMinFlux),
		hangover:    time.Duration(flags.Int("-vad_hangover", defaultHangover.Milliseconds())) * time.Millisecond,
		verbose:     logfn != "" && logfn != os.DevNull,
	}, nil
}

func (d *whisperImpl) BeginUtterance() error {
	if d.inUtterance {
		return app_errors.Decoder("begin utterance", errors.New("utterance already started"))
	}

	d.inUtterance = true

	return nil
}

func (d *whisperImpl) EndUtterance() (string, error) {
	if !d.inUtterance {
		return "", app_errors.Decoder("end utterance", errors.New("no utterance in progress"))
	}

	var err error
	if d.deferred && d.pendingSearch {
		err = d.search()
	}

	hypothesis := d.hypothesis

	d.inUtterance = false
	d.inSpeech = false
	d.silence = 0
	d.pendingSearch = false
	d.deferred = false
	d.hypothesis = ""
	d.window.Clear()
	d.vad.Reset()

	return hypothesis, err
}

func (d *whisperImpl) ProcessFrame(frame []byte, opts ProcessOptions) error {
	if !d.inUtterance {
		return app_errors.Decoder("process frame", errors.New("no utterance in progress"))
	}

	samples := bytesToSamples(frame)
	speechEnded := d.updateSpeech(samples)

	if opts.NoSearch {
		return nil
	}

	d.window.Add(samples)
	if d.inSpeech {
		d.pendingSearch = true
	}

	if opts.FullUtterance {
		d.deferred = true
		return nil
	}

	if speechEnded && d.pendingSearch {
		return d.search()
	}

	return nil
}

func (d *whisperImpl) InSpeech() bool {
	return d.inSpeech
}

func (d *whisperImpl) Hypothesis() string {
	return d.hypothesis
}

// updateSpeech advances the voice activity state by one frame and reports
// whether a stretch of speech just ended.
func (d *whisperImpl) updateSpeech(samples []int16) bool {
	rms := voice_activity_detection.RMS(samples)
	flux := d.vad.Flux(samples)

	if !d.inSpeech {
		if rms >= d.minRMS && flux >= d.minFlux {
			d.inSpeech = true
			d.silence = 0
		}
		return false
	}

	if rms >= d.minRMS {
		d.silence = 0
		return false
	}

	d.silence += time.Duration(len(samples)) * time.Second / time.Duration(d.sampleRate)
	if d.silence >= d.hangover {
		d.inSpeech = false
		d.silence = 0
		return true
	}

	return false
}

// search transcribes the buffered window and fills the hypothesis slot when
// it holds the keyphrase. Without a keyphrase any transcript is accepted.
func (d *whisperImpl) search() error {
	samples := d.window.Read()
	if len(samples) == d.window.Cap() {
		slog.Debug("search window full, oldest audio dropped", "samples", len(samples))
	}
	d.window.Clear()
	d.pendingSearch = false

	text, err := d.transcriber.Transcribe(speech_to_text.PCM16ToFloat32(samples))
	if err != nil {
		return app_errors.Decoder("transcribe", err)
	}

	if d.verbose {
		slog.Debug("decoder transcript", "text", text, "samples", len(samples))
	}

	if d.hypothesis != "" || NormalizePhrase(text) == "" {
		return nil
	}

	switch {
	case d.keyphrase == "":
		d.hypothesis = text
	case MatchesKeyphrase(text, d.keyphrase):
		d.hypothesis = d.keyphrase
	}

	return nil
}

// bytesToSamples decodes little-endian 16-bit PCM; a trailing odd byte is
// ignored.
func bytesToSamples(frame []byte) []int16 {
	samples := make([]int16, len(frame)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(frame[i*2:]))
	}
	return samples
}
