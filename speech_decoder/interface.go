package speech_decoder

// ProcessOptions are passed through unchanged with every frame.
type ProcessOptions struct {
	// NoSearch feeds audio without running recognition (raw capture).
	NoSearch bool
	// FullUtterance defers recognition until the utterance ends.
	FullUtterance bool
}

// Interface is a stateful, per-utterance speech decoder. It is not safe for
// concurrent use.
//
// The hypothesis slot is only cleared by EndUtterance: once a phrase has
// been recognised, Hypothesis keeps returning it for the rest of the
// utterance.
type Interface interface {
	BeginUtterance() error
	// EndUtterance finalises and returns the current hypothesis, then resets
	// all per-utterance state. The decoder is reset even when an error is
	// returned.
	EndUtterance() (string, error)
	ProcessFrame(frame []byte, opts ProcessOptions) error
	InSpeech() bool
	Hypothesis() string
}
