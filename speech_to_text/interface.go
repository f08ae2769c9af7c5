package speech_to_text

// Interface turns a window of mono float32 samples in [-1, 1] into text.
type Interface interface {
	Transcribe(samples []float32) (string, error)
}
