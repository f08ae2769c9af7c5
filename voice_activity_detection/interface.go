package voice_activity_detection

type Interface interface {
	Flux(samples []int16) float64
	Reset()
}
