package audio_source

// Interface yields fixed-size raw PCM frames (mono, signed 16-bit
// little-endian).
//
// NextFrame blocks until one frame is available and returns the number of
// bytes written to buf. It returns io.EOF once the stream has ended; any
// other error is a device error and ends the stream for good.
type Interface interface {
	Open() error
	NextFrame(buf []byte) (int, error)
	Close() error
}
