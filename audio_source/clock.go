package audio_source

import (
	"sync/atomic"
	"time"
)

// StreamClock tells time by the amount of audio delivered rather than the
// wall clock. Sources that are read faster than real time, such as files,
// need it for session limits to mean seconds of audio.
type StreamClock struct {
	start          time.Time
	bytesPerSecond int64
	consumed       atomic.Int64
}

// NewStreamClock starts a clock at start for mono 16-bit audio at sampleRate.
func NewStreamClock(start time.Time, sampleRate int) *StreamClock {
	return &StreamClock{start: start, bytesPerSecond: int64(sampleRate) * 2}
}

// Now is start plus the duration of all audio delivered so far.
func (c *StreamClock) Now() time.Time {
	return c.start.Add(time.Duration(c.consumed.Load()) * time.Second / time.Duration(c.bytesPerSecond))
}

func (c *StreamClock) Advance(n int) {
	c.consumed.Add(int64(n))
}

type timedSource struct {
	Interface
	clock *StreamClock
}

// Timed advances clock by every frame src delivers.
func Timed(src Interface, clock *StreamClock) Interface {
	return &timedSource{Interface: src, clock: clock}
}

func (s *timedSource) NextFrame(buf []byte) (int, error) {
	n, err := s.Interface.NextFrame(buf)
	if err == nil {
		s.clock.Advance(n)
	}
	return n, err
}
