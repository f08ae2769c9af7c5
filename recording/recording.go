// Package recording holds the frames captured during one wake-phrase session.
package recording

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("recording: session closed")

// Buffer is an append-only accumulator of raw frames.
type Buffer struct {
	frames [][]byte
	size   int
	closed bool
}

// Append copies frame into the buffer.
func (b *Buffer) Append(frame []byte) error {
	if b.closed {
		return ErrClosed
	}

	b.frames = append(b.frames, append([]byte(nil), frame...))
	b.size += len(frame)

	return nil
}

// Snapshot returns all appended frames concatenated in arrival order.
func (b *Buffer) Snapshot() []byte {
	out := make([]byte, 0, b.size)
	for _, f := range b.frames {
		out = append(out, f...)
	}
	return out
}

// Len is the number of buffered bytes.
func (b *Buffer) Len() int { return b.size }

// Frames is the number of buffered frames.
func (b *Buffer) Frames() int { return len(b.frames) }

// Session is the bounded interval of active recording after a trigger.
type Session struct {
	ID                   string
	StartedAt            time.Time
	LastSpeechObservedAt time.Time

	buffer Buffer
}

func NewSession(now time.Time) *Session {
	return &Session{
		ID:                   uuid.NewString(),
		StartedAt:            now,
		LastSpeechObservedAt: now,
	}
}

func (s *Session) Append(frame []byte) error {
	return s.buffer.Append(frame)
}

// ObserveSpeech records that the speaker was still talking at now.
func (s *Session) ObserveSpeech(now time.Time) {
	if now.After(s.LastSpeechObservedAt) {
		s.LastSpeechObservedAt = now
	}
}

func (s *Session) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

func (s *Session) Silence(now time.Time) time.Duration {
	return now.Sub(s.LastSpeechObservedAt)
}

// Close ends the session and returns its audio. No frame can be appended
// afterwards.
func (s *Session) Close() []byte {
	s.buffer.closed = true
	return s.buffer.Snapshot()
}

func (s *Session) Bytes() int  { return s.buffer.Len() }
func (s *Session) Frames() int { return s.buffer.Frames() }
