package audio_source

import (
	"errors"
	"fmt"
	"io"

	"assistant-wake-recorder/app_errors"
)

// readerImpl replays raw PCM from a reader, for example a recorded file.
type readerImpl struct {
	reader     io.Reader
	closer     io.Closer
	frameBytes int
	done       bool
}

// NewReader returns a source reading frames of frameBytes from r. The last
// partial frame is zero padded. If r is an io.Closer it is closed by Close.
func NewReader(r io.Reader, frameBytes int) (Interface, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is nil")
	}

	if frameBytes <= 0 || frameBytes%2 != 0 {
		return nil, fmt.Errorf("invalid frame size %d", frameBytes)
	}

	closer, _ := r.(io.Closer)

	return &readerImpl{reader: r, closer: closer, frameBytes: frameBytes}, nil
}

func (s *readerImpl) Open() error { return nil }

func (s *readerImpl) NextFrame(buf []byte) (int, error) {
	if s.done {
		return 0, io.EOF
	}

	if len(buf) < s.frameBytes {
		return 0, app_errors.Newf(app_errors.KindDevice, "read frame", "buffer of %d bytes is smaller than a frame", len(buf))
	}

	frame := buf[:s.frameBytes]
	n, err := io.ReadFull(s.reader, frame)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		clear(frame[n:])
		s.done = true
		return s.frameBytes, nil
	case errors.Is(err, io.EOF):
		s.done = true
		return 0, io.EOF
	default:
		return 0, app_errors.Device("read frame", err)
	}
}

func (s *readerImpl) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
