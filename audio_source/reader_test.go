package audio_source

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"assistant-wake-recorder/app_errors"
)

func TestReaderFrames(t *testing.T) {
	t.Run("full frames are delivered unchanged", func(t *testing.T) {
		data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
		src, err := NewReader(bytes.NewReader(data), 4)
		if err != nil {
			t.Fatal(err)
		}

		buf := make([]byte, 4)
		for i := 0; i < 2; i++ {
			n, err := src.NextFrame(buf)
			if err != nil {
				t.Fatalf("frame %d: %v", i, err)
			}
			if n != 4 || !bytes.Equal(buf, data[i*4:i*4+4]) {
				t.Errorf("frame %d = %v (%d bytes)", i, buf, n)
			}
		}

		if _, err := src.NextFrame(buf); !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF, got %v", err)
		}
	})

	t.Run("partial last frame is zero padded", func(t *testing.T) {
		src, err := NewReader(bytes.NewReader([]byte{9, 9, 9, 9, 7, 7}), 4)
		if err != nil {
			t.Fatal(err)
		}

		buf := make([]byte, 4)
		if _, err := src.NextFrame(buf); err != nil {
			t.Fatal(err)
		}

		buf = []byte{0xff, 0xff, 0xff, 0xff}
		n, err := src.NextFrame(buf)
		if err != nil {
			t.Fatal(err)
		}
		if n != 4 || !bytes.Equal(buf, []byte{7, 7, 0, 0}) {
			t.Errorf("padded frame = %v (%d bytes)", buf, n)
		}

		if _, err := src.NextFrame(buf); !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF after padded frame, got %v", err)
		}
	})

	t.Run("read failures are device errors", func(t *testing.T) {
		src, err := NewReader(failingReader{}, 4)
		if err != nil {
			t.Fatal(err)
		}

		_, err = src.NextFrame(make([]byte, 4))
		if !app_errors.IsKind(err, app_errors.KindDevice) {
			t.Errorf("expected device error, got %v", err)
		}
	})

	t.Run("buffer smaller than a frame is a device error", func(t *testing.T) {
		src, err := NewReader(bytes.NewReader(make([]byte, 8)), 4)
		if err != nil {
			t.Fatal(err)
		}

		_, err = src.NextFrame(make([]byte, 2))
		if !app_errors.IsKind(err, app_errors.KindDevice) {
			t.Errorf("expected device error, got %v", err)
		}
	})

	t.Run("odd frame size is rejected", func(t *testing.T) {
		if _, err := NewReader(bytes.NewReader(nil), 3); err == nil {
			t.Error("expected error")
		}
	})
}

func TestReaderClose(t *testing.T) {
	rc := &closeCounter{Reader: bytes.NewReader(nil)}
	src, err := NewReader(rc, 2)
	if err != nil {
		t.Fatal(err)
	}

	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	if rc.closed != 1 {
		t.Errorf("closed %d times, want 1", rc.closed)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

type closeCounter struct {
	io.Reader
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}
