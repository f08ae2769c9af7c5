package audio_source

import (
	"bytes"
	"testing"

	"github.com/gordonklaus/portaudio"
)

func TestSamplesToBytes(t *testing.T) {
	buf := make([]byte, 6)
	n := samplesToBytes([]int16{1, -1, 0x1234}, buf)

	if n != 6 {
		t.Errorf("wrote %d bytes, want 6", n)
	}
	expected := []byte{0x01, 0x00, 0xff, 0xff, 0x34, 0x12}
	if !bytes.Equal(buf, expected) {
		t.Errorf("bytes = %x, want %x", buf, expected)
	}
}

func TestSelectDevice(t *testing.T) {
	devices := []*portaudio.DeviceInfo{
		{Name: "speakers", MaxOutputChannels: 2},
		{Name: "usb mic", MaxInputChannels: 1, DefaultSampleRate: 48000},
	}

	t.Run("input device is selected by index", func(t *testing.T) {
		dev, err := selectDevice(devices, 1)
		if err != nil {
			t.Fatal(err)
		}
		if dev.Name != "usb mic" {
			t.Errorf("selected %q", dev.Name)
		}
	})

	t.Run("output only device is rejected", func(t *testing.T) {
		if _, err := selectDevice(devices, 0); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("out of range index is rejected", func(t *testing.T) {
		if _, err := selectDevice(devices, 5); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("listing keeps portaudio order", func(t *testing.T) {
		list := toDevices(devices)
		if len(list) != 2 || list[1].Index != 1 || list[1].Name != "usb mic" || list[1].DefaultSampleRate != 48000 {
			t.Errorf("unexpected list %+v", list)
		}
	})
}

func TestNewPortAudioValidation(t *testing.T) {
	if _, err := NewPortAudio(nil); err == nil {
		t.Error("nil config should be rejected")
	}
	if _, err := NewPortAudio(&Config{SampleRate: 16000, FrameBytes: 7}); err == nil {
		t.Error("odd frame size should be rejected")
	}
	if _, err := NewPortAudio(&Config{SampleRate: 0, FrameBytes: 2048}); err == nil {
		t.Error("zero sample rate should be rejected")
	}
}
