package audio_source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"assistant-wake-recorder/app_errors"
)

type portaudioImpl struct {
	deviceIndex int
	sampleRate  int
	in          []int16

	stream    *portaudio.Stream
	closeOnce sync.Once
	closeErr  error
}

type Config struct {
	// DeviceIndex selects an input device from ListDevices; -1 uses the
	// default input device.
	DeviceIndex int
	SampleRate  int
	// FrameBytes is the size of one frame in bytes.
	FrameBytes int
}

func NewPortAudio(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", cfg.SampleRate)
	}

	if cfg.FrameBytes <= 0 || cfg.FrameBytes%2 != 0 {
		return nil, fmt.Errorf("invalid frame size %d", cfg.FrameBytes)
	}

	return &portaudioImpl{
		deviceIndex: cfg.DeviceIndex,
		sampleRate:  cfg.SampleRate,
		in:          make([]int16, cfg.FrameBytes/2),
	}, nil
}

func (p *portaudioImpl) Open() error {
	if err := portaudio.Initialize(); err != nil {
		return app_errors.Device("initialize portaudio", err)
	}

	stream, err := p.openStream()
	if err != nil {
		_ = portaudio.Terminate()
		return err
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return app_errors.Device("start stream", err)
	}

	p.stream = stream

	return nil
}

func (p *portaudioImpl) openStream() (*portaudio.Stream, error) {
	if p.deviceIndex < 0 {
		stream, err := portaudio.OpenDefaultStream(1, 0, float64(p.sampleRate), len(p.in), p.in)
		if err != nil {
			return nil, app_errors.Device("open default stream", err)
		}
		return stream, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, app_errors.Device("list devices", err)
	}

	dev, err := selectDevice(devices, p.deviceIndex)
	if err != nil {
		return nil, app_errors.Device("select device", err)
	}

	slog.Info("opening capture device", "index", p.deviceIndex, "name", dev.Name)

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(p.sampleRate),
		FramesPerBuffer: len(p.in),
	}

	stream, err := portaudio.OpenStream(params, p.in)
	if err != nil {
		return nil, app_errors.Device("open stream", err)
	}

	return stream, nil
}

func (p *portaudioImpl) NextFrame(buf []byte) (int, error) {
	if p.stream == nil {
		return 0, app_errors.Device("read frame", errors.New("stream is not open"))
	}

	if len(buf) < len(p.in)*2 {
		return 0, app_errors.Newf(app_errors.KindDevice, "read frame", "buffer of %d bytes is smaller than a frame", len(buf))
	}

	if err := p.stream.Read(); err != nil {
		// an overflow only means we lost samples; the frame is still valid
		if !errors.Is(err, portaudio.InputOverflowed) {
			return 0, app_errors.Device("read frame", err)
		}
		slog.Warn("audio input overflowed")
	}

	return samplesToBytes(p.in, buf), nil
}

func (p *portaudioImpl) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		if p.stream != nil {
			errs = append(errs, p.stream.Stop(), p.stream.Close())
			p.stream = nil
		}
		errs = append(errs, portaudio.Terminate())
		p.closeErr = errors.Join(errs...)
	})

	return p.closeErr
}

func selectDevice(devices []*portaudio.DeviceInfo, index int) (*portaudio.DeviceInfo, error) {
	if index < 0 || index >= len(devices) {
		return nil, fmt.Errorf("device #%d does not exist (%d devices)", index, len(devices))
	}

	dev := devices[index]
	if dev.MaxInputChannels < 1 {
		return nil, fmt.Errorf("device #%d (%s) has no input channels", index, dev.Name)
	}

	return dev, nil
}

// samplesToBytes writes samples as little-endian PCM into buf and returns the
// number of bytes written.
func samplesToBytes(samples []int16, buf []byte) int {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return len(samples) * 2
}
