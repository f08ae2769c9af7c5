package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"assistant-wake-recorder/app_errors"
	"assistant-wake-recorder/audio_source"
	"assistant-wake-recorder/clients/ingest"
	"assistant-wake-recorder/clip_archive"
	"assistant-wake-recorder/config"
	"assistant-wake-recorder/listener"
	"assistant-wake-recorder/notifier"
	"assistant-wake-recorder/observe"
	"assistant-wake-recorder/speech_decoder"
	"assistant-wake-recorder/speech_to_text"
)

var version = "dev"

func main() {
	listDevices := flag.Bool("list-devices", false, "list audio devices and exit")
	inputFlag := flag.String("input", "", "read raw 16-bit mono PCM from this file instead of the capture device")
	optionsFlag := flag.String("decoder-options", "", "YAML file with decoder options (overrides DECODER_OPTIONS)")
	baseDirFlag := flag.String("base-dir", defaultBaseDir(), "directory containing the model/ folder")

	flag.Parse()

	if *listDevices {
		if err := printDevices(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "error listing devices: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.LogLevel))

	if *optionsFlag != "" {
		cfg.DecoderOptions = *optionsFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *inputFlag, *baseDirFlag); err != nil {
		slog.Error("recorder stopped", "error", err, "fatal", app_errors.IsFatal(err))
		stop()
		os.Exit(1)
	}

	slog.Info("recorder stopped")
}

func run(ctx context.Context, cfg *config.Config, input, baseDir string) error {
	fileSys := afero.NewOsFs()

	meterProvider, shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "assistant-wake-recorder",
		ServiceVersion: version,
		DeviceID:       cfg.DeviceID,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	metrics, err := observe.NewMetrics(meterProvider)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	decoder, keyphrase, closeModel, err := newDecoder(fileSys, cfg, baseDir)
	if err != nil {
		return err
	}
	defer closeModel()

	source, clock, err := newSource(fileSys, cfg, input)
	if err != nil {
		return err
	}

	uploader, err := ingest.NewClient(&ingest.Config{
		Endpoint: cfg.Endpoint,
		DeviceID: cfg.DeviceID,
		ModelID:  cfg.ModelID,
		Timeout:  cfg.UploadTimeout,
	})
	if err != nil {
		return app_errors.Configuration("create uploader", err)
	}

	cues, err := notifier.New(&notifier.Config{
		FileSys:      fileSys,
		Player:       cfg.Player,
		SoundStart:   cfg.SoundStart,
		SoundEnd:     cfg.SoundEnd,
		OutputDevice: cfg.OutputDevice,
	})
	if err != nil {
		return app_errors.Configuration("create notifier", err)
	}

	listenerCfg := &listener.Config{
		Source:       source,
		Decoder:      decoder,
		Uploader:     uploader,
		Notifier:     cues,
		Metrics:      metrics,
		Clock:        clock,
		SampleRate:   cfg.SampleRate,
		FrameBytes:   cfg.BufferSize,
		MaxDuration:  cfg.MaxDuration,
		SilenceGrace: cfg.SilenceGrace,
		DecodeOptions: speech_decoder.ProcessOptions{
			NoSearch:      cfg.NoSearch,
			FullUtterance: cfg.FullUtterance,
		},
		Keyphrase:       keyphrase,
		KeyphraseStrict: cfg.KeyphraseStrict,
		AsyncUpload:     cfg.AsyncUpload,
	}

	if cfg.ArchiveDir != "" {
		archive, err := clip_archive.New(fileSys, cfg.ArchiveDir)
		if err != nil {
			return app_errors.Configuration("create archive", err)
		}
		listenerCfg.Archive = archive
	}

	recorder, err := listener.New(listenerCfg)
	if err != nil {
		return app_errors.Configuration("create listener", err)
	}

	slog.Info("starting recorder",
		"version", version,
		"device_id", cfg.DeviceID,
		"model_id", cfg.ModelID,
		"keyphrase", keyphrase,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// the metrics server has nothing left to report once the stream ends
		defer cancel()
		return recorder.Run(gctx)
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return observe.Serve(gctx, cfg.MetricsAddr)
		})
	}

	return g.Wait()
}

// newDecoder loads the whisper model and builds the decoder from the options
// file and the environment. It returns the keyphrase the decoder searches for.
func newDecoder(fileSys afero.Fs, cfg *config.Config, baseDir string) (speech_decoder.Interface, string, func(), error) {
	opts := speech_decoder.Options{}
	if cfg.DecoderOptions != "" {
		loaded, err := speech_decoder.LoadOptionsFile(fileSys, cfg.DecoderOptions)
		if err != nil {
			return nil, "", nil, app_errors.Configuration("load decoder options", err)
		}
		opts = loaded
	}

	if cfg.Keyphrase != "" {
		opts["keyphrase"] = cfg.Keyphrase
	}
	if cfg.Verbose {
		opts["verbose"] = true
	}
	opts["samprate"] = cfg.SampleRate

	flags, err := speech_decoder.NewConfig(speech_decoder.ResolveDefaults(opts, baseDir))
	if err != nil {
		return nil, "", nil, app_errors.Configuration("decoder options", err)
	}

	slog.Debug("decoder flags", "args", flags.Args())

	modelPath := flags.String("-model", "")
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, "", nil, app_errors.Configuration("load model "+modelPath, err)
	}

	stt, err := speech_to_text.New(&speech_to_text.Config{
		Model:    model,
		Language: flags.String("-language", ""),
	})
	if err != nil {
		_ = model.Close()
		return nil, "", nil, app_errors.Configuration("create transcriber", err)
	}

	decoder, err := speech_decoder.NewWhisper(&speech_decoder.WhisperConfig{
		Transcriber: stt,
		Decoder:     flags,
		FrameSize:   cfg.BufferSize / 2,
	})
	if err != nil {
		_ = model.Close()
		return nil, "", nil, app_errors.Configuration("create decoder", err)
	}

	closeModel := func() {
		if err := model.Close(); err != nil {
			slog.Warn("closing model", "error", err)
		}
	}

	return decoder, flags.String("-keyphrase", ""), closeModel, nil
}

// newSource opens the capture device, or the raw PCM file given by input. A
// file is read faster than real time, so it comes with a clock that follows
// the audio read from it.
func newSource(fileSys afero.Fs, cfg *config.Config, input string) (audio_source.Interface, func() time.Time, error) {
	if input == "" {
		source, err := audio_source.NewPortAudio(&audio_source.Config{
			DeviceIndex: cfg.AudioDevice,
			SampleRate:  cfg.SampleRate,
			FrameBytes:  cfg.BufferSize,
		})
		if err != nil {
			return nil, nil, app_errors.Configuration("create audio source", err)
		}
		return source, time.Now, nil
	}

	f, err := fileSys.Open(input)
	if err != nil {
		return nil, nil, app_errors.Device("open input", err)
	}

	reader, err := audio_source.NewReader(f, cfg.BufferSize)
	if err != nil {
		_ = f.Close()
		return nil, nil, app_errors.Configuration("create audio source", err)
	}

	clock := audio_source.NewStreamClock(time.Now(), cfg.SampleRate)

	return audio_source.Timed(reader, clock), clock.Now, nil
}

func printDevices(w io.Writer) error {
	devices, err := audio_source.ListDevices()
	if err != nil {
		return err
	}

	for _, d := range devices {
		if d.MaxInputChannels < 1 {
			continue
		}
		fmt.Fprintf(w, "%3d  %-40s  %d ch  %.0f Hz\n", d.Index, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
	}

	return nil
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func defaultBaseDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
