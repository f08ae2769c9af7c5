package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"assistant-wake-recorder/app_errors"
	"assistant-wake-recorder/audio_source"
	"assistant-wake-recorder/clients/ingest"
	"assistant-wake-recorder/clip_encoder"
	"assistant-wake-recorder/notifier"
	"assistant-wake-recorder/observe"
	"assistant-wake-recorder/recording"
	"assistant-wake-recorder/speech_decoder"
)

const (
	defaultMaxDuration  = 30 * time.Second
	defaultSilenceGrace = 2 * time.Second
	uploadQueueSize     = 4
)

type listenerImpl struct {
	source   audio_source.Interface
	decoder  speech_decoder.Interface
	notifier notifier.Interface
	uploader ingest.Uploader
	archive  Archiver
	metrics  *observe.Metrics
	clock    func() time.Time

	sampleRate      int
	frameBytes      int
	maxDuration     time.Duration
	silenceGrace    time.Duration
	decodeOptions   speech_decoder.ProcessOptions
	keyphrase       string
	keyphraseStrict bool
	asyncUpload     bool

	state         State
	session       *recording.Session
	utteranceOpen bool
	inSpeech      bool
	uploads       chan clipJob
}

type clipJob struct {
	id  string
	pcm []byte
}

type Config struct {
	Source   audio_source.Interface
	Decoder  speech_decoder.Interface
	Uploader ingest.Uploader

	// Notifier defaults to notifier.Noop, Metrics to observe.Discard and
	// Clock to time.Now. Archive is optional.
	Notifier notifier.Interface
	Archive  Archiver
	Metrics  *observe.Metrics
	Clock    func() time.Time

	SampleRate int
	// FrameBytes is the size of the frames read from Source.
	FrameBytes int

	MaxDuration  time.Duration
	SilenceGrace time.Duration

	DecodeOptions speech_decoder.ProcessOptions
	// Keyphrase must be set for a hypothesis to start a session. With
	// KeyphraseStrict the hypothesis must also contain it.
	Keyphrase       string
	KeyphraseStrict bool

	// AsyncUpload moves encoding and upload off the frame loop.
	AsyncUpload bool
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Source == nil {
		return nil, fmt.Errorf("source is nil")
	}

	if cfg.Decoder == nil {
		return nil, fmt.Errorf("decoder is nil")
	}

	if cfg.Uploader == nil {
		return nil, fmt.Errorf("uploader is nil")
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", cfg.SampleRate)
	}

	if cfg.FrameBytes <= 0 || cfg.FrameBytes%2 != 0 {
		return nil, fmt.Errorf("invalid frame size %d", cfg.FrameBytes)
	}

	l := &listenerImpl{
		source:          cfg.Source,
		decoder:         cfg.Decoder,
		notifier:        cfg.Notifier,
		uploader:        cfg.Uploader,
		archive:         cfg.Archive,
		metrics:         cfg.Metrics,
		clock:           cfg.Clock,
		sampleRate:      cfg.SampleRate,
		frameBytes:      cfg.FrameBytes,
		maxDuration:     cfg.MaxDuration,
		silenceGrace:    cfg.SilenceGrace,
		decodeOptions:   cfg.DecodeOptions,
		keyphrase:       cfg.Keyphrase,
		keyphraseStrict: cfg.KeyphraseStrict,
		asyncUpload:     cfg.AsyncUpload,
		state:           StateListening,
	}

	if l.notifier == nil {
		l.notifier = notifier.Noop{}
	}
	if l.metrics == nil {
		l.metrics = observe.Discard()
	}
	if l.clock == nil {
		l.clock = time.Now
	}
	if l.maxDuration <= 0 {
		l.maxDuration = defaultMaxDuration
	}
	if l.silenceGrace <= 0 {
		l.silenceGrace = defaultSilenceGrace
	}

	return l, nil
}

func (l *listenerImpl) Run(ctx context.Context) error {
	if err := l.source.Open(); err != nil {
		return asDeviceError("open source", err)
	}

	defer func() {
		if err := l.source.Close(); err != nil {
			slog.Warn("closing audio source", "error", err)
		}
	}()

	var workers errgroup.Group
	if l.asyncUpload {
		l.uploads = make(chan clipJob, uploadQueueSize)
		workers.Go(func() error {
			// queued clips are still delivered after cancellation
			uploadCtx := context.WithoutCancel(ctx)
			for job := range l.uploads {
				l.deliver(uploadCtx, job.id, job.pcm)
			}
			return nil
		})
	}

	reason, err := l.loop(ctx)

	l.discardSession(ctx, reason)
	if l.utteranceOpen {
		if _, endErr := l.decoder.EndUtterance(); endErr != nil {
			slog.Debug("ending utterance on shutdown", "error", endErr)
		}
		l.utteranceOpen = false
	}

	if l.uploads != nil {
		close(l.uploads)
		_ = workers.Wait()
		l.uploads = nil
	}

	return err
}

// loop reads frames until the stream stops and reports why it stopped.
func (l *listenerImpl) loop(ctx context.Context) (string, error) {
	slog.Info("listening for wake phrase", "keyphrase", l.keyphrase)

	frame := make([]byte, l.frameBytes)

	for {
		if ctx.Err() != nil {
			slog.Info("listener cancelled")
			return observe.ReasonCancelled, nil
		}

		n, err := l.source.NextFrame(frame)
		if errors.Is(err, io.EOF) {
			slog.Info("audio stream ended")
			return observe.ReasonStreamEnded, nil
		}
		if err != nil {
			return observe.ReasonDeviceError, asDeviceError("read frame", err)
		}

		l.processFrame(ctx, frame[:n])
	}
}

func (l *listenerImpl) processFrame(ctx context.Context, frame []byte) {
	now := l.clock()
	l.metrics.FramesProcessed.Add(ctx, 1)

	if !l.utteranceOpen {
		if err := l.decoder.BeginUtterance(); err != nil {
			l.decoderFailed(ctx, err)
			return
		}
		l.utteranceOpen = true
	}

	opts := l.decodeOptions
	if l.state == StateRecording {
		opts.NoSearch = true
	}

	if err := l.decoder.ProcessFrame(frame, opts); err != nil {
		l.decoderFailed(ctx, err)
		return
	}

	inSpeech := l.decoder.InSpeech()
	if inSpeech != l.inSpeech {
		l.inSpeech = inSpeech
		slog.Debug("speech activity changed", "in_speech", inSpeech, "state", l.state)
	}

	switch l.state {
	case StateRecording:
		if err := l.session.Append(frame); err != nil {
			slog.Error("appending frame", "session", l.session.ID, "error", err)
		}

		if inSpeech {
			l.session.ObserveSpeech(now)
		}

		if reason, done := l.sessionDone(now, inSpeech); done {
			l.endSession(ctx, reason, now)
		}
	case StateListening:
		hypothesis := l.decoder.Hypothesis()
		if hypothesis == "" || l.keyphrase == "" {
			return
		}

		if l.keyphraseStrict && !speech_decoder.MatchesKeyphrase(hypothesis, l.keyphrase) {
			slog.Debug("ignoring hypothesis", "hypothesis", hypothesis)
			l.rotateUtterance(ctx)
			return
		}

		l.startSession(ctx, hypothesis, now)
	}
}

// sessionDone evaluates both session limits on the current frame. Silence is
// measured from the last frame that was in speech, which is never before the
// session started.
func (l *listenerImpl) sessionDone(now time.Time, inSpeech bool) (string, bool) {
	switch {
	case l.session.Elapsed(now) > l.maxDuration:
		return observe.ReasonMaxDuration, true
	case !inSpeech && l.session.Silence(now) > l.silenceGrace:
		return observe.ReasonSilence, true
	default:
		return "", false
	}
}

func (l *listenerImpl) startSession(ctx context.Context, hypothesis string, now time.Time) {
	// the hypothesis only clears when the utterance ends
	if _, err := l.decoder.EndUtterance(); err != nil {
		l.utteranceOpen = false
		l.decoderFailed(ctx, err)
		return
	}
	l.utteranceOpen = false

	l.session = recording.NewSession(now)
	l.state = StateRecording

	if err := l.decoder.BeginUtterance(); err != nil {
		l.decoderFailed(ctx, err)
		return
	}
	l.utteranceOpen = true

	slog.Info("wake phrase detected", "hypothesis", hypothesis, "session", l.session.ID)
	l.metrics.SessionsStarted.Add(ctx, 1)

	if err := l.notifier.NotifyStart(ctx); err != nil {
		l.playbackFailed(ctx, err)
	}
}

func (l *listenerImpl) endSession(ctx context.Context, reason string, now time.Time) {
	session := l.session
	l.session = nil
	l.state = StateListening

	elapsed := session.Elapsed(now)
	pcm := session.Close()

	slog.Info("recording finished",
		"session", session.ID,
		"reason", reason,
		"elapsed", elapsed,
		"frames", session.Frames(),
		"bytes", len(pcm),
	)
	l.metrics.RecordSessionEnd(ctx, reason, elapsed)

	if err := l.notifier.NotifyEnd(ctx); err != nil {
		l.playbackFailed(ctx, err)
	}

	// drop anything the decoder recognised while recording
	l.rotateUtterance(ctx)

	if l.uploads == nil {
		l.deliver(ctx, session.ID, pcm)
		return
	}

	select {
	case l.uploads <- clipJob{id: session.ID, pcm: pcm}:
	case <-ctx.Done():
		slog.Warn("dropping clip on shutdown", "session", session.ID)
	}
}

// deliver encodes, archives and uploads one clip. Failures are logged and the
// clip is dropped.
func (l *listenerImpl) deliver(ctx context.Context, id string, pcm []byte) {
	clip, err := clip_encoder.Encode(pcm, l.sampleRate, 1, 2)
	if err != nil {
		slog.Error("encoding clip", "session", id, "error", err)
		return
	}
	l.metrics.ClipBytes.Record(ctx, int64(len(clip)))

	if l.archive != nil {
		path, err := l.archive.Save(id, clip)
		if err != nil {
			slog.Warn("archiving clip", "session", id, "error", err)
		} else {
			slog.Debug("archived clip", "session", id, "path", path)
		}
	}

	start := time.Now()
	err = l.uploader.Upload(ctx, clip)
	l.metrics.RecordUpload(ctx, err, time.Since(start))

	if err != nil {
		slog.Error("uploading clip", "session", id, "error", err)
		return
	}

	slog.Info("uploaded clip", "session", id, "bytes", len(clip))
}

// decoderFailed drops the current session, if any, without uploading it and
// restarts the utterance. A failed restart is retried on the next frame.
func (l *listenerImpl) decoderFailed(ctx context.Context, err error) {
	slog.Error("decoder failed", "state", l.state, "error", err)
	l.metrics.DecoderErrors.Add(ctx, 1)

	l.discardSession(ctx, observe.ReasonDecoder)
	l.rotateUtterance(ctx)
}

func (l *listenerImpl) rotateUtterance(ctx context.Context) {
	if l.utteranceOpen {
		if _, err := l.decoder.EndUtterance(); err != nil {
			slog.Warn("ending utterance", "error", err)
		}
		l.utteranceOpen = false
	}

	if err := l.decoder.BeginUtterance(); err != nil {
		slog.Warn("beginning utterance", "error", err)
		l.metrics.DecoderErrors.Add(ctx, 1)
		return
	}
	l.utteranceOpen = true
}

func (l *listenerImpl) discardSession(ctx context.Context, reason string) {
	if l.session == nil {
		return
	}

	now := l.clock()
	slog.Warn("discarding recording",
		"session", l.session.ID,
		"reason", reason,
		"frames", l.session.Frames(),
		"bytes", l.session.Bytes(),
	)
	l.metrics.RecordSessionEnd(ctx, reason, l.session.Elapsed(now))

	l.session.Close()
	l.session = nil
	l.state = StateListening
}

func (l *listenerImpl) playbackFailed(ctx context.Context, err error) {
	slog.Warn("playing cue", "error", err)
	l.metrics.PlaybackErrors.Add(ctx, 1)
}

func asDeviceError(op string, err error) error {
	if app_errors.IsKind(err, app_errors.KindDevice) {
		return err
	}
	return app_errors.Device(op, err)
}
