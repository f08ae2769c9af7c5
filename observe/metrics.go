// Package observe provides the recorder's OpenTelemetry metrics and tracing
// setup, plus the HTTP endpoint they are scraped from.
//
// Tests should use [NewMetrics] with their own [metric.MeterProvider] so that
// instruments do not leak between tests.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "assistant-wake-recorder"

// Session end reasons.
const (
	ReasonSilence     = "silence"
	ReasonMaxDuration = "max_duration"
	ReasonDecoder     = "decoder_error"
	ReasonCancelled   = "cancelled"
	ReasonStreamEnded = "stream_ended"
	ReasonDeviceError = "device_error"
)

// Metrics holds the metric instruments of the recorder.
type Metrics struct {
	// FramesProcessed counts audio frames read from the source.
	FramesProcessed metric.Int64Counter

	// SessionsStarted counts keyphrase triggers.
	SessionsStarted metric.Int64Counter

	// SessionsEnded counts finished sessions. Use with attribute "reason".
	SessionsEnded metric.Int64Counter

	// SessionDuration tracks how long sessions recorded for.
	SessionDuration metric.Float64Histogram

	// ClipBytes tracks the size of encoded clips.
	ClipBytes metric.Int64Histogram

	// Uploads counts upload attempts. Use with attribute "status".
	Uploads metric.Int64Counter

	// UploadDuration tracks upload latency.
	UploadDuration metric.Float64Histogram

	// DecoderErrors counts recoverable decoder failures.
	DecoderErrors metric.Int64Counter

	// PlaybackErrors counts failed cue sounds.
	PlaybackErrors metric.Int64Counter
}

var (
	sessionBuckets = []float64{1, 2, 3, 5, 8, 13, 20, 30, 60}
	latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	sizeBuckets    = []float64{16 << 10, 64 << 10, 128 << 10, 256 << 10, 512 << 10, 1 << 20, 2 << 20}
)

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProcessed, err = m.Int64Counter("recorder.frames",
		metric.WithDescription("Audio frames read from the source."),
	); err != nil {
		return nil, err
	}
	if met.SessionsStarted, err = m.Int64Counter("recorder.sessions.started",
		metric.WithDescription("Recording sessions started by the keyphrase."),
	); err != nil {
		return nil, err
	}
	if met.SessionsEnded, err = m.Int64Counter("recorder.sessions.ended",
		metric.WithDescription("Recording sessions ended, by reason."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("recorder.session.duration",
		metric.WithDescription("Length of recording sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClipBytes, err = m.Int64Histogram("recorder.clip.size",
		metric.WithDescription("Size of encoded clips."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Uploads, err = m.Int64Counter("recorder.uploads",
		metric.WithDescription("Clip uploads, by status."),
	); err != nil {
		return nil, err
	}
	if met.UploadDuration, err = m.Float64Histogram("recorder.upload.duration",
		metric.WithDescription("Latency of clip uploads."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DecoderErrors, err = m.Int64Counter("recorder.decoder.errors",
		metric.WithDescription("Recoverable decoder failures."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackErrors, err = m.Int64Counter("recorder.playback.errors",
		metric.WithDescription("Cue sounds that failed to play."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Discard returns instruments that record nothing.
func Discard() *Metrics {
	met, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return met
}

func (m *Metrics) RecordSessionEnd(ctx context.Context, reason string, d time.Duration) {
	m.SessionsEnded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.SessionDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) RecordUpload(ctx context.Context, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.UploadDuration.Record(ctx, d.Seconds())
}
