package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"assistant-wake-recorder/app_errors"
	"assistant-wake-recorder/clip_encoder"
)

const tracerName = "assistant-wake-recorder/clients/ingest"

type clientImpl struct {
	url        string
	httpClient *http.Client
}

type Config struct {
	Endpoint string
	DeviceID string
	ModelID  string
	Timeout  time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

func NewClient(cfg *Config) (Uploader, error) {
	if cfg == nil {
		return nil, errors.New("missing parameter: cfg")
	}

	if cfg.Endpoint == "" {
		return nil, errors.New("missing parameter: cfg.Endpoint")
	}

	if cfg.DeviceID == "" {
		return nil, errors.New("missing parameter: cfg.DeviceID")
	}

	publishURL, err := PublishURL(cfg.Endpoint, cfg.DeviceID, cfg.ModelID)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &clientImpl{
		url:        publishURL,
		httpClient: httpClient,
	}, nil
}

// PublishURL builds <endpoint>/publish/<device id>/voice?model_id=<model id>.
// The publish path replaces any path already on the endpoint.
func PublishURL(endpoint, deviceID, modelID string) (string, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q: scheme and host are required", endpoint)
	}

	u := *base
	u.Path = "/publish/" + deviceID + "/voice"
	u.RawPath = "/publish/" + url.PathEscape(deviceID) + "/voice"
	u.RawQuery = url.Values{"model_id": {modelID}}.Encode()
	u.Fragment = ""

	return u.String(), nil
}

func (client *clientImpl) Upload(ctx context.Context, clip []byte) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ingest.upload",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("clip.bytes", len(clip))),
	)
	defer span.End()

	err := client.post(ctx, clip, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return err
}

func (client *clientImpl) post(ctx context.Context, clip []byte, span trace.Span) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.url, bytes.NewReader(clip))
	if err != nil {
		return app_errors.Upload("build request", err)
	}

	req.Header.Set("Content-Type", clip_encoder.ContentType)

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return app_errors.Upload("post clip", err)
	}

	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	// drain so the connection can be reused
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return app_errors.Upload("post clip", &StatusError{StatusCode: resp.StatusCode, Body: string(body)})
	}

	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}
