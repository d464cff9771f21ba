package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxTextBytes caps the text accepted from the extraction server.
const maxTextBytes = 4 << 20

// TikaConfig configures the document extraction server client.
type TikaConfig struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

// Tika sends binary documents to an Apache Tika compatible server (PUT /tika) and
// returns the plain text it produces.
type Tika struct {
	baseURL string
	client  *http.Client
	tracer  trace.Tracer
}

// NewTika builds a client. It returns nil when no base URL is configured so callers can
// pass the result straight to NewRouter.
func NewTika(cfg TikaConfig) *Tika {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Tika{
		baseURL: base,
		client:  client,
		tracer:  otel.Tracer("github.com/noah-isme/autoeval-api/pkg/extract/tika"),
	}
}

// Extract implements Extractor.
func (t *Tika) Extract(ctx context.Context, data []byte, mimeHint string) (string, error) {
	if t == nil {
		return "", ErrUnsupportedFormat
	}

	ctx, span := t.tracer.Start(ctx, "extract.tika", trace.WithAttributes(
		attribute.String("extract.mime", mimeHint),
		attribute.Int("extract.size_bytes", len(data)),
	))
	defer span.End()

	if len(data) == 0 {
		return "", fmt.Errorf("%w: document is empty", ErrExtraction)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.baseURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Accept", "text/plain; charset=utf-8")
	if mimeHint != "" {
		req.Header.Set("Content-Type", mimeHint)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return "", fmt.Errorf("%w: extraction server unreachable: %w", ErrExtraction, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTextBytes))
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: read extraction response: %w", ErrExtraction, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType:
		span.SetStatus(codes.Error, "unsupported")
		return "", ErrUnsupportedFormat
	case resp.StatusCode == http.StatusUnprocessableEntity:
		span.SetStatus(codes.Error, "corrupt document")
		return "", fmt.Errorf("%w: document could not be parsed", ErrExtraction)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		err := errors.New(strings.TrimSpace(string(body)))
		span.RecordError(err)
		span.SetStatus(codes.Error, "server error")
		return "", fmt.Errorf("%w: extraction server returned %d", ErrExtraction, resp.StatusCode)
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		span.SetStatus(codes.Error, "empty")
		return "", fmt.Errorf("%w: document contains no text", ErrExtraction)
	}

	span.SetAttributes(attribute.Int("extract.text_length", len(text)))
	return text, nil
}
