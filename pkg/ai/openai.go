package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	inferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "autoeval",
		Subsystem: "inference",
		Name:      "request_duration_seconds",
		Help:      "Duration of inference requests",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120, 180},
	}, []string{"model"})

	inferenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autoeval",
		Subsystem: "inference",
		Name:      "failures_total",
		Help:      "Number of failed inference requests",
	}, []string{"model", "reason"})
)

// DefaultTimeout applies when Generate is called without a timeout.
const DefaultTimeout = 120 * time.Second

// Provider names accepted by InferenceConfig.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// InferenceConfig defines how the inference client reaches its model server.
type InferenceConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature float32
	Seed        *int
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// InferenceClient implements Generator over the OpenAI chat completion API. Ollama
// exposes the same API under /v1, which is the default target.
type InferenceClient struct {
	client *openai.Client
	cfg    InferenceConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewInferenceClient builds a client using the provided configuration.
func NewInferenceClient(cfg InferenceConfig) (*InferenceClient, error) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = ProviderOllama
	}

	var config openai.ClientConfig
	switch cfg.Provider {
	case ProviderOllama:
		base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
		if base == "" {
			base = "http://localhost:11434"
		}
		if !strings.HasSuffix(base, "/v1") {
			base += "/v1"
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		config = openai.DefaultConfig(apiKey)
		config.BaseURL = base
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai api key is required")
		}
		config = openai.DefaultConfig(cfg.APIKey)
		if base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
			config.BaseURL = base
		}
	default:
		return nil, fmt.Errorf("unsupported inference provider %q", cfg.Provider)
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}

	// Deadlines come from the per-call context, not the transport.
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	} else {
		config.HTTPClient = &http.Client{}
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &InferenceClient{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/autoeval-api/pkg/ai/inference"),
		logger: logger.With().Str("component", "inference_client").Logger(),
	}, nil
}

// Generate sends prompt to model and returns the raw reply text. It never retries.
func (c *InferenceClient) Generate(parent context.Context, prompt, model string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, span := c.tracer.Start(parent, "inference.generate", trace.WithAttributes(
		attribute.String("model", model),
		attribute.String("provider", c.cfg.Provider),
		attribute.Int("prompt_length", len(prompt)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Seed:        c.cfg.Seed,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, request)
	inferenceDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err != nil {
		classified := classifyInferenceError(ctx, err)
		c.recordFailure(span, model, classified)
		return "", classified
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("%w: no choices returned", ErrInferenceUnavailable)
		c.recordFailure(span, model, err)
		return "", err
	}

	content := resp.Choices[0].Message.Content
	span.SetAttributes(
		attribute.Int("completion_length", len(content)),
		attribute.Int("usage.total_tokens", resp.Usage.TotalTokens),
	)
	c.logger.Debug().Str("model", model).Dur("duration", time.Since(start)).Msg("inference completed")

	return content, nil
}

func (c *InferenceClient) recordFailure(span trace.Span, model string, err error) {
	reason := "unavailable"
	switch {
	case errors.Is(err, ErrInferenceTimeout):
		reason = "timeout"
	case errors.Is(err, context.Canceled):
		reason = "canceled"
	}
	inferenceFailures.WithLabelValues(model, reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	c.logger.Warn().Err(err).Str("model", model).Str("reason", reason).Msg("inference failed")
}

func classifyInferenceError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrInferenceTimeout, err)
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: status %d: %s", ErrInferenceUnavailable, apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: status %d", ErrInferenceUnavailable, reqErr.HTTPStatusCode)
	}

	return fmt.Errorf("%w: %w", ErrInferenceUnavailable, err)
}
