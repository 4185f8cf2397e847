package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"lectern/internal/config"
	"lectern/internal/services"
)

const (
	defaultHTTPTimeout   = 120 * time.Second
	defaultRetryAttempts = 3
	retryBaseDelay       = 1 * time.Second
	retryMaxDelay        = 10 * time.Second
)

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	api      openai.Client
	model    string
	attempts uint
}

// Option customizes the client.
type Option func(*settings)

type settings struct {
	httpClient *http.Client
	attempts   uint
}

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithRetryAttempts overrides the per-call retry budget.
func WithRetryAttempts(attempts int) Option {
	return func(s *settings) {
		if attempts > 0 {
			s.attempts = uint(attempts)
		}
	}
}

// NewClient constructs a client from the shared LLM configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.LLM.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	}
	s := settings{
		httpClient: &http.Client{Timeout: timeout},
		attempts:   defaultRetryAttempts,
	}
	for _, opt := range opts {
		opt(&s)
	}

	requestOpts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.LLM.APIKey)),
		option.WithHTTPClient(s.httpClient),
		// retry.Do owns retries so the SDK's internal retry stays off.
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.LLM.BaseURL); base != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(base))
	}

	return &Client{
		api:      openai.NewClient(requestOpts...),
		model:    strings.TrimSpace(cfg.LLM.Model),
		attempts: s.attempts,
	}
}

// Request is one JSON-mode chat completion.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int64
}

// Completion is the model's reply plus usage accounting.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	Duration         time.Duration
}

// CompleteJSON sends the prompts in JSON mode and returns the raw content.
// Transient failures are retried; the last error is returned once the
// budget is exhausted.
func (c *Client) CompleteJSON(ctx context.Context, req Request) (*Completion, error) {
	system := strings.TrimSpace(req.System)
	user := strings.TrimSpace(req.User)
	if system == "" {
		return nil, errors.New("llm complete: system prompt required")
	}
	if user == "" {
		return nil, errors.New("llm complete: user prompt required")
	}
	if c.model == "" {
		return nil, errors.New("llm complete: model not configured")
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.Opt(system),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.Opt(user),
					},
				},
			},
		},
		Temperature: openai.Opt(req.Temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Opt(req.MaxTokens)
	}

	start := time.Now()
	var completion *Completion
	err := retry.Do(
		func() error {
			resp, err := c.api.Chat.Completions.New(ctx, params)
			if err != nil {
				return fmt.Errorf("llm complete: %w", err)
			}
			if len(resp.Choices) == 0 {
				return errors.New("llm complete: empty choices")
			}
			content := strings.TrimSpace(resp.Choices[0].Message.Content)
			if content == "" {
				return errors.New("llm complete: empty content")
			}
			completion = &Completion{
				Content:          content,
				Model:            string(resp.Model),
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				Duration:         time.Since(start),
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(retryBaseDelay),
		retry.MaxDelay(retryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
	)
	if err != nil {
		if isTimeout(err) {
			return nil, services.Wrap(services.ErrTimeout, "llm", "complete", "request timed out", err)
		}
		return nil, err
	}
	return completion, nil
}

// HealthCheck verifies the endpoint is reachable and the key is valid.
func (c *Client) HealthCheck(ctx context.Context) error {
	page, err := c.api.Models.List(ctx)
	if err != nil {
		if isTimeout(err) {
			return services.Wrap(services.ErrTimeout, "llm", "health", "endpoint unresponsive", err)
		}
		return fmt.Errorf("llm health: %w", err)
	}
	if page == nil {
		return errors.New("llm health: empty model list response")
	}
	return nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// isTimeout reports whether the failure was a deadline or transport timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode >= http.StatusInternalServerError:
			return true
		default:
			return false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// Empty-choice and blank-content replies are provider hiccups worth one
	// more attempt.
	msg := err.Error()
	return strings.Contains(msg, "empty choices") || strings.Contains(msg, "empty content")
}
