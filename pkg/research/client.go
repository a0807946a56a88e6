package research

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"deep-research-agent/internal/constant"
	"deep-research-agent/internal/pkg/logger"
	"deep-research-agent/pkg/llm"

	"github.com/cenkalti/backoff/v5"
)

var (
	// ErrEmptyResponse is terminal: the client never retries it.
	ErrEmptyResponse = errors.New("generation service returned an empty response")
	// ErrRetriesExhausted wraps the last failure once every attempt is spent.
	ErrRetriesExhausted = errors.New("generation retries exhausted")
)

const (
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = time.Second
	DefaultBackoffBase = 2.0
)

// Generator turns a prompt into text. The engine only depends on this.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type RetryConfig struct {
	// MaxRetries is the total number of attempts, including the first.
	MaxRetries  int
	BaseDelay   time.Duration
	BackoffBase float64
}

// Normalized replaces malformed values with the defaults.
func (c RetryConfig) Normalized() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay < 0 {
		c.BaseDelay = DefaultRetryDelay
	}
	if math.IsNaN(c.BackoffBase) || math.IsInf(c.BackoffBase, 0) || c.BackoffBase < 1 {
		c.BackoffBase = DefaultBackoffBase
	}
	return c
}

// Client wraps an LLMProvider with bounded exponential-backoff retry. The
// wait before retry k (zero-based) is BaseDelay * BackoffBase^k.
type Client struct {
	provider     llm.LLMProvider
	cfg          RetryConfig
	systemPrompt string
	options      []llm.Option
	logger       logger.ILogger
}

type ClientOption func(*Client)

func WithSystemPrompt(prompt string) ClientOption {
	return func(c *Client) {
		c.systemPrompt = prompt
	}
}

func WithLLMOptions(opts ...llm.Option) ClientOption {
	return func(c *Client) {
		c.options = append(c.options, opts...)
	}
}

func WithClientLogger(l logger.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger.OrNop(l)
	}
}

var _ Generator = (*Client)(nil)

func NewClient(provider llm.LLMProvider, cfg RetryConfig, opts ...ClientOption) *Client {
	c := &Client{
		provider: provider,
		cfg:      cfg.Normalized(),
		logger:   logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	attempts := 0
	operation := func() (string, error) {
		attempts++
		text, err := c.call(ctx, prompt)
		if err != nil {
			if errors.Is(err, ErrEmptyResponse) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		return text, nil
	}

	policy := &backoff.ExponentialBackOff{
		InitialInterval:     c.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          c.cfg.BackoffBase,
		MaxInterval:         time.Duration(math.MaxInt64),
	}

	text, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn(constant.LogModuleGenClient, "Generation attempt failed, retrying", map[string]interface{}{
				"attempt": attempts,
				"wait":    wait.String(),
				"error":   err.Error(),
			})
		}),
	)
	if err == nil {
		return text, nil
	}

	if errors.Is(err, ErrEmptyResponse) {
		return "", ErrEmptyResponse
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return "", err
	}
	return "", fmt.Errorf("generation failed after %d attempts: %w", attempts, errors.Join(ErrRetriesExhausted, err))
}

func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	history := make([]llm.Message, 0, 2)
	if c.systemPrompt != "" {
		history = append(history, llm.Message{Role: "system", Content: c.systemPrompt})
	}
	history = append(history, llm.Message{Role: "user", Content: prompt})

	text, err := c.provider.Chat(ctx, history, c.options...)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
