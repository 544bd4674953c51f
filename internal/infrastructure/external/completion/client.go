// Package completion implements the text completion backend used for mentor
// replies and summary updates. Requests go through an eino chat model and a
// circuit breaker.
package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/pkg/circuitbreaker"
	"github.com/mentor-hub/mentor-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultBaseURL is the public OpenAI endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

// Config contains configuration for one completion client.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int

	// Timeout bounds one completion call.
	Timeout time.Duration

	// Name labels logs and the breaker ("mentor", "summary").
	Name string
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client produces text from instructions and an input.
type Client struct {
	config     Config
	chat       model.BaseChatModel
	breaker    *circuitbreaker.CircuitBreaker
	httpClient *http.Client
	log        *logger.Logger
}

// New creates a Client backed by the OpenAI chat model of eino-ext.
func New(ctx context.Context, cfg Config, breaker *circuitbreaker.CircuitBreaker, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("completion: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	maxTokens := cfg.MaxTokens
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:              cfg.APIKey,
		BaseURL:             cfg.BaseURL,
		Model:               cfg.Model,
		MaxCompletionTokens: &maxTokens,
		Timeout:             cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return NewWithModel(cfg, chat, breaker, log), nil
}

// NewWithModel wraps an existing eino chat model.
func NewWithModel(cfg Config, chat model.BaseChatModel, breaker *circuitbreaker.CircuitBreaker, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if breaker == nil {
		breaker = circuitbreaker.New("completion")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		config:     cfg,
		chat:       chat,
		breaker:    breaker,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With(logger.Component("completion"), logger.String("client", cfg.Name)),
	}
}

// Complete sends instructions as the system message and input as the user
// message. Empty instructions send the input alone.
func (c *Client) Complete(ctx context.Context, instructions, input string) (string, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	messages := make([]*schema.Message, 0, 2)
	if strings.TrimSpace(instructions) != "" {
		messages = append(messages, schema.SystemMessage(instructions))
	}
	messages = append(messages, schema.UserMessage(input))

	start := time.Now()
	reply, err := circuitbreaker.Call(ctx, c.breaker, func(ctx context.Context) (*schema.Message, error) {
		return c.chat.Generate(ctx, messages)
	})
	latency := time.Since(start)

	if err != nil {
		c.log.Warn("completion failed", logger.Err(err), logger.Latency(latency))
		return "", classify(err)
	}
	if reply == nil || strings.TrimSpace(reply.Content) == "" {
		return "", shared.ErrCompletionEmpty
	}

	c.log.Debug("completion done", logger.Latency(latency), logger.Int("chars", len(reply.Content)))
	return reply.Content, nil
}

// Ping checks that the backend answers by listing models.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.config.BaseURL, "/")+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shared.WrapError("completion", "Ping", shared.ErrExternalService, "backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return shared.WrapError("completion", "Ping", shared.ErrExternalService,
			fmt.Sprintf("backend answered %d", resp.StatusCode), nil)
	}
	return nil
}

func classify(err error) error {
	switch {
	case circuitbreaker.IsRejected(err):
		return fmt.Errorf("%w: %w", shared.ErrCompletionUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", shared.ErrCompletionTimeout, err)
	default:
		return shared.WrapError("completion", "Complete", shared.ErrExternalService, "completion failed", err)
	}
}
