package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"agreegraph/internal/logger"
)

// Supported providers
const (
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
	ProviderDeepSeek = "deepseek"
	ProviderArk      = "ark"
)

const defaultSystemPrompt = "You are a precise assistant. Follow the instructions exactly and answer with the requested format only."

// ProviderConfig selects and configures the chat model backend
type ProviderConfig struct {
	Provider  string        `envconfig:"LLM_PROVIDER" default:"openai" yaml:"provider"`
	APIKey    string        `envconfig:"LLM_API_KEY" yaml:"api_key"`
	BaseURL   string        `envconfig:"LLM_BASE_URL" default:"https://api.groq.com/openai/v1" yaml:"base_url"`
	Model     string        `envconfig:"DEFAULT_MODEL" default:"llama-3.3-70b-versatile" yaml:"model"`
	MaxTokens int           `envconfig:"LLM_MAX_TOKENS" default:"2000" yaml:"max_tokens"`
	Timeout   time.Duration `envconfig:"LLM_TIMEOUT" default:"60s" yaml:"timeout"`
}

// NewChatModel creates the eino chat model for the configured provider
func NewChatModel(ctx context.Context, config ProviderConfig) (model.BaseChatModel, error) {
	switch strings.ToLower(config.Provider) {
	case "", ProviderOpenAI:
		maxTokens := config.MaxTokens
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:    config.APIKey,
			BaseURL:   config.BaseURL,
			Model:     config.Model,
			MaxTokens: &maxTokens,
			Timeout:   config.Timeout,
		})
	case ProviderOllama:
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: config.BaseURL,
			Model:   config.Model,
			Timeout: config.Timeout,
		})
	case ProviderDeepSeek:
		return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    config.APIKey,
			BaseURL:   config.BaseURL,
			Model:     config.Model,
			MaxTokens: config.MaxTokens,
			Timeout:   config.Timeout,
		})
	case ProviderArk:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:  config.APIKey,
			BaseURL: config.BaseURL,
			Model:   config.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", config.Provider)
	}
}

// ChatCompleter runs a compiled template -> chat model chain
type ChatCompleter struct {
	runnable compose.Runnable[map[string]any, *schema.Message]
}

// NewChatCompleter compiles the completion chain around chatModel
func NewChatCompleter(ctx context.Context, chatModel model.BaseChatModel) (*ChatCompleter, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model cannot be nil")
	}

	template := prompt.FromMessages(schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{prompt}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.
		AppendChatTemplate(template).
		AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile completion chain: %w", err)
	}

	return &ChatCompleter{runnable: runnable}, nil
}

// Complete sends one prompt and returns the trimmed completion text
func (c *ChatCompleter) Complete(ctx context.Context, req Request) (string, error) {
	system := req.System
	if system == "" {
		system = defaultSystemPrompt
	}

	var opts []model.Option
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(*req.Temperature))
	}

	start := time.Now()
	msg, err := c.runnable.Invoke(ctx, map[string]any{
		"system": system,
		"prompt": req.Prompt,
	}, compose.WithChatModelOption(opts...))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamCall, err)
	}
	if msg == nil {
		return "", fmt.Errorf("%w: empty completion", ErrUpstreamCall)
	}

	logger.Debug().
		Str("model", req.Model).
		Int("prompt_length", len(req.Prompt)).
		Int("response_length", len(msg.Content)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("LLM completion finished")

	return strings.TrimSpace(msg.Content), nil
}
