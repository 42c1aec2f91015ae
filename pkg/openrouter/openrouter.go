// Package openrouter builds OpenAI-compatible clients pointed at OpenRouter.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultBaseURL = "https://openrouter.ai/api/v1"

type LLMBuilder interface {
	New(ctx context.Context) (model.ToolCallingChatModel, error)
}

var _ LLMBuilder = (*Config)(nil)

// Models that reject a reasoning budget. Reasoning output is excluded for them.
var reasoningExcluded = map[string]bool{
	"x-ai/grok-4.1-fast": true,
}

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken *int          `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`
}

func (c *Config) baseURL() string {
	if u := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/"); u != "" {
		return u
	}
	return DefaultBaseURL
}

// chatModelConfig maps Config onto the eino OpenAI chat model settings.
func (c *Config) chatModelConfig() (*openaimodel.ChatModelConfig, error) {
	apiKey := strings.TrimSpace(c.APIKey)
	if apiKey == "" {
		return nil, errors.New("openrouter: api key is required")
	}
	modelName := strings.TrimSpace(c.Model)
	if modelName == "" {
		return nil, errors.New("openrouter: model is required")
	}

	temp := c.Temperature
	conf := &openaimodel.ChatModelConfig{
		BaseURL:     c.baseURL(),
		APIKey:      apiKey,
		Model:       modelName,
		MaxTokens:   c.MaxCompletionToken,
		Temperature: &temp,
		Timeout:     c.Timeout,
	}
	if reasoningExcluded[modelName] {
		conf.ExtraFields = map[string]any{
			"reasoning": map[string]any{"exclude": true, "effort": "none"},
		}
	}
	return conf, nil
}

func (c *Config) New(ctx context.Context) (model.ToolCallingChatModel, error) {
	conf, err := c.chatModelConfig()
	if err != nil {
		return nil, err
	}
	m, err := openaimodel.NewChatModel(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("openrouter: create chat model %s: %w", conf.Model, err)
	}
	return m, nil
}

func (c *Config) requestOptions() []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(c.APIKey)),
		option.WithBaseURL(c.baseURL()),
	}
	if c.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(c.Timeout))
	}
	// OpenRouter app attribution.
	if v := strings.TrimSpace(c.SiteURL); v != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", v))
	}
	if v := strings.TrimSpace(c.SiteName); v != "" {
		opts = append(opts, option.WithHeader("X-Title", v))
	}
	return opts
}

// NewClient returns a raw SDK client for endpoints eino does not cover, such as embeddings.
func NewClient(cfg Config) (*openaisdk.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openrouter: api key is required")
	}
	client := openaisdk.NewClient(cfg.requestOptions()...)
	return &client, nil
}
