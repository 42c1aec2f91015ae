package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	openrouterx "github.com/tanpawarit/Kumak-Business-Orchestrator/pkg/openrouter"
)

// Config is loaded with the LLM_ prefix. Per-role fields override the defaults when set.
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	PlannerModel          string  `envconfig:"PLANNER_MODEL" split_words:"true"`
	ExtractorModel        string  `envconfig:"EXTRACTOR_MODEL" split_words:"true"`
	ConsultantModel       string  `envconfig:"CONSULTANT_MODEL" split_words:"true"`
	StrategistModel       string  `envconfig:"STRATEGIST_MODEL" split_words:"true"`
	PlannerTemperature    float32 `envconfig:"PLANNER_TEMPERATURE" split_words:"true" default:"0.2"`
	ExtractorTemperature  float32 `envconfig:"EXTRACTOR_TEMPERATURE" split_words:"true" default:"0"`
	ConsultantTemperature float32 `envconfig:"CONSULTANT_TEMPERATURE" split_words:"true" default:"-1"`
	StrategistTemperature float32 `envconfig:"STRATEGIST_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenRouterFor(agentType contractx.AgentType) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override := func(model string, t float32) {
		if v := strings.TrimSpace(model); v != "" {
			modelName = v
		}
		if t >= 0 {
			temp = t
		}
	}

	switch agentType {
	case contractx.AgentTypePlanner:
		override(c.PlannerModel, c.PlannerTemperature)
	case contractx.AgentTypeExtractor:
		override(c.ExtractorModel, c.ExtractorTemperature)
	case contractx.AgentTypeConsultant:
		override(c.ConsultantModel, c.ConsultantTemperature)
	case contractx.AgentTypeStrategist:
		override(c.StrategistModel, c.StrategistTemperature)
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
