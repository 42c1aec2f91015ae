package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsRaw []byte

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Planner    string `yaml:"planner"`
	Extractor  string `yaml:"extractor"`
	Consultant string `yaml:"consultant"`
	Strategist string `yaml:"strategist"`
	Fallback   string `yaml:"fallback"`
}

var (
	loadOnce sync.Once
	loaded   PromptSet
	loadErr  error
)

// LoadPromptSet parses the embedded prompt file once and returns trimmed prompts.
func LoadPromptSet() (PromptSet, error) {
	loadOnce.Do(func() {
		loaded, loadErr = Parse(promptsRaw)
	})
	return loaded, loadErr
}

func Parse(raw []byte) (PromptSet, error) {
	var set PromptSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return PromptSet{}, fmt.Errorf("parse prompts: %w", err)
	}
	set.Planner = strings.TrimSpace(set.Planner)
	set.Extractor = strings.TrimSpace(set.Extractor)
	set.Consultant = strings.TrimSpace(set.Consultant)
	set.Strategist = strings.TrimSpace(set.Strategist)
	set.Fallback = strings.TrimSpace(set.Fallback)

	for name, v := range map[string]string{
		"planner":    set.Planner,
		"extractor":  set.Extractor,
		"consultant": set.Consultant,
		"strategist": set.Strategist,
		"fallback":   set.Fallback,
	} {
		if v == "" {
			return PromptSet{}, fmt.Errorf("prompt %q is empty", name)
		}
	}
	return set, nil
}
