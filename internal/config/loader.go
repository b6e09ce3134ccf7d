package config

import (
	"fmt"
	"os"

	"salesbot/src/model"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the structure of agent.yaml
type YAMLConfig struct {
	Agent model.AgentTuning `yaml:"agent"`
}

// LoadConfig loads the tuning file on top of the compiled defaults
func LoadConfig(filepath string) (*YAMLConfig, error) {
	config := YAMLConfig{Agent: model.DefaultAgentTuning()}
	if filepath == "" {
		return &config, nil
	}

	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}

	return &config, normalize(&config.Agent)
}

// normalize puts zeroed knobs back to their defaults and checks bounds
func normalize(t *model.AgentTuning) error {
	def := model.DefaultAgentTuning()

	if t.HistoryLimit <= 0 {
		t.HistoryLimit = def.HistoryLimit
	}
	if t.StoreTimeout <= 0 {
		t.StoreTimeout = def.StoreTimeout
	}
	if t.CRM.DefaultPageSize <= 0 {
		t.CRM.DefaultPageSize = def.CRM.DefaultPageSize
	}
	if t.CRM.MaxPageSize <= 0 {
		t.CRM.MaxPageSize = def.CRM.MaxPageSize
	}
	if t.CRM.NewWindowDays <= 0 {
		t.CRM.NewWindowDays = def.CRM.NewWindowDays
	}
	if len(t.Followup.ExcludedStatuses) == 0 {
		t.Followup.ExcludedStatuses = def.Followup.ExcludedStatuses
	}
	if t.EmailDraft.StaleAfterDays <= 0 {
		t.EmailDraft.StaleAfterDays = def.EmailDraft.StaleAfterDays
	}

	if t.CRM.DefaultPageSize > t.CRM.MaxPageSize {
		return fmt.Errorf("crm.default_page_size (%d) exceeds crm.max_page_size (%d)", t.CRM.DefaultPageSize, t.CRM.MaxPageSize)
	}
	return nil
}
