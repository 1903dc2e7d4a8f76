package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/simon-0512/superrag/internal/infrastructure/logger"
)

const DefaultModelPresetsFile = "config/models.yml"

// ModelPreset describes tuned generation parameters for a named model.
// Values left nil fall back to the service-wide defaults.
type ModelPreset struct {
	Model        string
	Temperature  *float32
	MaxTokens    *int
	SystemPrompt string
}

// ModelPresets maintains the configured presets keyed by model name.
type ModelPresets struct {
	presets map[string]ModelPreset
}

// ForModel returns the preset for the named model, if any.
func (p *ModelPresets) ForModel(name string) (ModelPreset, bool) {
	if p == nil {
		return ModelPreset{}, false
	}
	preset, ok := p.presets[strings.TrimSpace(name)]
	return preset, ok
}

// Models lists the model names with a configured preset.
func (p *ModelPresets) Models() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.presets))
	for name := range p.presets {
		names = append(names, name)
	}
	return names
}

// LoadModelPresets parses the yaml file at the provided path.
func LoadModelPresets(path string) (*ModelPresets, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model presets path is empty")
	}

	log := logger.GetLogger()
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read model presets %q: %w", cleanPath, err)
	}
	log.Info().Str("path", cleanPath).Msg("loading model presets file")

	var doc modelPresetsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse model presets %q: %w", cleanPath, err)
	}

	if len(doc.Models) == 0 {
		return nil, fmt.Errorf("model presets %q has no models defined", cleanPath)
	}

	result := &ModelPresets{presets: make(map[string]ModelPreset, len(doc.Models))}
	for idx, entry := range doc.Models {
		name := strings.TrimSpace(entry.Model)
		if name == "" {
			return nil, fmt.Errorf("models[%d]: model name is required", idx)
		}
		if entry.Temperature != nil && (*entry.Temperature < 0 || *entry.Temperature > 2) {
			return nil, fmt.Errorf("models[%d]: temperature %v out of range", idx, *entry.Temperature)
		}
		if entry.MaxTokens != nil && *entry.MaxTokens <= 0 {
			return nil, fmt.Errorf("models[%d]: max_tokens must be positive", idx)
		}
		result.presets[name] = ModelPreset{
			Model:        name,
			Temperature:  entry.Temperature,
			MaxTokens:    entry.MaxTokens,
			SystemPrompt: strings.TrimSpace(os.ExpandEnv(entry.SystemPrompt)),
		}
		log.Info().Str("model", name).Msg("including model preset")
	}

	return result, nil
}

type modelPresetsDocument struct {
	Models []modelPresetEntry `yaml:"models"`
}

type modelPresetEntry struct {
	Model        string   `yaml:"model"`
	Temperature  *float32 `yaml:"temperature"`
	MaxTokens    *int     `yaml:"max_tokens"`
	SystemPrompt string   `yaml:"system_prompt"`
}
