package fieldmap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is an analyst-authored mapper definition stored as
// mappers/<source>.yaml inside a case directory. It lets a case map a source
// with no builtin support without touching code.
type Config struct {
	Source      string               `yaml:"source"`
	Description string               `yaml:"description,omitempty"`
	FieldMap    map[string]string    `yaml:"field_map"`
	Defaults    map[string]string    `yaml:"defaults,omitempty"`
	Transforms  map[string]Transform `yaml:"transforms,omitempty"`
}

// LoadConfig reads a mapper config from disk.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapper config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing mapper config %s: %w", filepath.Base(path), err)
	}
	if cfg.Source == "" {
		cfg.Source = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &cfg, nil
}

// SaveConfig writes a mapper config under dir as <source>.yaml, creating the
// directory if needed.
func SaveConfig(dir string, cfg *Config) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating mapper dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding mapper config: %w", err)
	}
	path := filepath.Join(dir, cfg.Source+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing mapper config: %w", err)
	}
	return path, nil
}

// configPath returns the per-case mapper config path for a source, or ""
// when none exists.
func configPath(caseDir, source string) string {
	if caseDir == "" {
		return ""
	}
	p := filepath.Join(caseDir, "mappers", source+".yaml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// ForSource builds the mapping for one run. Lookup order follows the
// original mapper resolution: a case-specific YAML config wins, then the
// builtin map for the source, then pattern-table suggestions fill every
// observed field still unmapped. mapperType reports which layer supplied the
// base map ("yaml", "builtin", or "generic").
func ForSource(source, caseDir string, observedFields []string) (m *Mapping, mapperType string, err error) {
	base := BuiltinMap(source)
	mapperType = "generic"
	if base != nil {
		mapperType = "builtin"
	}

	var cfg *Config
	if p := configPath(caseDir, source); p != "" {
		cfg, err = LoadConfig(p)
		if err != nil {
			return nil, "", err
		}
		mapperType = "yaml"
	}

	m = Suggest(observedFields, base)
	if cfg != nil {
		lower := make(map[string]string, len(cfg.FieldMap))
		for src, unified := range cfg.FieldMap {
			lower[strings.ToLower(src)] = unified
		}
		for _, f := range observedFields {
			if unified, ok := lower[strings.ToLower(f)]; ok {
				m.SetOverride(f, unified)
			}
		}
		m.Defaults = cfg.Defaults
		m.Transforms = cfg.Transforms
	}
	return m, mapperType, nil
}
