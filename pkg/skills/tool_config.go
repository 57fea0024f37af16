package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// ToolConfigFileName is the optional analyzer tool descriptor in config/.
	ToolConfigFileName = "tool.yaml"
	// DefaultRulesFile is the rule set used when tool.yaml names none.
	DefaultRulesFile = "critical-rules.xml"
	// DefaultToolTimeout bounds one analyzer tool invocation.
	DefaultToolTimeout = 300 * time.Second
)

// ToolConfig describes the analyzer tool a skill exposes.
type ToolConfig struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Rules       string        `yaml:"rules"`
	Timeout     time.Duration `yaml:"timeout"`
	Entrypoint  string        `yaml:"entrypoint"`
	Exclude     []string      `yaml:"exclude"`
}

func defaultToolConfig(skillName string) *ToolConfig {
	return &ToolConfig{
		Name:        skillName + "_analyze",
		Description: fmt.Sprintf("Run PMD static analysis with the %s rule set", skillName),
		Rules:       DefaultRulesFile,
		Timeout:     DefaultToolTimeout,
	}
}

// loadToolConfig returns nil without error when the skill does not expose a
// tool: no scripts directory or no rule set in its config directory.
func loadToolConfig(skillName, configDir, scriptsDir string) (*ToolConfig, error) {
	if configDir == "" || scriptsDir == "" {
		return nil, nil
	}

	cfg := defaultToolConfig(skillName)

	data, err := os.ReadFile(filepath.Join(configDir, ToolConfigFileName))
	switch {
	case err == nil:
		var override ToolConfig
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", ToolConfigFileName)
		}
		cfg.merge(override)
	case !os.IsNotExist(err):
		return nil, errors.Wrapf(err, "failed to read %s", ToolConfigFileName)
	}

	if filepath.IsAbs(cfg.Rules) || !filepath.IsLocal(cfg.Rules) {
		return nil, errors.Errorf("rules file %q must be relative to the config directory", cfg.Rules)
	}
	if !isRegularFile(filepath.Join(configDir, cfg.Rules)) {
		return nil, nil
	}

	if cfg.Entrypoint != "" {
		if !filepath.IsLocal(cfg.Entrypoint) {
			return nil, errors.Errorf("entrypoint %q must be relative to the scripts directory", cfg.Entrypoint)
		}
		if !isRegularFile(filepath.Join(scriptsDir, cfg.Entrypoint)) {
			return nil, errors.Errorf("entrypoint %s not found in %s", cfg.Entrypoint, scriptsDir)
		}
	}

	return cfg, nil
}

func (c *ToolConfig) merge(o ToolConfig) {
	if o.Name != "" {
		c.Name = o.Name
	}
	if o.Description != "" {
		c.Description = o.Description
	}
	if o.Rules != "" {
		c.Rules = o.Rules
	}
	if o.Timeout > 0 {
		c.Timeout = o.Timeout
	}
	if o.Entrypoint != "" {
		c.Entrypoint = o.Entrypoint
	}
	if len(o.Exclude) > 0 {
		c.Exclude = o.Exclude
	}
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
