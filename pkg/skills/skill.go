// Package skills discovers the skills shipped with the server. A skill is a
// directory holding a persona prompt (prompt.md) and, optionally, a config
// directory with an analyzer rule set and a scripts directory. Discovery is a
// flat, one-level scan; the resulting Registry never changes afterwards.
package skills

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	// PromptFileName is the persona prompt inside every skill directory.
	PromptFileName = "prompt.md"
	// ConfigDirName holds rule sets and the optional tool.yaml.
	ConfigDirName = "config"
	// ScriptsDirName holds skill-provided executables.
	ScriptsDirName = "scripts"
	// ReservedPrefix marks directories that are never registered as skills.
	ReservedPrefix = "_"
	// PromptSuffix is appended to a skill name to form its prompt name.
	PromptSuffix = "-review"
)

// Skill is a discovered skill directory.
type Skill struct {
	Name        string
	Directory   string
	Description string
	ConfigDir   string // empty when the skill has no config directory
	ScriptsDir  string // empty when the skill has no scripts directory
	Tool        *ToolConfig
}

// PromptFile returns the prompt path, derived solely from the skill directory.
func (s *Skill) PromptFile() string {
	return filepath.Join(s.Directory, PromptFileName)
}

// PromptName returns the name the skill's prompt is listed under.
func (s *Skill) PromptName() string {
	return s.Name + PromptSuffix
}

// ReadPrompt returns the prompt file bytes exactly as stored on disk.
func (s *Skill) ReadPrompt() ([]byte, error) {
	content, err := os.ReadFile(s.PromptFile())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read prompt for skill %s", s.Name)
	}
	return content, nil
}

// HasTool reports whether the skill exposes an analyzer tool.
func (s *Skill) HasTool() bool {
	return s.Tool != nil
}

// RulesPath returns the absolute path of the analyzer rule set, or "" when
// the skill exposes no tool.
func (s *Skill) RulesPath() string {
	if s.Tool == nil {
		return ""
	}
	return filepath.Join(s.ConfigDir, s.Tool.Rules)
}

// EntrypointPath returns the skill-provided analyzer executable, or "" when
// the tool runs through the built-in analyze command.
func (s *Skill) EntrypointPath() string {
	if s.Tool == nil || s.Tool.Entrypoint == "" {
		return ""
	}
	return filepath.Join(s.ScriptsDir, s.Tool.Entrypoint)
}

// SkillNameFromPrompt strips PromptSuffix from a prompt name. ok is false
// when the name does not carry the suffix.
func SkillNameFromPrompt(promptName string) (name string, ok bool) {
	name, ok = strings.CutSuffix(promptName, PromptSuffix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}
