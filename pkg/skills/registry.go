package skills

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"

	"github.com/zmlgit/java-architect-skills/pkg/logger"
)

// Registry is the immutable name to Skill mapping built by Discover.
type Registry struct {
	root   string
	skills map[string]*Skill
	names  []string
}

// Discover scans the immediate children of root. Every directory whose name
// does not start with ReservedPrefix becomes a skill. A missing or unreadable
// root yields an empty registry.
func Discover(ctx context.Context, root string) *Registry {
	r := &Registry{root: root, skills: make(map[string]*Skill)}
	log := logger.G(ctx).WithField("skills_dir", root)

	entries, err := os.ReadDir(root)
	if err != nil {
		log.WithError(err).Warn("skills directory is not readable, no skills registered")
		return r
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ReservedPrefix) {
			continue
		}
		dir := filepath.Join(root, name)
		// os.Stat follows symlinked skill directories.
		if !isDir(dir) {
			continue
		}

		skill := loadSkill(ctx, name, dir)
		r.skills[name] = skill
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)

	log.WithField("count", len(r.names)).Debug("skills discovered")
	return r
}

// Load reads one skill directory outside of a registry scan. The skill is
// named after the directory.
func Load(ctx context.Context, dir string) (*Skill, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve skill directory %s", dir)
	}
	if !isDir(abs) {
		return nil, errors.Errorf("skill directory %s does not exist", abs)
	}
	return loadSkill(ctx, filepath.Base(abs), abs), nil
}

func loadSkill(ctx context.Context, name, dir string) *Skill {
	skill := &Skill{
		Name:        name,
		Directory:   dir,
		Description: fmt.Sprintf("Execute the %s Persona", name),
	}

	if configDir := filepath.Join(dir, ConfigDirName); isDir(configDir) {
		skill.ConfigDir = configDir
	}
	if scriptsDir := filepath.Join(dir, ScriptsDirName); isDir(scriptsDir) {
		skill.ScriptsDir = scriptsDir
	}

	if description := promptDescription(skill.PromptFile()); description != "" {
		skill.Description = description
	}

	tool, err := loadToolConfig(name, skill.ConfigDir, skill.ScriptsDir)
	if err != nil {
		logger.G(ctx).WithField("skill", name).WithError(err).Warn("skill tool disabled")
	}
	skill.Tool = tool

	return skill
}

// promptDescription reads the optional "description" front matter key.
func promptDescription(path string) string {
	content, err := os.ReadFile(path)
	if err != nil || !bytes.HasPrefix(content, []byte("---")) {
		return ""
	}

	md := goldmark.New(goldmark.WithExtensions(meta.Meta))
	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return ""
	}

	description, _ := meta.Get(pctx)["description"].(string)
	return strings.TrimSpace(description)
}

// Root returns the scanned directory.
func (r *Registry) Root() string {
	return r.root
}

// Len returns the number of registered skills.
func (r *Registry) Len() int {
	return len(r.names)
}

// Get returns the skill registered under name.
func (r *Registry) Get(name string) (*Skill, bool) {
	skill, ok := r.skills[name]
	return skill, ok
}

// Names returns skill names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Skills returns all skills sorted by name.
func (r *Registry) Skills() []*Skill {
	out := make([]*Skill, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.skills[name])
	}
	return out
}

// LookupPrompt resolves a "<skill>-review" prompt name.
func (r *Registry) LookupPrompt(promptName string) (*Skill, bool) {
	name, ok := SkillNameFromPrompt(promptName)
	if !ok {
		return nil, false
	}
	return r.Get(name)
}

// ToolSkills returns the skills exposing an analyzer tool, sorted by name.
func (r *Registry) ToolSkills() []*Skill {
	var out []*Skill
	for _, skill := range r.Skills() {
		if skill.HasTool() {
			out = append(out, skill)
		}
	}
	return out
}

// LookupTool finds the skill exposing the named tool.
func (r *Registry) LookupTool(toolName string) (*Skill, bool) {
	for _, skill := range r.ToolSkills() {
		if skill.Tool.Name == toolName {
			return skill, true
		}
	}
	return nil, false
}
