package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zmlgit/java-architect-skills/pkg/presenter"
	"github.com/zmlgit/java-architect-skills/pkg/skills"
)

// SkillListConfig holds configuration for the skill list command
type SkillListConfig struct {
	JSONOutput bool
}

// NewSkillListConfig creates a SkillListConfig with default values
func NewSkillListConfig() *SkillListConfig {
	return &SkillListConfig{
		JSONOutput: false,
	}
}

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Inspect available skills",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered skills",
	Long:  `List the skills found in the skills directory with their prompt names and analyzer tools.`,
	Run: func(cmd *cobra.Command, _ []string) {
		config := getSkillListConfigFromFlags(cmd)
		if err := listSkills(skills.Discover(cmd.Context(), resolveSkillsDir()), config, cmd.OutOrStdout()); err != nil {
			presenter.Error(err, "failed to list skills")
			exitCode = exitFailure
		}
	},
}

func init() {
	defaults := NewSkillListConfig()
	skillListCmd.Flags().Bool("json", defaults.JSONOutput, "Output in JSON format")
	skillCmd.AddCommand(skillListCmd)
}

func getSkillListConfigFromFlags(cmd *cobra.Command) *SkillListConfig {
	config := NewSkillListConfig()
	if jsonOutput, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSONOutput = jsonOutput
	}
	return config
}

// SkillOutput is one skill in skill list output.
type SkillOutput struct {
	Name        string `json:"name"`
	Prompt      string `json:"prompt"`
	Tool        string `json:"tool,omitempty"`
	Rules       string `json:"rules,omitempty"`
	Description string `json:"description"`
	Directory   string `json:"directory"`
}

func listSkills(registry *skills.Registry, config *SkillListConfig, w io.Writer) error {
	list := make([]SkillOutput, 0, registry.Len())
	for _, skill := range registry.Skills() {
		out := SkillOutput{
			Name:        skill.Name,
			Prompt:      skill.PromptName(),
			Description: skill.Description,
			Directory:   skill.Directory,
		}
		if skill.HasTool() {
			out.Tool = skill.Tool.Name
			out.Rules = skill.RulesPath()
		}
		list = append(list, out)
	}

	if config.JSONOutput {
		data, err := json.MarshalIndent(struct {
			Skills []SkillOutput `json:"skills"`
		}{Skills: list}, "", "  ")
		if err != nil {
			return fmt.Errorf("error generating JSON output: %v", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	if len(list) == 0 {
		_, err := fmt.Fprintf(w, "No skills found in %s\n", registry.Root())
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Name\tPrompt\tTool\tDescription")
	fmt.Fprintln(tw, "----\t------\t----\t-----------")
	for _, s := range list {
		tool := s.Tool
		if tool == "" {
			tool = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Prompt, tool, s.Description)
	}
	return tw.Flush()
}
