package skills

import (
	"testing"

	"github.com/ironclaw/core/pkg/models"
)

func allToolDefs() []models.ToolDefinition {
	names := []string{"shell", "http", "memory_write", "memory_search", "memory_read", "memory_tree", "time", "echo", "json"}
	defs := make([]models.ToolDefinition, 0, len(names))
	for _, n := range names {
		defs = append(defs, models.ToolDefinition{Name: n, Description: n + " tool"})
	}
	return defs
}

func toolNames(result AttenuationResult) map[string]bool {
	set := make(map[string]bool, len(result.Tools))
	for _, t := range result.Tools {
		set[t.Name] = true
	}
	return set
}

func TestAttenuateTools_NoActiveSkillsKeepsAll(t *testing.T) {
	tools := allToolDefs()
	result := AttenuateTools(tools, nil)
	if len(result.Tools) != len(tools) {
		t.Fatalf("expected all %d tools, got %d", len(tools), len(result.Tools))
	}
	if len(result.RemovedToolNames) != 0 {
		t.Fatalf("expected no removed tools, got %v", result.RemovedToolNames)
	}
}

func TestAttenuateTools_TrustedOnlyKeepsAll(t *testing.T) {
	tools := allToolDefs()
	active := []ActiveSkill{{Name: "trusted_skill", Trust: models.SkillTrusted}}
	result := AttenuateTools(tools, active)
	if len(result.Tools) != len(tools) {
		t.Fatalf("expected all tools for trusted-only, got %d", len(result.Tools))
	}
	if result.MinTrust != models.SkillTrusted {
		t.Fatalf("expected MinTrust=Trusted, got %v", result.MinTrust)
	}
}

func TestAttenuateTools_InstalledRestrictsToReadOnlyPlusDeclared(t *testing.T) {
	tools := allToolDefs()
	active := []ActiveSkill{{Name: "installed_skill", Trust: models.SkillInstalled, DeclaredTools: []string{"shell"}}}
	result := AttenuateTools(tools, active)

	kept := toolNames(result)
	if !kept["shell"] {
		t.Fatal("expected declared tool 'shell' to remain")
	}
	if !kept["memory_search"] || !kept["time"] {
		t.Fatal("expected read-only tools to remain")
	}
	if kept["http"] || kept["memory_write"] {
		t.Fatal("expected undeclared, non-read-only tools to be removed")
	}
	if result.MinTrust != models.SkillInstalled {
		t.Fatalf("expected MinTrust=Installed, got %v", result.MinTrust)
	}
}

func TestAttenuateTools_MixedTrustDropsToInstalledCeiling(t *testing.T) {
	tools := allToolDefs()
	active := []ActiveSkill{
		{Name: "trusted_skill", Trust: models.SkillTrusted},
		{Name: "installed_skill", Trust: models.SkillInstalled},
	}
	result := AttenuateTools(tools, active)

	if result.MinTrust != models.SkillInstalled {
		t.Fatalf("expected mixed trust to drop to Installed ceiling, got %v", result.MinTrust)
	}
	kept := toolNames(result)
	if kept["shell"] {
		t.Fatal("expected shell to be removed under installed ceiling")
	}
}

func TestAttenuateTools_ExplanationNamesRemovedTools(t *testing.T) {
	tools := []models.ToolDefinition{{Name: "shell"}, {Name: "time"}}
	active := []ActiveSkill{{Name: "installed_skill", Trust: models.SkillInstalled}}
	result := AttenuateTools(tools, active)

	if result.Explanation == "" {
		t.Fatal("expected a non-empty explanation")
	}
	found := false
	for _, name := range result.RemovedToolNames {
		if name == "shell" {
			found = true
		}
		if name == "time" {
			t.Fatal("time is read-only and should not be in RemovedToolNames")
		}
	}
	if !found {
		t.Fatal("expected 'shell' in RemovedToolNames")
	}
}
