package skills

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ironclaw/core/pkg/models"
)

// ReadOnlyTools is the compile-time constant list of tools that provably
// have no side effects: reads of memory/workspace, time, echo, JSON
// shaping, skill listing. Adding a tool here requires explicit review —
// it must not write files, make network requests, execute commands, or
// mutate any state.
var ReadOnlyTools = []string{
	"memory_search",
	"memory_read",
	"memory_tree",
	"time",
	"echo",
	"json",
	"skill_list",
}

var readOnlyToolSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(ReadOnlyTools))
	for _, name := range ReadOnlyTools {
		m[name] = struct{}{}
	}
	return m
}()

// IsReadOnlyTool reports whether name is in the hardcoded read-only set.
func IsReadOnlyTool(name string) bool {
	_, ok := readOnlyToolSet[name]
	return ok
}

// ActiveSkill is the minimal view the attenuator needs of a skill that
// matched the prefilter for the current turn.
type ActiveSkill struct {
	Name          string
	Trust         models.SkillTrust
	DeclaredTools []string
}

// AttenuationResult is the attenuator's output: the filtered tool
// definitions to offer the model, the trust ceiling that produced them,
// a human-readable explanation, and the names removed for transparency.
type AttenuationResult struct {
	Tools          []models.ToolDefinition
	MinTrust       models.SkillTrust
	Explanation    string
	RemovedToolNames []string
}

// AttenuateTools computes the tool ceiling from the minimum trust tier
// across active skills and filters the candidate tool list accordingly.
// With no active skills, or when every active skill is Trusted, all
// tools pass through untouched. Once any active skill is Installed, the
// ceiling drops to the read-only set plus whatever tools that skill (or
// any other active Installed skill) explicitly declares. Filtering
// happens here, before the list reaches the provider — the model never
// learns the name of a tool above its ceiling.
func AttenuateTools(tools []models.ToolDefinition, active []ActiveSkill) AttenuationResult {
	if len(active) == 0 {
		return AttenuationResult{
			Tools:       tools,
			MinTrust:    models.SkillTrusted,
			Explanation: "no skills active, all tools available",
		}
	}

	minTrust := active[0].Trust
	for _, s := range active[1:] {
		if s.Trust > minTrust {
			minTrust = s.Trust
		}
	}

	if minTrust == models.SkillTrusted {
		return AttenuationResult{
			Tools:       tools,
			MinTrust:    minTrust,
			Explanation: "all active skills are trusted, all tools available",
		}
	}

	declared := make(map[string]struct{})
	for _, s := range active {
		for _, name := range s.DeclaredTools {
			declared[name] = struct{}{}
		}
	}

	var kept []models.ToolDefinition
	var removed []string
	for _, t := range tools {
		_, isDeclared := declared[t.Name]
		if IsReadOnlyTool(t.Name) || isDeclared {
			kept = append(kept, t)
		} else {
			removed = append(removed, t.Name)
		}
	}
	sort.Strings(removed)

	explanation := "installed trust: all requested tools within ceiling"
	if len(removed) > 0 {
		explanation = fmt.Sprintf("installed trust: removed %d tool(s) above ceiling: %s",
			len(removed), strings.Join(removed, ", "))
	}

	return AttenuationResult{
		Tools:            kept,
		MinTrust:         minTrust,
		Explanation:      explanation,
		RemovedToolNames: removed,
	}
}
