package skills

import "testing"

func mustSkill(name string, keywords []string, content string, priority int) *SkillEntry {
	return &SkillEntry{
		Name:        name,
		Description: name + " skill",
		Content:     content,
		Source:      SourceLocal,
		SourcePriority: priority,
		Metadata: &SkillMetadata{
			Activation: &ActivationSpec{Keywords: keywords},
		},
	}
}

func TestSelect_KeywordMatch(t *testing.T) {
	candidates := []*SkillEntry{
		mustSkill("deploy", []string{"deploy", "release"}, "deploy instructions", 0),
		mustSkill("unrelated", []string{"weather"}, "weather instructions", 0),
	}
	selected := Select(candidates, "please deploy the app to staging", SelectionOptions{})
	if len(selected) != 1 || selected[0].Name != "deploy" {
		t.Fatalf("expected only 'deploy' selected, got %+v", selected)
	}
}

func TestSelect_RespectsCap(t *testing.T) {
	candidates := []*SkillEntry{
		mustSkill("a", []string{"go"}, "a", 0),
		mustSkill("b", []string{"go"}, "b", 0),
		mustSkill("c", []string{"go"}, "c", 0),
		mustSkill("d", []string{"go"}, "d", 0),
	}
	selected := Select(candidates, "go go go", SelectionOptions{Cap: 2})
	if len(selected) != 2 {
		t.Fatalf("expected cap of 2, got %d", len(selected))
	}
}

func TestSelect_RespectsTokenBudget(t *testing.T) {
	big := make([]byte, 20000)
	for i := range big {
		big[i] = 'x'
	}
	candidates := []*SkillEntry{
		mustSkill("huge", []string{"go"}, string(big), 0),
		mustSkill("small", []string{"go"}, "tiny", 0),
	}
	selected := Select(candidates, "go", SelectionOptions{TokenBudget: 100})
	for _, s := range selected {
		if s.Name == "huge" {
			t.Fatal("expected the oversize skill to be excluded by the token budget")
		}
	}
}

func TestSelect_NoMatchReturnsEmpty(t *testing.T) {
	candidates := []*SkillEntry{mustSkill("deploy", []string{"deploy"}, "x", 0)}
	selected := Select(candidates, "what's the weather like", SelectionOptions{})
	if len(selected) != 0 {
		t.Fatalf("expected no matches, got %+v", selected)
	}
}

func TestSelect_TagMatch(t *testing.T) {
	skill := &SkillEntry{
		Name:    "release-notes",
		Content: "x",
		Source:  SourceLocal,
		Metadata: &SkillMetadata{
			Activation: &ActivationSpec{Tags: []string{"release"}},
		},
	}
	selected := Select([]*SkillEntry{skill}, "unrelated message text", SelectionOptions{Tags: []string{"release"}})
	if len(selected) != 1 {
		t.Fatalf("expected tag match to select the skill, got %+v", selected)
	}
}
