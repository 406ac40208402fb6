package skills

import (
	"strings"
	"testing"
)

func TestComposePrompt_EscapesContent(t *testing.T) {
	skill := &SkillEntry{
		Name:    "html-helper",
		Version: "1.0.0",
		Content: "use <script>alert(1)</script> & report back",
		Source:  SourceLocal,
	}
	out := ComposePrompt(skill)
	if strings.Contains(out, "<script>") {
		t.Fatalf("expected content to be escaped, got %q", out)
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Fatalf("expected escaped script tag, got %q", out)
	}
	if !strings.Contains(out, "&amp;") {
		t.Fatalf("expected escaped ampersand, got %q", out)
	}
}

func TestComposePrompt_EscapesAttributes(t *testing.T) {
	skill := &SkillEntry{
		Name:    `evil" onload="alert(1)`,
		Version: "1.0.0",
		Content: "body",
		Source:  SourceLocal,
	}
	out := ComposePrompt(skill)
	if strings.Contains(out, `evil" onload`) {
		t.Fatalf("expected the quote in the name attribute to be escaped, got %q", out)
	}
}

func TestComposePrompt_InstalledGetsSuggestionNotice(t *testing.T) {
	skill := &SkillEntry{
		Name:    "community-skill",
		Version: "1.0.0",
		Content: "body",
		Source:  SourceGit,
	}
	out := ComposePrompt(skill)
	if !strings.Contains(out, "SUGGESTIONS") {
		t.Fatalf("expected installed-tier suggestion notice, got %q", out)
	}
}

func TestComposePrompt_TrustedHasNoSuggestionNotice(t *testing.T) {
	skill := &SkillEntry{
		Name:    "local-skill",
		Version: "1.0.0",
		Content: "body",
		Source:  SourceLocal,
	}
	out := ComposePrompt(skill)
	if strings.Contains(out, "SUGGESTIONS") {
		t.Fatalf("expected no suggestion notice for a trusted skill, got %q", out)
	}
}
