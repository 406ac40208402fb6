package models

// SkillTrust is the trust tier of a loaded skill. Trusted skills were
// placed directly by the user and never lower the tool ceiling;
// Installed skills came from a managed registry and are treated as
// suggestions under a restricted tool ceiling (see package skills).
type SkillTrust int

const (
	SkillTrusted SkillTrust = iota
	SkillInstalled
)

func (t SkillTrust) String() string {
	switch t {
	case SkillTrusted:
		return "trusted"
	case SkillInstalled:
		return "installed"
	default:
		return "unknown"
	}
}

// ActivationCriteria determines whether a skill is selected for a given
// inbound message during the prefilter step.
type ActivationCriteria struct {
	Keywords        []string
	Patterns        []string // regex source, compiled at load time
	Tags            []string
	MaxContextTokens int
}

// SkillSource records how a skill entered the registry.
type SkillSource int

const (
	SourceTrustedDir SkillSource = iota
	SourceInstalledDir
)

// Skill is a prompt-with-front-matter document the skill registry
// selects from based on an inbound message, subject to the trust
// attenuator's tool-ceiling enforcement.
type Skill struct {
	Name             string
	Version          string
	Description      string
	Activation       ActivationCriteria
	PromptContent    string // ≤ 1 MiB, validated at load time
	Trust            SkillTrust
	ContentHash      string // sha256 of PromptContent
	Source           SkillSource
	DeclaredTools    []string // only meaningful when Trust == SkillInstalled
}
