package skills

import (
	"regexp"
	"strings"
)

// DefaultSelectionCap bounds how many skills one turn may select.
const DefaultSelectionCap = 3

// DefaultTokenBudget is the aggregate prompt-token budget across all
// skills selected for one turn, used when a skill declares no override.
const DefaultTokenBudget = 4000

// roughTokenCount approximates token count for budget accounting. The
// teacher's token accounting elsewhere in the agent package is response
// based (provider-reported counts); for skills prompt composition there
// is no provider round-trip yet, so selection uses the same conservative
// chars/4 heuristic the teacher's context-window guards use.
func roughTokenCount(s string) int {
	return (len(s) + 3) / 4
}

// SelectionOptions tunes the prefilter away from its defaults.
type SelectionOptions struct {
	Cap         int
	TokenBudget int
	Tags        []string
}

func (o SelectionOptions) normalized() SelectionOptions {
	if o.Cap <= 0 {
		o.Cap = DefaultSelectionCap
	}
	if o.TokenBudget <= 0 {
		o.TokenBudget = DefaultTokenBudget
	}
	return o
}

// matchesActivation reports whether a skill's activation criteria hit
// the inbound message: any keyword substring, any compiled pattern, or
// any requested tag.
func matchesActivation(skill *SkillEntry, message string, tags []string) bool {
	if skill.Metadata == nil || skill.Metadata.Activation == nil {
		return false
	}
	spec := skill.Metadata.Activation
	lowerMsg := strings.ToLower(message)

	for _, kw := range spec.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lowerMsg, strings.ToLower(kw)) {
			return true
		}
	}

	for _, pat := range spec.Patterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			continue
		}
		if re.MatchString(message) {
			return true
		}
	}

	for _, tag := range spec.Tags {
		for _, requested := range tags {
			if strings.EqualFold(tag, requested) {
				return true
			}
		}
	}

	return false
}

// Select returns a bounded subset of candidates whose activation
// criteria match the inbound message or the supplied tags, ordered by
// source priority (higher first) and then by name for determinism.
// Selection stops once Cap skills are chosen or the aggregate prompt
// token budget would be exceeded by adding the next candidate.
func Select(candidates []*SkillEntry, message string, opts SelectionOptions) []*SkillEntry {
	opts = opts.normalized()

	var matched []*SkillEntry
	for _, c := range candidates {
		if matchesActivation(c, message, opts.Tags) {
			matched = append(matched, c)
		}
	}

	sortSkillsByPriority(matched)

	var selected []*SkillEntry
	remaining := opts.TokenBudget
	for _, skill := range matched {
		if len(selected) >= opts.Cap {
			break
		}
		budget := remaining
		if skill.Metadata != nil && skill.Metadata.Activation != nil && skill.Metadata.Activation.MaxContextTokens > 0 {
			budget = skill.Metadata.Activation.MaxContextTokens
			if budget > remaining {
				budget = remaining
			}
		}
		cost := roughTokenCount(skill.Content)
		if cost > budget {
			continue
		}
		selected = append(selected, skill)
		remaining -= cost
	}

	return selected
}

func sortSkillsByPriority(skills []*SkillEntry) {
	for i := 1; i < len(skills); i++ {
		j := i
		for j > 0 {
			a, b := skills[j-1], skills[j]
			swap := a.SourcePriority < b.SourcePriority
			if a.SourcePriority == b.SourcePriority {
				swap = a.Name > b.Name
			}
			if !swap {
				break
			}
			skills[j-1], skills[j] = skills[j], skills[j-1]
			j--
		}
	}
}
