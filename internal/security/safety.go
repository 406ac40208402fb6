// Package security implements the bidirectional pattern scanner that
// backs the safety layer: sanitising tool output before it reaches the
// model, and detecting prompt-injection attempts and outbound data
// leaks. Every exported scanning function here is pure: no state is
// carried between calls, and the only configuration is the compiled
// pattern table built at package init.
package security

import (
	"fmt"
	"regexp"
)

// PatternAction is the disposition a matched pattern carries: redact the
// matched substring in place, or block the entire body.
type PatternAction int

const (
	ActionRedact PatternAction = iota
	ActionBlock
)

// scanPattern pairs a compiled regex with its disposition and a short
// human-readable reason used in block messages and detection warnings.
type scanPattern struct {
	name   string
	re     *regexp.Regexp
	action PatternAction
	reason string
}

// builtinPatterns is the compiled secret/credential pattern table. Most
// entries redact in place; a handful that indicate the entire output is
// compromised (private keys, raw cloud credential blobs) block outright.
var builtinPatterns = []scanPattern{
	{
		name:   "api_key",
		re:     regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[\w-]{20,}['"]?`),
		action: ActionRedact,
		reason: "api key",
	},
	{
		name:   "bearer_token",
		re:     regexp.MustCompile(`(?i)bearer\s+[\w\-.]+`),
		action: ActionRedact,
		reason: "bearer token",
	},
	{
		name:   "aws_credential",
		re:     regexp.MustCompile(`(?i)(aws|amazon).*?(key|secret|token)\s*[:=]\s*['"]?[\w/+=]{20,}['"]?`),
		action: ActionRedact,
		reason: "aws credential",
	},
	{
		name:   "generic_secret",
		re:     regexp.MustCompile(`(?i)(password|passwd|secret|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`),
		action: ActionRedact,
		reason: "generic secret",
	},
	{
		name:   "private_key",
		re:     regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----[\s\S]*?-----END (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
		action: ActionBlock,
		reason: "private key material",
	},
}

// promptInjectionPatterns flag text that attempts to override the
// model's core instructions — used by Detect, not SanitizeToolOutput.
var promptInjectionPatterns = []scanPattern{
	{
		name:   "ignore_instructions",
		re:     regexp.MustCompile(`(?i)ignore (all |previous |above )?(instructions|prompts?|rules)`),
		reason: "instruction override attempt",
	},
	{
		name:   "role_override",
		re:     regexp.MustCompile(`(?i)you are now|new system prompt|disregard (your|the) (system|previous) prompt`),
		reason: "role override attempt",
	},
	{
		name:   "exfiltration_request",
		re:     regexp.MustCompile(`(?i)(reveal|print|output|send) (your|the) (system prompt|instructions|api key|secret)`),
		reason: "exfiltration attempt",
	},
}

const defaultMaxOutputLength = 64 * 1024

// RedactionMarker replaces matched secret substrings in place.
const RedactionMarker = "[REDACTED]"

// SanitizeResult is the return value of SanitizeToolOutput.
type SanitizeResult struct {
	Content     string
	WasModified bool
}

// SanitizeToolOutput scans text for known secret/credential patterns. A
// Redact pattern substitutes its match with RedactionMarker; a Block
// pattern replaces the entire body with a disclosure-free marker. Output
// exceeding maxOutputLength is truncated with a notice before patterns
// are applied, so a blocked body never grows the response. The function
// is pure and idempotent: sanitizing already-sanitized text is a no-op.
func SanitizeToolOutput(toolName, text string) SanitizeResult {
	return sanitizeWithPatterns(text, builtinPatterns, defaultMaxOutputLength)
}

// SanitizeToolOutputWithLimit is SanitizeToolOutput with an explicit
// output-length ceiling, for tools that declare a smaller cap.
func SanitizeToolOutputWithLimit(toolName, text string, maxOutputLength int) SanitizeResult {
	return sanitizeWithPatterns(text, builtinPatterns, maxOutputLength)
}

func sanitizeWithPatterns(text string, patterns []scanPattern, maxOutputLength int) SanitizeResult {
	modified := false
	content := text

	if maxOutputLength > 0 && len(content) > maxOutputLength {
		content = content[:maxOutputLength] + "\n...[truncated]"
		modified = true
	}

	for _, p := range patterns {
		if !p.re.MatchString(content) {
			continue
		}
		modified = true
		switch p.action {
		case ActionBlock:
			return SanitizeResult{
				Content:     fmt.Sprintf("Output blocked: %s detected", p.reason),
				WasModified: true,
			}
		case ActionRedact:
			content = p.re.ReplaceAllString(content, RedactionMarker)
		}
	}

	return SanitizeResult{Content: content, WasModified: modified}
}

// Warning is one prompt-injection finding from Detect, with a byte-range
// location in the scanned text. Severity reuses the AuditSeverity scale
// defined in audit.go so callers can fold content-scan findings and
// config-audit findings into one report.
type Warning struct {
	Severity    AuditSeverity
	Description string
	Start       int
	End         int
}

// Detect scans text for prompt-injection indicators and returns every
// match found. It never modifies the input and carries no state between
// calls — callers decide what to do with the warnings (e.g. append a
// transparency note, or refuse to act on an upstream skill's content).
func Detect(text string) []Warning {
	var warnings []Warning
	for _, p := range promptInjectionPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			warnings = append(warnings, Warning{
				Severity:    SeverityWarn,
				Description: p.reason,
				Start:       loc[0],
				End:         loc[1],
			})
		}
	}
	return warnings
}

// DetectSecretNames reports which builtin secret pattern names matched,
// without modifying the input. Used for alerting/metrics, not dispatch
// decisions.
func DetectSecretNames(text string) []string {
	if text == "" {
		return nil
	}
	var names []string
	for _, p := range builtinPatterns {
		if p.re.MatchString(text) {
			names = append(names, p.name)
		}
	}
	return names
}
