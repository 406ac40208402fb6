package security

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotAuthorized is returned by CheckOutboundRequest when a Block
// pattern matches anywhere in an outbound request. Callers surface this
// as the tool's NotAuthorized error type rather than retrying — a
// leaked credential in the request is not a transient condition.
var ErrNotAuthorized = errors.New("not authorized: outbound request blocked by leak detector")

// CheckOutboundRequest scans the URL, headers, and body of a request a
// tool is about to make and refuses it if any Block-classified pattern
// matches. Redact-classified patterns are reported but do not block —
// an outbound leak detector cannot silently rewrite a request out from
// under the tool, so only full blocks are enforced here; Redact matches
// are surfaced as warnings for the caller to log or audit.
func CheckOutboundRequest(url string, headers http.Header, body string) (warnings []Warning, err error) {
	haystacks := []string{url, body}
	for key, values := range headers {
		haystacks = append(haystacks, key+": "+strings.Join(values, ","))
	}
	combined := strings.Join(haystacks, "\n")

	for _, p := range builtinPatterns {
		if !p.re.MatchString(combined) {
			continue
		}
		if p.action == ActionBlock {
			return warnings, fmt.Errorf("%w: %s", ErrNotAuthorized, p.reason)
		}
		loc := p.re.FindStringIndex(combined)
		warnings = append(warnings, Warning{
			Severity:    SeverityWarn,
			Description: fmt.Sprintf("outbound request contains %s", p.reason),
			Start:       loc[0],
			End:         loc[1],
		})
	}
	return warnings, nil
}
