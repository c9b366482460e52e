package middleware

import "strings"

// IssueLevel grades a validation finding.
type IssueLevel int

const (
	// Warn marks an ordering problem that will likely misbehave at runtime.
	Warn IssueLevel = iota
	// Info marks a recommendation.
	Info
)

func (l IssueLevel) String() string {
	if l == Warn {
		return "warning"
	}
	return "info"
}

// Issue is one validation finding about the assembled pipeline.
type Issue struct {
	Level   IssueLevel
	Message string
}

// Validate inspects the assembled stage-name sequence for well-known
// ordering problems. It builds the stack if needed.
func (s *Stack) Validate() []Issue {
	names := s.Names()
	var issues []Issue

	if len(names) == 0 || names[0] != stageServerError {
		issues = append(issues, Issue{Warn, "error-handling stage should be outermost"})
	}
	if len(names) < 2 || names[len(names)-2] != stageExceptionMapper {
		issues = append(issues, Issue{Warn, "exception-mapping stage should be innermost before the router"})
	}

	sessionIndex, authIndex := -1, -1
	for i, name := range names {
		if strings.Contains(name, "Session") && !strings.Contains(name, "Auth") {
			sessionIndex = i
		}
		if strings.Contains(name, "Auth") || strings.Contains(name, "Login") {
			authIndex = i
		}
	}
	if sessionIndex > -1 && authIndex > -1 && sessionIndex > authIndex {
		issues = append(issues, Issue{Warn, "session stage should come before authentication"})
	}

	hasSecurity := false
	for _, name := range names {
		for _, marker := range []string{"Secure", "CORS", "TrustedHost", "HTTPSRedirect"} {
			if strings.Contains(name, marker) {
				hasSecurity = true
			}
		}
	}
	if !hasSecurity {
		issues = append(issues, Issue{Info, "consider adding security middleware (secure headers, CORS)"})
	}

	return issues
}
