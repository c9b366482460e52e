package middleware

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corestack/corestack/cache"
)

func issueMessages(issues []Issue, level IssueLevel) []string {
	var out []string
	for _, issue := range issues {
		if issue.Level == level {
			out = append(out, issue.Message)
		}
	}
	return out
}

func TestValidateDefaultStackIsClean(t *testing.T) {
	s := NewStack(okRouter(), WithSystemStages(DefaultStages(
		cache.NewMemoryStore(),
		[]byte("0123456789abcdef0123456789abcdef"),
	)))

	issues := s.Validate()
	assert.Empty(t, issueMessages(issues, Warn), "default ordering must produce no warnings")
}

func TestValidateRecommendsSecurity(t *testing.T) {
	s := NewStack(okRouter())
	issues := s.Validate()

	infos := issueMessages(issues, Info)
	assert.Len(t, infos, 1)
	assert.Contains(t, infos[0], "security")
}

func TestValidateWarnsSessionAfterAuth(t *testing.T) {
	s := NewStack(okRouter())
	// Deliberately inverted: authentication before sessions.
	s.AddUserMiddleware("SessionAuth", passthrough)
	s.AddSystemMiddleware(Sessions, Stage{Name: "Sessions", Wrap: passthrough})

	warns := issueMessages(s.Validate(), Warn)
	assert.Len(t, warns, 1)
	assert.Contains(t, warns[0], "session")
}

func TestValidateChecksTerminators(t *testing.T) {
	s := NewStack(okRouter())
	names := s.Names()
	assert.Equal(t, stageServerError, names[0])
	assert.Equal(t, stageExceptionMapper, names[len(names)-2])
	assert.Equal(t, stageRouter, names[len(names)-1])
}

func TestPositionNames(t *testing.T) {
	assert.Equal(t, "SECURITY", Security.String())
	assert.Equal(t, "CUSTOM", Custom.String())
	assert.Equal(t, "UNKNOWN", Position(42).String())
	assert.Equal(t, 0, int(Security))
	assert.Equal(t, 6, int(Custom))
}

var _ http.Handler = (*Stack)(nil)
