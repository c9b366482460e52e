package cache

import (
	"net/http"
	"regexp"
	"time"
)

// Matcher selects request paths for a caching rule.
type Matcher interface {
	matchPath(path string) bool
}

type literalMatcher string

func (m literalMatcher) matchPath(path string) bool {
	return string(m) == "*" || string(m) == path
}

type wildcardMatcher struct{}

func (wildcardMatcher) matchPath(string) bool { return true }

type regexMatcher struct{ re *regexp.Regexp }

func (m regexMatcher) matchPath(path string) bool {
	loc := m.re.FindStringIndex(path)
	return loc != nil && loc[0] == 0
}

type anyMatcher []Matcher

func (m anyMatcher) matchPath(path string) bool {
	for _, item := range m {
		if item.matchPath(path) {
			return true
		}
	}
	return false
}

// Literal matches an exact request path. The literal "*" matches every path.
func Literal(path string) Matcher { return literalMatcher(path) }

// Wildcard matches every request path.
func Wildcard() Matcher { return wildcardMatcher{} }

// Regex matches paths against a compiled pattern, anchored at the start of
// the path.
func Regex(re *regexp.Regexp) Matcher { return regexMatcher{re: re} }

// Any matches if any of the given matchers match.
func Any(matchers ...Matcher) Matcher { return anyMatcher(matchers) }

// Rule declares which requests and responses participate in caching.
// Rules are evaluated in order; the first match wins.
type Rule struct {
	// Match selects request paths. A nil Match matches every path.
	Match Matcher
	// Status, when non-empty, constrains which response status codes the
	// rule captures.
	Status []int
	// TTL overrides the store default for responses captured by this rule.
	// Nil leaves the default in place; a pointer to zero means "match but
	// never cache".
	TTL *time.Duration
}

// TTL returns a Rule TTL value.
func TTL(d time.Duration) *time.Duration { return &d }

func (r Rule) matchesRequest(req *http.Request) bool {
	if r.Match == nil {
		return true
	}
	return r.Match.matchPath(req.URL.Path)
}

func (r Rule) matchesStatus(status int) bool {
	if len(r.Status) == 0 {
		return true
	}
	for _, s := range r.Status {
		if s == status {
			return true
		}
	}
	return false
}

// ruleMatchingRequest returns the first rule matching the request path.
func ruleMatchingRequest(rules []Rule, req *http.Request) (Rule, bool) {
	for _, rule := range rules {
		if rule.matchesRequest(req) {
			return rule, true
		}
	}
	return Rule{}, false
}

// ruleMatchingResponse returns the first rule matching both the request path
// and the response status.
func ruleMatchingResponse(rules []Rule, req *http.Request, status int) (Rule, bool) {
	for _, rule := range rules {
		if rule.matchesRequest(req) && rule.matchesStatus(status) {
			return rule, true
		}
	}
	return Rule{}, false
}
