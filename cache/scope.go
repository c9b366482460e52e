package cache

import (
	"context"
	"net/http"
)

// Scope is the per-request value threaded through the middleware chain.
// It carries the cache sentinel, the HTMX indicator and the authenticated
// identity so that stages can coordinate without process-wide state.
type Scope struct {
	// cacheSeen is set by the first cache middleware that processes the
	// request; a second instance observing it fails with ErrDuplicateCaching.
	cacheSeen bool
	// HTMX marks requests carrying the HX-Request indicator header.
	HTMX bool
	// Identity is the authenticated principal, empty when anonymous.
	Identity string
}

type scopeKey struct{}

// NewScope returns a context carrying a fresh request scope.
func NewScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, &Scope{})
}

// ScopeFrom returns the request scope stored in ctx, or nil when no scope
// has been installed.
func ScopeFrom(ctx context.Context) *Scope {
	sc, _ := ctx.Value(scopeKey{}).(*Scope)
	return sc
}

// EnsureScope returns a request guaranteed to carry a scope, installing one
// when absent.
func EnsureScope(req *http.Request) (*http.Request, *Scope) {
	if sc := ScopeFrom(req.Context()); sc != nil {
		return req, sc
	}
	ctx := NewScope(req.Context())
	return req.WithContext(ctx), ScopeFrom(ctx)
}

// markCaching records this cache middleware in the scope. It reports false
// when another cache middleware already claimed the request.
func (s *Scope) markCaching() bool {
	if s.cacheSeen {
		return false
	}
	s.cacheSeen = true
	return true
}

// RequireCaching verifies that a cache middleware processed this request.
// Handlers that rely on cache-coupled behaviour call it before proceeding;
// it fails with ErrMissingCaching when no cache layer is in scope.
func RequireCaching(ctx context.Context) error {
	sc := ScopeFrom(ctx)
	if sc == nil || !sc.cacheSeen {
		return ErrMissingCaching
	}
	return nil
}
