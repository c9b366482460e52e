package cache

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// Directives is the set of Cache-Control response directives the layer can
// emit. Boolean fields emit the bare directive; pointer fields emit
// "name=value". The "public" and "private" directives are recognised in
// parsing but reserved for emission.
type Directives struct {
	MaxAge               *int
	SMaxAge              *int
	NoCache              bool
	NoStore              bool
	NoTransform          bool
	MustRevalidate       bool
	ProxyRevalidate      bool
	MustUnderstand       bool
	Immutable            bool
	StaleWhileRevalidate *int
	StaleIfError         *int
	Public               bool
	Private              bool
}

// IntDirective returns a pointer for a valued directive field.
func IntDirective(v int) *int { return &v }

// parseCacheControl parses a Cache-Control header value into a directive map.
// Valueless directives map to "".
func parseCacheControl(value string) map[string]string {
	cc := map[string]string{}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if name, val, found := strings.Cut(part, "="); found {
			cc[strings.TrimSpace(name)] = strings.TrimSpace(val)
		} else {
			cc[part] = ""
		}
	}
	return cc
}

// PatchCacheControl merges the given directives into the header's
// Cache-Control value. An existing max-age is kept when it is smaller than
// the requested one. Attempting to emit "public" or "private" fails with
// ErrNotImplementedDirective.
func PatchCacheControl(header http.Header, d Directives) error {
	if d.Public {
		return fmt.Errorf("%w: public", ErrNotImplementedDirective)
	}
	if d.Private {
		return fmt.Errorf("%w: private", ErrNotImplementedDirective)
	}

	cc := parseCacheControl(header.Get("Cache-Control"))

	if d.MaxAge != nil {
		maxAge := *d.MaxAge
		if existing, ok := cc["max-age"]; ok {
			if parsed, err := strconv.Atoi(existing); err == nil && parsed < maxAge {
				maxAge = parsed
			}
		}
		cc["max-age"] = strconv.Itoa(maxAge)
	}
	if d.SMaxAge != nil {
		cc["s-maxage"] = strconv.Itoa(*d.SMaxAge)
	}
	if d.StaleWhileRevalidate != nil {
		cc["stale-while-revalidate"] = strconv.Itoa(*d.StaleWhileRevalidate)
	}
	if d.StaleIfError != nil {
		cc["stale-if-error"] = strconv.Itoa(*d.StaleIfError)
	}
	for name, set := range map[string]bool{
		"no-cache":         d.NoCache,
		"no-store":         d.NoStore,
		"no-transform":     d.NoTransform,
		"must-revalidate":  d.MustRevalidate,
		"proxy-revalidate": d.ProxyRevalidate,
		"must-understand":  d.MustUnderstand,
		"immutable":        d.Immutable,
	} {
		if set {
			cc[name] = ""
		}
	}

	names := make([]string, 0, len(cc))
	for name := range cc {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(cc))
	for _, name := range names {
		if cc[name] == "" {
			parts = append(parts, name)
		} else {
			parts = append(parts, name+"="+cc[name])
		}
	}

	if len(parts) == 0 {
		header.Del("Cache-Control")
		return nil
	}
	header.Set("Cache-Control", strings.Join(parts, ", "))
	return nil
}
