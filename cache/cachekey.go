package cache

import (
	"context"
	"crypto/md5" //nolint:gosec // content addressing, not a security primitive
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

const varyingHeadersPrefix = "varying_headers."

// hashKey returns the hex MD5 of s. MD5 is used for content addressing only.
func hashKey(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // content addressing, not a security primitive
	return hex.EncodeToString(sum[:])
}

// requestURL reconstructs the full URL of a server request, used as the
// stable input of the URL hash.
func requestURL(req *http.Request) string {
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + req.Host + req.URL.RequestURI()
}

// varyingHeadersKey returns the store key of the varying-headers record for
// the given request path.
func varyingHeadersKey(path string) string {
	return varyingHeadersPrefix + hashKey(path)
}

// fingerprint composes the cache key for a request under a known set of
// varying header names. Returns "" for methods outside the cacheable set.
func fingerprint(namespace, method, url string, headers http.Header, varyingHeaders []string) string {
	if !cachableMethods[method] {
		return ""
	}
	varyHash := ""
	if len(varyingHeaders) > 0 {
		var values strings.Builder
		for _, name := range varyingHeaders {
			values.WriteString(headers.Get(name))
		}
		varyHash = hashKey(values.String())
	}
	return namespace + ":cached:" + method + "." + hashKey(url) + "." + varyHash
}

// varyingHeadersRecord reads the stored set of varying header names for a
// request path. A missing record returns (nil, false, nil).
func varyingHeadersRecord(ctx context.Context, store Store, path string) ([]string, bool, error) {
	raw, ok, err := store.Get(ctx, varyingHeadersKey(path))
	if err != nil || !ok {
		return nil, false, err
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, false, &RecordTypeError{Field: "varying_headers", Reason: "is not a list of strings"}
	}
	return names, true, nil
}

// learnVaryingHeaders merges the response Vary header names into the stored
// record for the request path and writes the union back. The union only
// grows; names are lowercased and kept in sorted order. Returns the union.
func learnVaryingHeaders(ctx context.Context, store Store, path string, vary string) ([]string, error) {
	stored, _, err := varyingHeadersRecord(ctx, store, path)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(stored))
	for _, name := range stored {
		set[name] = struct{}{}
	}
	for _, name := range splitHeaderList(vary) {
		set[strings.ToLower(name)] = struct{}{}
	}
	union := make([]string, 0, len(set))
	for name := range set {
		union = append(union, name)
	}
	sort.Strings(union)

	raw, err := json.Marshal(union)
	if err != nil {
		return nil, err
	}
	if err := store.Set(ctx, varyingHeadersKey(path), raw, 0); err != nil {
		return nil, err
	}
	return union, nil
}

// splitHeaderList splits a comma-separated header value into trimmed,
// non-empty elements.
func splitHeaderList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
