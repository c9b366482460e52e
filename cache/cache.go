package cache

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const oneYear = 365 * 24 * time.Hour

var cachableMethods = map[string]bool{
	http.MethodGet:  true,
	http.MethodHead: true,
}

// cachableStatusCodes is the frozen set of response status codes the cache
// may store.
var cachableStatusCodes = map[int]bool{
	200: true, // OK
	203: true, // Non-Authoritative Information
	204: true, // No Content
	206: true, // Partial Content
	300: true, // Multiple Choices
	301: true, // Moved Permanently
	404: true, // Not Found
	405: true, // Method Not Allowed
	410: true, // Gone
	414: true, // URI Too Long
	501: true, // Not Implemented
}

// invalidatingMethods trigger a purge of stored entries for the request URL
// when the downstream response is a success or redirect.
var invalidatingMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Middleware is the HTTP caching layer. It serves stored responses for
// cacheable requests, records cacheable downstream responses, and purges
// stored entries when a mutating method succeeds.
type Middleware struct {
	next       http.Handler
	store      Store
	rules      []Rule
	namespace  string
	defaultTTL *time.Duration
	log        *slog.Logger
}

// Option configures a Middleware.
type Option func(*Middleware) error

// WithRules sets the caching rules. Rules are evaluated in order; the first
// match wins. Without rules nothing is cached.
func WithRules(rules ...Rule) Option {
	return func(m *Middleware) error {
		m.rules = rules
		return nil
	}
}

// WithNamespace sets the application namespace prefixed to every response
// fingerprint.
func WithNamespace(ns string) Option {
	return func(m *Middleware) error {
		if ns == "" {
			return fmt.Errorf("namespace cannot be empty")
		}
		m.namespace = ns
		return nil
	}
}

// WithDefaultTTL sets the TTL applied when the matched rule declares none.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *Middleware) error {
		m.defaultTTL = &ttl
		return nil
	}
}

// WithLogger sets the logger used by this middleware instance.
func WithLogger(l *slog.Logger) Option {
	return func(m *Middleware) error {
		m.log = l
		return nil
	}
}

// NewMiddleware returns a caching middleware wrapping next, storing responses
// in store. By default it caches every path under the "app" namespace with no
// default TTL.
func NewMiddleware(next http.Handler, store Store, opts ...Option) *Middleware {
	m := &Middleware{
		next:      next,
		store:     store,
		rules:     []Rule{{Match: Wildcard()}},
		namespace: "app",
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			GetLogger().Error("failed to apply cache option", "error", err)
		}
	}
	if m.log == nil {
		m.log = GetLogger()
	}
	return m
}

func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r, sc := EnsureScope(r)
	if !sc.markCaching() {
		panic(ErrDuplicateCaching)
	}

	if r.Header.Get("X-No-Cache") != "" {
		m.log.Debug("cache_bypass", "reason", "x-no-cache")
		m.next.ServeHTTP(w, r)
		return
	}

	resp, err := m.getFromCache(r)
	if err != nil {
		if errors.Is(err, ErrRequestNotCachable) {
			if invalidatingMethods[r.Method] {
				w = &invalidatingWriter{ResponseWriter: w, m: m, req: r}
			}
			m.next.ServeHTTP(w, r)
			return
		}
		// Store or record failures degrade to a miss.
		m.log.Warn("cache lookup failed", "url", r.URL.String(), "error", err)
	}

	if resp != nil {
		m.log.Debug("cache_lookup", "result", "hit", "url", r.URL.String())
		m.replay(w, resp)
		return
	}

	m.log.Debug("cache_lookup", "result", "miss", "url", r.URL.String())
	rec := &recorder{ResponseWriter: w}
	m.next.ServeHTTP(rec, r)
	m.finish(rec, r)
}

type cachedResponse struct {
	status int
	header http.Header
	body   []byte
}

// getFromCache resolves a stored response for the request, trying the GET
// fingerprint first and falling back to HEAD. Returns ErrRequestNotCachable
// when method or rules exclude the request.
func (m *Middleware) getFromCache(r *http.Request) (*cachedResponse, error) {
	if !cachableMethods[r.Method] {
		return nil, fmt.Errorf("%w: method %s", ErrRequestNotCachable, r.Method)
	}
	if _, ok := ruleMatchingRequest(m.rules, r); !ok {
		return nil, fmt.Errorf("%w: no rule matches %s", ErrRequestNotCachable, r.URL.Path)
	}

	ctx := r.Context()
	varying, ok, err := varyingHeadersRecord(ctx, m.store, r.URL.Path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	url := requestURL(r)
	for _, method := range []string{http.MethodGet, http.MethodHead} {
		key := fingerprint(m.namespace, method, url, r.Header, varying)
		raw, found, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		status, header, body, err := deserializeResponse(raw)
		if err != nil {
			return nil, err
		}
		return &cachedResponse{status: status, header: header, body: body}, nil
	}
	return nil, nil
}

// replay writes a stored response to the client.
func (m *Middleware) replay(w http.ResponseWriter, resp *cachedResponse) {
	h := w.Header()
	for name, values := range resp.header {
		h[name] = values
	}
	h.Set("X-Cache", "hit")
	w.WriteHeader(resp.status)
	if _, err := w.Write(resp.body); err != nil {
		m.log.Warn("failed to write cached response", "error", err)
	}
}

// finish completes a recorded miss: the buffered response is stored when
// cacheable, then written out. Streamed responses were already forwarded
// unchanged and are never stored.
func (m *Middleware) finish(rec *recorder, r *http.Request) {
	if rec.streaming {
		m.log.Debug("response_not_cachable", "reason", "is_streaming")
		return
	}
	if !rec.wroteHeader {
		rec.status = http.StatusOK
	}

	if err := m.setInCache(r, rec.status, rec.Header(), rec.buf.Bytes()); err != nil {
		if errors.Is(err, ErrResponseNotCachable) {
			m.log.Debug("response_not_cachable", "error", err)
		} else {
			m.log.Warn("failed to store response", "url", r.URL.String(), "error", err)
		}
	}

	rec.ResponseWriter.WriteHeader(rec.status)
	if _, err := rec.ResponseWriter.Write(rec.buf.Bytes()); err != nil {
		m.log.Warn("failed to write response", "error", err)
	}
}

// setInCache stores a response when status, cookies, rules and TTL permit.
// On success the stored copy carries X-Cache: hit while the live reply is
// rewritten to X-Cache: miss.
func (m *Middleware) setInCache(r *http.Request, status int, header http.Header, body []byte) error {
	if !cachableStatusCodes[status] {
		return fmt.Errorf("%w: status %d", ErrResponseNotCachable, status)
	}
	if len(r.Cookies()) == 0 && header.Get("Set-Cookie") != "" {
		return fmt.Errorf("%w: cookies for cookieless request", ErrResponseNotCachable)
	}
	rule, ok := ruleMatchingResponse(m.rules, r, status)
	if !ok {
		return fmt.Errorf("%w: no rule matches", ErrResponseNotCachable)
	}

	ttl := rule.TTL
	if ttl == nil {
		ttl = m.defaultTTL
	}
	if ttl != nil && *ttl == 0 {
		return fmt.Errorf("%w: zero ttl", ErrResponseNotCachable)
	}
	maxAge := oneYear
	if ttl != nil {
		maxAge = *ttl
	}

	header.Set("X-Cache", "hit")
	defer header.Set("X-Cache", "miss")

	if header.Get("Expires") == "" {
		header.Set("Expires", time.Now().Add(maxAge).UTC().Format(http.TimeFormat))
	}
	if err := PatchCacheControl(header, Directives{MaxAge: IntDirective(int(maxAge.Seconds()))}); err != nil {
		return err
	}

	ctx := r.Context()
	varying, err := learnVaryingHeaders(ctx, m.store, r.URL.Path, header.Get("Vary"))
	if err != nil {
		return err
	}
	if len(varying) > 0 {
		header.Set("Vary", strings.Join(varying, ", "))
	}

	key := fingerprint(m.namespace, r.Method, requestURL(r), r.Header, varying)
	raw, err := serializeResponse(status, header, body)
	if err != nil {
		return err
	}

	var storeTTL time.Duration
	if ttl != nil {
		storeTTL = *ttl
	}
	if err := m.store.Set(ctx, key, raw, storeTTL); err != nil {
		return err
	}
	m.log.Debug("stored_response", "key", key, "max_age", maxAge)
	return nil
}

// deleteFromCache purges the stored entries keyed to the request URL along
// with its varying-headers record.
func (m *Middleware) deleteFromCache(r *http.Request) {
	ctx := r.Context()
	varying, ok, err := varyingHeadersRecord(ctx, m.store, r.URL.Path)
	if err != nil {
		m.log.Warn("failed to read varying headers for invalidation", "error", err)
		return
	}
	if !ok {
		return
	}
	url := requestURL(r)
	for _, method := range []string{http.MethodGet, http.MethodHead} {
		key := fingerprint(m.namespace, method, url, r.Header, varying)
		if err := m.store.Delete(ctx, key); err != nil {
			m.log.Warn("failed to invalidate cache entry", "key", key, "error", err)
		}
		m.log.Debug("clear_cache", "key", key)
	}
	if err := m.store.Delete(ctx, varyingHeadersKey(r.URL.Path)); err != nil {
		m.log.Warn("failed to delete varying headers record", "error", err)
	}
}

// recorder buffers a downstream response so that headers can be patched and
// the body stored before anything reaches the client. A handler that flushes
// mid-body switches the recorder to pass-through: the response is streamed to
// the client unchanged and never cached.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	streaming   bool
	buf         bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if r.streaming {
		return
	}
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	if r.streaming {
		return r.ResponseWriter.Write(p)
	}
	return r.buf.Write(p)
}

// Flush marks the response as streaming: headers and any buffered bytes are
// released to the client and subsequent writes pass straight through.
func (r *recorder) Flush() {
	if !r.streaming {
		if !r.wroteHeader {
			r.status = http.StatusOK
			r.wroteHeader = true
		}
		r.streaming = true
		r.ResponseWriter.WriteHeader(r.status)
		if r.buf.Len() > 0 {
			_, _ = r.ResponseWriter.Write(r.buf.Bytes())
			r.buf.Reset()
		}
	}
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// invalidatingWriter purges cache entries for the request URL when a
// mutating method receives a success or redirect response.
type invalidatingWriter struct {
	http.ResponseWriter
	m           *Middleware
	req         *http.Request
	wroteHeader bool
}

func (w *invalidatingWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if status >= 200 && status < 400 {
			w.m.deleteFromCache(w.req)
		}
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *invalidatingWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(p)
}
