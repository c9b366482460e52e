package middleware

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gorilla/sessions"
	"github.com/rs/cors"
	"github.com/unrolled/secure"

	"github.com/corestack/corestack/cache"
)

// DefaultStages returns the seven default system stages: security headers,
// CORS, compression, sessions, authentication, caching and the custom
// timing/HTMX stage. The caching stage sits inside sessions and
// authentication, so the identity is in the request scope when it runs; the
// cache fingerprint does not include the identity.
func DefaultStages(store cache.Store, sessionSecret []byte, cacheOpts ...cache.Option) map[Position]Stage {
	cookies := sessions.NewCookieStore(sessionSecret)
	return map[Position]Stage{
		Security:       SecurityStage(),
		CORS:           CORSStage(cors.Options{}),
		Compression:    CompressionStage(),
		Sessions:       SessionsStage(cookies, "session"),
		Authentication: AuthenticationStage(),
		Caching:        CachingStage(store, cacheOpts...),
		Custom:         CustomStage(),
	}
}

// SecurityStage applies conservative security headers.
func SecurityStage() Stage {
	sec := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "same-origin",
	})
	return Stage{Name: "SecureHeaders", Wrap: func(next http.Handler) http.Handler {
		return sec.Handler(next)
	}}
}

// CORSStage applies cross-origin resource sharing policy.
func CORSStage(opts cors.Options) Stage {
	c := cors.New(opts)
	return Stage{Name: "CORS", Wrap: func(next http.Handler) http.Handler {
		return c.Handler(next)
	}}
}

// CompressionStage negotiates brotli or gzip response compression from the
// request's Accept-Encoding.
func CompressionStage() Stage {
	return Stage{Name: "Compression", Wrap: func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			encoding := chooseEncoding(r.Header.Get("Accept-Encoding"))
			if encoding == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Accept-Encoding")
			cw := &compressingWriter{ResponseWriter: w, encoding: encoding}
			defer cw.close()
			next.ServeHTTP(cw, r)
		})
	}}
}

func chooseEncoding(acceptEncoding string) string {
	for _, preferred := range []string{"br", "gzip"} {
		for _, part := range strings.Split(acceptEncoding, ",") {
			name, _, _ := strings.Cut(strings.TrimSpace(part), ";")
			if name == preferred {
				return preferred
			}
		}
	}
	return ""
}

// compressingWriter compresses the body once headers show no prior encoding.
type compressingWriter struct {
	http.ResponseWriter
	encoding    string
	wroteHeader bool
	compressor  io.WriteCloser
}

func (w *compressingWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	h := w.Header()
	if h.Get("Content-Encoding") == "" && status != http.StatusNoContent && status != http.StatusNotModified {
		h.Set("Content-Encoding", w.encoding)
		h.Del("Content-Length")
		switch w.encoding {
		case "br":
			w.compressor = brotli.NewWriterLevel(w.ResponseWriter, brotli.DefaultCompression)
		case "gzip":
			w.compressor = gzip.NewWriter(w.ResponseWriter)
		}
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *compressingWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.compressor != nil {
		return w.compressor.Write(p)
	}
	return w.ResponseWriter.Write(p)
}

func (w *compressingWriter) Flush() {
	if f, ok := w.compressor.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *compressingWriter) close() {
	if w.compressor != nil {
		_ = w.compressor.Close()
	}
}

type sessionContextKey struct{}

// SessionsStage loads the named cookie session and makes it available to
// inner stages and handlers through the request context.
func SessionsStage(store sessions.Store, name string) Stage {
	return Stage{Name: "Sessions", Wrap: func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := store.Get(r, name)
			if err != nil {
				GetLogger().Debug("session decode failed, starting fresh", "error", err)
			}
			ctx := context.WithValue(r.Context(), sessionContextKey{}, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}}
}

// SessionFrom returns the session installed by SessionsStage, nil when the
// stage is not in the pipeline.
func SessionFrom(r *http.Request) *sessions.Session {
	s, _ := r.Context().Value(sessionContextKey{}).(*sessions.Session)
	return s
}

// AuthenticationStage copies the session identity into the request scope so
// inner stages and handlers can read it. The caching stage does not key on it.
func AuthenticationStage() Stage {
	return Stage{Name: "SessionAuth", Wrap: func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := cache.ScopeFrom(r.Context()); sc != nil {
				if session := SessionFrom(r); session != nil {
					if identity, ok := session.Values["identity"].(string); ok {
						sc.Identity = identity
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}}
}

// CachingStage wraps the inner pipeline with the response cache.
func CachingStage(store cache.Store, opts ...cache.Option) Stage {
	return Stage{Name: "Cache", Wrap: func(next http.Handler) http.Handler {
		return cache.NewMiddleware(next, store, opts...)
	}}
}

// CustomStage marks HTMX requests in the scope and reports handling time in
// the X-Process-Time header (seconds, decimal).
func CustomStage() Stage {
	return Stage{Name: "ProcessTime", Wrap: func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sc := cache.ScopeFrom(r.Context()); sc != nil && r.Header.Get("HX-Request") != "" {
				sc.HTMX = true
			}
			start := time.Now()
			next.ServeHTTP(&timingWriter{ResponseWriter: w, start: start}, r)
		})
	}}
}

type timingWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (w *timingWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.Header().Set("X-Process-Time", fmt.Sprintf("%f", time.Since(w.start).Seconds()))
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *timingWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(p)
}
