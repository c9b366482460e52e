package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corestack/corestack/cache"
)

func tracingStage(name string, trace *[]string) Stage {
	return Stage{Name: name, Wrap: func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*trace = append(*trace, name)
			next.ServeHTTP(w, r)
		})
	}}
}

func okRouter() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestStackExecutionOrder(t *testing.T) {
	var trace []string
	s := NewStack(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace = append(trace, "router")
	}))
	s.AddUserMiddleware("UserOne", tracingStage("UserOne", &trace).Wrap)
	s.AddUserMiddleware("UserTwo", tracingStage("UserTwo", &trace).Wrap)
	s.AddSystemMiddleware(Security, tracingStage("Security", &trace))
	s.AddSystemMiddleware(Custom, tracingStage("Custom", &trace))
	s.AddSystemMiddleware(CORS, tracingStage("CORS", &trace))

	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, httptest.NewRequest("GET", "http://example.com/", nil))

	assert.Equal(t, []string{"UserOne", "UserTwo", "Security", "CORS", "Custom", "router"}, trace)
}

func TestInsertUserMiddlewarePosition(t *testing.T) {
	var trace []string
	s := NewStack(okRouter())
	s.AddUserMiddleware("A", tracingStage("A", &trace).Wrap)
	s.AddUserMiddleware("C", tracingStage("C", &trace).Wrap)
	s.InsertUserMiddleware(1, "B", tracingStage("B", &trace).Wrap)

	s.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "http://example.com/", nil))
	assert.Equal(t, []string{"A", "B", "C"}, trace)
}

func TestUnknownPositionAppends(t *testing.T) {
	s := NewStack(okRouter())
	s.AddSystemMiddleware(Custom, Stage{Name: "Custom", Wrap: passthrough})
	s.AddSystemMiddleware(Position(42), Stage{Name: "Extra", Wrap: passthrough})

	names := s.Names()
	assert.Equal(t, []string{"ServerError", "Custom", "Extra", "ExceptionMapper", "Router"}, names)
}

func passthrough(next http.Handler) http.Handler { return next }

func TestBuildIsCachedUntilInvalidated(t *testing.T) {
	var wraps int64
	counting := func(next http.Handler) http.Handler {
		atomic.AddInt64(&wraps, 1)
		return next
	}
	s := NewStack(okRouter())
	s.AddUserMiddleware("Counting", counting)

	s.Build()
	s.Build()
	assert.Equal(t, int64(1), atomic.LoadInt64(&wraps), "Build must cache the compiled stack")

	s.Invalidate()
	s.Build()
	assert.Equal(t, int64(2), atomic.LoadInt64(&wraps))

	s.AddUserMiddleware("Another", passthrough)
	s.Build()
	assert.Equal(t, int64(3), atomic.LoadInt64(&wraps), "adding a stage invalidates the compiled stack")
}

func TestGatherPatternInvalidatesBuild(t *testing.T) {
	var wraps int64
	s := NewStack(okRouter())
	s.AddUserMiddleware("Counting", func(next http.Handler) http.Handler {
		atomic.AddInt64(&wraps, 1)
		return next
	})

	s.Build()
	s.InvalidatePattern("template:*")
	s.Build()
	assert.Equal(t, int64(1), atomic.LoadInt64(&wraps), "non-gather patterns leave the stack alone")

	s.InvalidatePattern("gather:*")
	s.Build()
	assert.Equal(t, int64(2), atomic.LoadInt64(&wraps))
}

func TestSystemOverrideReplacesDefault(t *testing.T) {
	var trace []string
	s := NewStack(okRouter())
	s.AddSystemMiddleware(Caching, tracingStage("Original", &trace))
	s.AddSystemMiddleware(Caching, tracingStage("Override", &trace))

	s.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "http://example.com/", nil))
	assert.Equal(t, []string{"Override"}, trace)
}

func TestExceptionMapperRendersHTTPError(t *testing.T) {
	s := NewStack(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Abort(http.StatusNotFound, "no such page")
	}))

	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, httptest.NewRequest("GET", "http://example.com/x", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "Content not found", resp.Body.String())
}

func TestExceptionMapperUsesRegisteredHandler(t *testing.T) {
	s := NewStack(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Abort(http.StatusTeapot, "")
	}))
	s.HandleStatus(http.StatusTeapot, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, httptest.NewRequest("GET", "http://example.com/", nil))
	assert.Equal(t, http.StatusTeapot, resp.Code)
	assert.Equal(t, "short and stout", resp.Body.String())
}

func TestServerErrorStageRecovers(t *testing.T) {
	s := NewStack(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	}))

	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, httptest.NewRequest("GET", "http://example.com/", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "Server error", resp.Body.String())
}

func TestServerErrorStageDebugOutput(t *testing.T) {
	s := NewStack(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	}), WithDebug(true))

	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, httptest.NewRequest("GET", "http://example.com/", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, resp.Body.String(), "boom")
}

func TestServerErrorStageDelegatesToHandler(t *testing.T) {
	var handled error
	s := NewStack(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	}), WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
		handled = err
		w.WriteHeader(http.StatusBadGateway)
	}))

	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, httptest.NewRequest("GET", "http://example.com/", nil))
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	require.Error(t, handled)
	assert.Equal(t, "boom", handled.Error())
}

func TestHTMXErrorsRenderPlainText(t *testing.T) {
	s := NewStack(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("boom"))
	}), WithTemplateRenderer(failingRenderer{}))
	s.AddSystemMiddleware(Custom, CustomStage())

	resp := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "http://example.com/", nil)
	req.Header.Set("HX-Request", "true")
	s.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header().Get("Content-Type"))
	assert.Equal(t, "Server error", resp.Body.String())
}

type failingRenderer struct{}

func (failingRenderer) Render(http.ResponseWriter, *http.Request, string, int, map[string]any) error {
	return errors.New("renderer should not be used for HTMX requests")
}

func TestProcessTimeHeader(t *testing.T) {
	s := NewStack(okRouter())
	s.AddSystemMiddleware(Custom, CustomStage())

	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, httptest.NewRequest("GET", "http://example.com/", nil))

	value := resp.Header().Get("X-Process-Time")
	require.NotEmpty(t, value)
	seconds, err := strconv.ParseFloat(value, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, seconds, 0.0)
}

func TestCachingStageInsideStack(t *testing.T) {
	var calls int64
	router := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		_, _ = w.Write([]byte("payload"))
	})
	s := NewStack(router)
	s.AddSystemMiddleware(Caching, CachingStage(cache.NewMemoryStore(), cache.WithNamespace("stack-test")))

	first := httptest.NewRecorder()
	s.ServeHTTP(first, httptest.NewRequest("GET", "http://example.com/page", nil))
	assert.Equal(t, "miss", first.Header().Get("X-Cache"))

	second := httptest.NewRecorder()
	s.ServeHTTP(second, httptest.NewRequest("GET", "http://example.com/page", nil))
	assert.Equal(t, "hit", second.Header().Get("X-Cache"))
	assert.Equal(t, "payload", second.Body.String())
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}
