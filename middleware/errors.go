package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/corestack/corestack/cache"
)

const (
	stageServerError     = "ServerError"
	stageExceptionMapper = "ExceptionMapper"
	stageRouter          = "Router"
)

// HTTPError is a handler-raised HTTP exception. Raise it with Abort; the
// exception-mapping stage converts it into a response.
type HTTPError struct {
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// Abort interrupts the current handler with an HTTP error. The
// exception-mapping stage recovers it and renders the mapped response.
func Abort(status int, detail string) {
	panic(&HTTPError{Status: status, Detail: detail})
}

// TemplateRenderer renders an HTML error page. It is an external
// collaborator; the stack only needs this single operation.
type TemplateRenderer interface {
	Render(w http.ResponseWriter, r *http.Request, name string, status int, data map[string]any) error
}

var errorMessages = map[int]string{
	http.StatusNotFound:            "Content not found",
	http.StatusInternalServerError: "Server error",
}

func errorMessage(status int) string {
	if msg, ok := errorMessages[status]; ok {
		return msg
	}
	return "An error occurred"
}

// serverErrorStage is the outermost stage: it installs the request scope and
// catches any error escaping the inner stages. In debug mode it emits
// diagnostic output; otherwise it delegates to the installed handler or the
// default error rendering.
func (s *Stack) serverErrorStage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, _ = cache.EnsureScope(r)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			s.log.Error("unhandled error", "url", r.URL.String(), "error", err)
			if s.debug {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprintf(w, "%v\n\n%s", err, debug.Stack())
				return
			}
			if s.onError != nil {
				s.onError(w, r, err)
				return
			}
			s.renderError(w, r, http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// exceptionStage sits closest to the router and converts handler-raised HTTP
// errors into responses according to the registered handler map. Other
// panics propagate to the error-handling stage.
func (s *Stack) exceptionStage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			httpErr, ok := rec.(*HTTPError)
			if !ok {
				panic(rec)
			}
			if handler, ok := s.handlers[httpErr.Status]; ok {
				handler.ServeHTTP(w, r)
				return
			}
			s.renderError(w, r, httpErr.Status)
		}()
		next.ServeHTTP(w, r)
	})
}

// renderError writes the user-visible failure: plain text for HTMX requests,
// an HTML page through the template collaborator otherwise, with a plain
// text fallback.
func (s *Stack) renderError(w http.ResponseWriter, r *http.Request, status int) {
	msg := errorMessage(status)
	sc := cache.ScopeFrom(r.Context())
	if sc == nil || !sc.HTMX {
		if s.renderer != nil {
			data := map[string]any{"page": strconv.Itoa(status)}
			if err := s.renderer.Render(w, r, "index.html", status, data); err == nil {
				return
			}
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
