// Package middleware assembles the request-processing pipeline from a fixed
// ordered set of system positions plus user middleware. The compiled stack is
// cached and atomically replaced on rebuild; adding or overriding a stage
// invalidates it.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// Position identifies a system middleware slot in the pipeline. Positions are
// applied in declaration order, Security outermost, Custom innermost.
type Position int

const (
	Security Position = iota
	CORS
	Compression
	Sessions
	Authentication
	Caching
	Custom
)

var positionNames = map[Position]string{
	Security:       "SECURITY",
	CORS:           "CORS",
	Compression:    "COMPRESSION",
	Sessions:       "SESSIONS",
	Authentication: "AUTHENTICATION",
	Caching:        "CACHING",
	Custom:         "CUSTOM",
}

func (p Position) String() string {
	if name, ok := positionNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// Stage is one pipeline element: a display name plus a wrapping factory.
type Stage struct {
	Name string
	Wrap func(http.Handler) http.Handler
}

// Stack assembles the middleware pipeline. The zero value is not usable; use
// NewStack.
type Stack struct {
	mu       sync.Mutex
	router   http.Handler
	user     []Stage
	system   map[Position]Stage
	extra    []Stage
	handlers map[int]http.Handler
	debug    bool
	onError  func(http.ResponseWriter, *http.Request, error)
	renderer TemplateRenderer
	log      *slog.Logger

	built http.Handler
	names []string
}

// StackOption configures a Stack.
type StackOption func(*Stack) error

// WithDebug enables diagnostic output from the error-handling stage.
func WithDebug(debug bool) StackOption {
	return func(s *Stack) error {
		s.debug = debug
		return nil
	}
}

// WithErrorHandler installs the handler invoked by the error-handling stage
// when debug mode is off.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) StackOption {
	return func(s *Stack) error {
		s.onError = fn
		return nil
	}
}

// WithTemplateRenderer installs the collaborator used to render HTML error
// pages. Without one, errors render as plain text.
func WithTemplateRenderer(r TemplateRenderer) StackOption {
	return func(s *Stack) error {
		s.renderer = r
		return nil
	}
}

// WithStackLogger sets the logger used by the stack.
func WithStackLogger(l *slog.Logger) StackOption {
	return func(s *Stack) error {
		s.log = l
		return nil
	}
}

// WithSystemStages installs system stages by position, typically the result
// of DefaultStages.
func WithSystemStages(stages map[Position]Stage) StackOption {
	return func(s *Stack) error {
		for pos, stage := range stages {
			s.setSystem(pos, stage)
		}
		return nil
	}
}

// NewStack returns a Stack routing to router.
func NewStack(router http.Handler, opts ...StackOption) *Stack {
	s := &Stack{
		router:   router,
		system:   map[Position]Stage{},
		handlers: map[int]http.Handler{},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			GetLogger().Error("failed to apply stack option", "error", err)
		}
	}
	if s.log == nil {
		s.log = GetLogger()
	}
	return s
}

// AddUserMiddleware appends a user stage. The compiled stack is invalidated.
func (s *Stack) AddUserMiddleware(name string, wrap func(http.Handler) http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = append(s.user, Stage{Name: name, Wrap: wrap})
	s.built = nil
}

// InsertUserMiddleware inserts a user stage at a numeric position in the user
// block, clamped to its bounds. The compiled stack is invalidated.
func (s *Stack) InsertUserMiddleware(index int, name string, wrap func(http.Handler) http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 {
		index = 0
	}
	if index > len(s.user) {
		index = len(s.user)
	}
	s.user = append(s.user[:index], append([]Stage{{Name: name, Wrap: wrap}}, s.user[index:]...)...)
	s.built = nil
}

// AddSystemMiddleware overrides the system stage at the given position.
// Unknown positions append after CUSTOM. The compiled stack is invalidated.
func (s *Stack) AddSystemMiddleware(pos Position, stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setSystem(pos, stage)
	s.built = nil
}

func (s *Stack) setSystem(pos Position, stage Stage) {
	if pos < Security || pos > Custom {
		s.extra = append(s.extra, stage)
		return
	}
	s.system[pos] = stage
}

// HandleStatus registers an exception-mapping handler for an HTTP status.
// The compiled stack is invalidated.
func (s *Stack) HandleStatus(status int, h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[status] = h
	s.built = nil
}

// Invalidate drops the compiled stack so the next request rebuilds it.
func (s *Stack) Invalidate() {
	s.mu.Lock()
	s.built = nil
	s.mu.Unlock()
}

// InvalidatePattern invalidates the compiled stack when a cache
// invalidation touches the gather namespace. Other patterns are ignored.
func (s *Stack) InvalidatePattern(pattern string) {
	if strings.HasPrefix(pattern, "gather:") {
		s.log.Debug("invalidating compiled middleware stack", "pattern", pattern)
		s.Invalidate()
	}
}

// Build compiles the pipeline, outermost to innermost: error handler, user
// stages in insertion order, system stages in position order, exception
// mapper, router. The result is cached until the next add or override.
func (s *Stack) Build() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.built != nil {
		return s.built
	}

	stages := s.orderedStages()

	h := s.router
	h = s.exceptionStage(h)
	for i := len(stages) - 1; i >= 0; i-- {
		h = stages[i].Wrap(h)
	}
	h = s.serverErrorStage(h)

	names := make([]string, 0, len(stages)+3)
	names = append(names, stageServerError)
	for _, st := range stages {
		names = append(names, st.Name)
	}
	names = append(names, stageExceptionMapper, stageRouter)

	s.built = h
	s.names = names
	s.log.Debug("built middleware stack", "stages", len(names))
	return h
}

// orderedStages returns the user block followed by system positions 0..6 and
// any appended extras.
func (s *Stack) orderedStages() []Stage {
	stages := make([]Stage, 0, len(s.user)+len(s.system)+len(s.extra))
	stages = append(stages, s.user...)
	for pos := Security; pos <= Custom; pos++ {
		if stage, ok := s.system[pos]; ok {
			stages = append(stages, stage)
		}
	}
	stages = append(stages, s.extra...)
	return stages
}

// Names returns the assembled stage-name sequence, outermost first, ending
// with the router. Builds the stack if needed.
func (s *Stack) Names() []string {
	s.Build()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// ServeHTTP serves through the compiled pipeline, rebuilding it when
// invalidated.
func (s *Stack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Build().ServeHTTP(w, r)
}
