package registry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rs/xid"
)

var ErrNoContainer = errors.New("registry: no container found in request, session or application scope")

// Composer populates a freshly created scope container.
type Composer func(c *Container) error

type requestKey struct{}
type sessionKey struct{}

// WithRequestContainer returns a context carrying c as the request scope.
func WithRequestContainer(ctx context.Context, c *Container) context.Context {
	return context.WithValue(ctx, requestKey{}, c)
}

// WithSessionContainer returns a context carrying c as the session scope.
func WithSessionContainer(ctx context.Context, c *Container) context.Context {
	return context.WithValue(ctx, sessionKey{}, c)
}

// RequestContainer returns the request-scope container carried by ctx.
func RequestContainer(ctx context.Context) (*Container, bool) {
	c, ok := ctx.Value(requestKey{}).(*Container)
	return c, ok && c != nil
}

// SessionContainer returns the session-scope container carried by ctx.
func SessionContainer(ctx context.Context) (*Container, bool) {
	c, ok := ctx.Value(sessionKey{}).(*Container)
	return c, ok && c != nil
}

// Scopes builds the application, session and request containers for each
// request and finds the innermost one again later in the chain.
type Scopes struct {
	app            *Container
	sessions       *Sessions
	composeRequest Composer
	logger         *slog.Logger
}

type ScopeOption func(*Scopes)

// WithSessions enables a cookie-identified session scope.
func WithSessions(sessions *Sessions) ScopeOption {
	return func(s *Scopes) {
		s.sessions = sessions
	}
}

// WithRequestComposer enables a request scope populated by compose.
func WithRequestComposer(compose Composer) ScopeOption {
	return func(s *Scopes) {
		s.composeRequest = compose
	}
}

func WithScopeLogger(logger *slog.Logger) ScopeOption {
	return func(s *Scopes) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScopes returns scopes rooted at app. app may be nil when every request
// carries its own container.
func NewScopes(app *Container, opts ...ScopeOption) *Scopes {
	s := &Scopes{
		app:    app,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Application returns the application-scope container.
func (s *Scopes) Application() *Container {
	return s.app
}

// Middleware attaches the session and request containers to each request.
func (s *Scopes) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		parent := s.app

		if s.sessions != nil {
			session, err := s.sessions.containerFor(w, r, s.app)
			if err != nil {
				s.logger.Error("Failed to compose session scope", slog.Any("err", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			ctx = WithSessionContainer(ctx, session)
			parent = session
		}

		if s.composeRequest != nil {
			request := NewContainer(parent)
			if err := s.composeRequest(request); err != nil {
				s.logger.Error("Failed to compose request scope", slog.Any("err", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			ctx = WithRequestContainer(ctx, request)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FindContainer returns the request container, else the session container,
// else the application container.
func (s *Scopes) FindContainer(r *http.Request) (*Container, error) {
	if c, ok := RequestContainer(r.Context()); ok {
		return c, nil
	}
	if c, ok := SessionContainer(r.Context()); ok {
		return c, nil
	}
	if s.app != nil {
		return s.app, nil
	}
	return nil, ErrNoContainer
}

const (
	DefaultSessionIdleTimeout = 30 * time.Minute
	DefaultMaxSessions        = 10000
)

// Sessions keeps one container per session cookie. A session expires after
// idleTimeout without a request, and the store never holds more than
// maxSessions; the least recently seen session is dropped first.
type Sessions struct {
	cookieName  string
	compose     Composer
	idleTimeout time.Duration
	maxSessions int
	now         func() time.Time

	mutex     sync.Mutex
	sessions  map[string]*session
	lastSweep time.Time
}

type session struct {
	container *Container
	lastSeen  time.Time
}

type SessionOption func(*Sessions)

// WithIdleTimeout sets how long a session lives without requests.
func WithIdleTimeout(d time.Duration) SessionOption {
	return func(s *Sessions) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithMaxSessions caps the number of live sessions.
func WithMaxSessions(n int) SessionOption {
	return func(s *Sessions) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// NewSessions returns a session store. compose may be nil.
func NewSessions(cookieName string, compose Composer, opts ...SessionOption) *Sessions {
	s := &Sessions{
		cookieName:  cookieName,
		compose:     compose,
		idleTimeout: DefaultSessionIdleTimeout,
		maxSessions: DefaultMaxSessions,
		now:         time.Now,
		sessions:    make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sessions) containerFor(w http.ResponseWriter, r *http.Request, parent *Container) (*Container, error) {
	if cookie, err := r.Cookie(s.cookieName); err == nil {
		if c, ok := s.Get(cookie.Value); ok {
			return c, nil
		}
	}

	c := NewContainer(parent)
	if s.compose != nil {
		if err := s.compose(c); err != nil {
			return nil, err
		}
	}

	id := xid.New().String()

	s.mutex.Lock()
	now := s.now()
	s.sweep(now)
	if len(s.sessions) >= s.maxSessions {
		s.evictOldest()
	}
	s.sessions[id] = &session{container: c, lastSeen: now}
	s.mutex.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.idleTimeout / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return c, nil
}

// Get returns the container of session id and marks the session as seen.
// An expired session is dropped and not returned.
func (s *Sessions) Get(id string) (*Container, bool) {
	if _, err := xid.FromString(id); err != nil {
		return nil, false
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}

	now := s.now()
	if s.expired(sess, now) {
		delete(s.sessions, id)
		return nil, false
	}

	sess.lastSeen = now
	return sess.container, true
}

// Invalidate drops the container of session id.
func (s *Sessions) Invalidate(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of sessions held, expired ones included until the
// next sweep.
func (s *Sessions) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.sessions)
}

func (s *Sessions) expired(sess *session, now time.Time) bool {
	return now.Sub(sess.lastSeen) >= s.idleTimeout
}

// sweep drops expired sessions, at most once per half idle timeout. It must
// be called with the mutex held.
func (s *Sessions) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.idleTimeout/2 {
		return
	}
	s.lastSweep = now

	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
		}
	}
}

// evictOldest must be called with the mutex held.
func (s *Sessions) evictOldest() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, sess := range s.sessions {
		if oldestID == "" || sess.lastSeen.Before(oldest) {
			oldestID, oldest = id, sess.lastSeen
		}
	}
	delete(s.sessions, oldestID)
}
