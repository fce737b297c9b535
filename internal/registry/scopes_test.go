package registry_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/filter-proxy/internal/registry"
)

const cookieName = "TEST_SESSION"

var _ = Describe("Scopes", func() {
	var app *registry.Container

	BeforeEach(func() {
		app = registry.NewContainer(nil)
		Expect(app.Register("scope", "application")).To(Succeed())
	})

	// capture runs the middleware and returns the container found downstream.
	capture := func(s *registry.Scopes, req *http.Request) (*registry.Container, *httptest.ResponseRecorder) {
		var found *registry.Container
		w := httptest.NewRecorder()
		s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var err error
			found, err = s.FindContainer(r)
			Expect(err).NotTo(HaveOccurred())
		})).ServeHTTP(w, req)
		return found, w
	}

	Describe("FindContainer", func() {
		It("should return the application container without other scopes", func() {
			s := registry.NewScopes(app)
			c, _ := capture(s, httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(c).To(BeIdenticalTo(app))
		})

		It("should fail when no scope holds a container", func() {
			s := registry.NewScopes(nil)
			c, err := s.FindContainer(httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(err).To(MatchError(registry.ErrNoContainer))
			Expect(c).To(BeNil())
		})

		It("should prefer a request container carried by the context", func() {
			s := registry.NewScopes(app)
			own := registry.NewContainer(app)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(registry.WithRequestContainer(req.Context(), own))

			c, err := s.FindContainer(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(c).To(BeIdenticalTo(own))
		})
	})

	Describe("request scope", func() {
		It("should compose a fresh container per request, nested in the application", func() {
			s := registry.NewScopes(app, registry.WithRequestComposer(func(c *registry.Container) error {
				return c.Register("scope", "request")
			}))

			first, _ := capture(s, httptest.NewRequest(http.MethodGet, "/", nil))
			second, _ := capture(s, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(first).NotTo(BeIdenticalTo(second))
			Expect(first.Parent()).To(BeIdenticalTo(app))
			v, _ := first.Component("scope")
			Expect(v).To(Equal("request"))
		})

		It("should fail the request when composition fails", func() {
			s := registry.NewScopes(app, registry.WithRequestComposer(func(c *registry.Container) error {
				return errors.New("boom")
			}))

			called := false
			w := httptest.NewRecorder()
			s.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				called = true
			})).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(called).To(BeFalse())
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("session scope", func() {
		var (
			sessions *registry.Sessions
			s        *registry.Scopes
			composed int
		)

		BeforeEach(func() {
			composed = 0
			sessions = registry.NewSessions(cookieName, func(c *registry.Container) error {
				composed++
				return c.Register("scope", "session")
			})
			s = registry.NewScopes(app, registry.WithSessions(sessions))
		})

		It("should create a session and set its cookie", func() {
			c, w := capture(s, httptest.NewRequest(http.MethodGet, "/", nil))

			Expect(c.Parent()).To(BeIdenticalTo(app))
			v, _ := c.Component("scope")
			Expect(v).To(Equal("session"))

			cookies := w.Result().Cookies()
			Expect(cookies).To(HaveLen(1))
			Expect(cookies[0].Name).To(Equal(cookieName))
			Expect(sessions.Len()).To(Equal(1))
		})

		It("should reuse the session for a returning cookie", func() {
			first, w := capture(s, httptest.NewRequest(http.MethodGet, "/", nil))
			cookie := w.Result().Cookies()[0]

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(cookie)
			second, w2 := capture(s, req)

			Expect(second).To(BeIdenticalTo(first))
			Expect(w2.Result().Cookies()).To(BeEmpty())
			Expect(composed).To(Equal(1))
		})

		It("should start a new session for an unknown or malformed cookie", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: cookieName, Value: "not-an-id"})
			_, w := capture(s, req)

			Expect(w.Result().Cookies()).To(HaveLen(1))
			Expect(composed).To(Equal(1))
		})

		It("should start over after invalidation", func() {
			_, w := capture(s, httptest.NewRequest(http.MethodGet, "/", nil))
			cookie := w.Result().Cookies()[0]
			sessions.Invalidate(cookie.Value)
			Expect(sessions.Len()).To(BeZero())

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(cookie)
			_, w2 := capture(s, req)

			Expect(w2.Result().Cookies()).To(HaveLen(1))
			Expect(composed).To(Equal(2))
		})

		It("should nest the request scope inside the session", func() {
			s = registry.NewScopes(app,
				registry.WithSessions(sessions),
				registry.WithRequestComposer(func(*registry.Container) error { return nil }))

			c, _ := capture(s, httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(c.Parent().Parent()).To(BeIdenticalTo(app))
			v, _ := c.Component("scope")
			Expect(v).To(Equal("session"))
		})
	})
	Describe("session expiry", func() {
		var (
			clock    *fakeClock
			sessions *registry.Sessions
			s        *registry.Scopes
		)

		BeforeEach(func() {
			clock = &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
			sessions = registry.NewSessions(cookieName, nil,
				registry.WithIdleTimeout(time.Minute),
				registry.WithMaxSessions(100))
			sessions.SetClock(clock.Now)
			s = registry.NewScopes(app, registry.WithSessions(sessions))
		})

		newSession := func() *http.Cookie {
			_, w := capture(s, httptest.NewRequest(http.MethodGet, "/", nil))
			return w.Result().Cookies()[0]
		}

		returning := func(cookie *http.Cookie) (*registry.Container, *httptest.ResponseRecorder) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(cookie)
			return capture(s, req)
		}

		It("should bound the store for clients that drop cookies", func() {
			for range 1000 {
				newSession()
			}

			Expect(sessions.Len()).To(Equal(100))
		})

		It("should sweep idle sessions when new ones are created", func() {
			for range 50 {
				newSession()
			}

			clock.Advance(2 * time.Minute)
			newSession()

			Expect(sessions.Len()).To(Equal(1))
		})

		It("should expire a session after the idle timeout", func() {
			cookie := newSession()
			clock.Advance(time.Minute)

			_, ok := sessions.Get(cookie.Value)
			Expect(ok).To(BeFalse())

			_, w := returning(cookie)
			Expect(w.Result().Cookies()).To(HaveLen(1))
		})

		It("should keep a session alive while it is used", func() {
			cookie := newSession()
			first, _ := sessions.Get(cookie.Value)

			for range 5 {
				clock.Advance(40 * time.Second)
				c, w := returning(cookie)
				Expect(c).To(BeIdenticalTo(first))
				Expect(w.Result().Cookies()).To(BeEmpty())
			}
		})

		It("should evict the least recently seen session when full", func() {
			oldest := newSession()
			clock.Advance(time.Second)
			kept := newSession()
			for range 98 {
				newSession()
			}
			clock.Advance(time.Second)
			_, ok := sessions.Get(kept.Value)
			Expect(ok).To(BeTrue())

			newSession()

			_, ok = sessions.Get(oldest.Value)
			Expect(ok).To(BeFalse())
			_, ok = sessions.Get(kept.Value)
			Expect(ok).To(BeTrue())
			Expect(sessions.Len()).To(Equal(100))
		})

		It("should set the cookie max age from the idle timeout", func() {
			Expect(newSession().MaxAge).To(Equal(60))
		})
	})
})

type fakeClock struct {
	mutex sync.Mutex
	now   time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}
