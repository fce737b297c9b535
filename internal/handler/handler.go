package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/angeloszaimis/filter-proxy/internal/filterproxy"
)

// Mapping binds a proxy to a URL pattern. A pattern ending in "/*" matches
// every path under its prefix; any other pattern matches one exact path.
type Mapping struct {
	Pattern string
	Proxy   *filterproxy.Proxy
}

func (m Mapping) matches(path string) bool {
	if prefix, ok := strings.CutSuffix(m.Pattern, "/*"); ok {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return path == m.Pattern
}

// Chain runs the proxies whose pattern matches a request, in declaration
// order, in front of a terminal handler.
type Chain struct {
	logger   *slog.Logger
	mappings []Mapping
	terminal http.Handler
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

var errInvalidPattern = errors.New("pattern must start with /")

func NewChain(logger *slog.Logger, terminal http.Handler, mappings ...Mapping) (*Chain, error) {
	for _, m := range mappings {
		if m.Proxy == nil {
			return nil, fmt.Errorf("handler: mapping %q has no proxy", m.Pattern)
		}
		if !strings.HasPrefix(m.Pattern, "/") {
			return nil, fmt.Errorf("handler: mapping %q for %s: %w", m.Pattern, m.Proxy.Name(), errInvalidPattern)
		}
	}

	if terminal == nil {
		terminal = http.NotFoundHandler()
	}

	return &Chain{
		logger:   logger,
		mappings: mappings,
		terminal: terminal,
	}, nil
}

func (c *Chain) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)

	c.logger.Debug("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("host", r.Host),
		slog.String("user_agent", r.UserAgent()))

	var matched []Mapping
	for _, m := range c.mappings {
		if m.matches(r.URL.Path) {
			matched = append(matched, m)
		}
	}

	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	c.link(matched, clientIP).ServeHTTP(wrapped, r)

	c.logger.Debug("Completed request",
		slog.String("path", r.URL.Path),
		slog.Int("filters", len(matched)),
		slog.Int("status", wrapped.statusCode))
}

// link builds the continuation for matched[0], whose next is matched[1] and
// so on down to the terminal handler.
func (c *Chain) link(matched []Mapping, clientIP string) http.Handler {
	if len(matched) == 0 {
		return c.terminal
	}

	proxy := matched[0].Proxy
	next := c.link(matched[1:], clientIP)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := proxy.Handle(w, r, next); err != nil {
			c.fail(w, r, proxy.Name(), clientIP, err)
		}
	})
}

func (c *Chain) fail(w http.ResponseWriter, r *http.Request, filter, clientIP string, err error) {
	c.logger.Error("Filter failed",
		slog.String("filter", filter),
		slog.String("client", clientIP),
		slog.String("path", r.URL.Path),
		slog.String("reason", filterproxy.Reason(err)),
		slog.Any("err", err))

	if rec, ok := w.(*statusRecorder); ok && rec.wroteHeader {
		return
	}

	code := filterproxy.StatusCode(err)
	http.Error(w, http.StatusText(code), code)
}

// Destroy destroys every proxy, last mapped first.
func (c *Chain) Destroy() {
	for i := len(c.mappings) - 1; i >= 0; i-- {
		c.mappings[i].Proxy.Destroy()
	}
}

// Mappings returns the chain's mappings in declaration order.
func (c *Chain) Mappings() []Mapping {
	return append([]Mapping(nil), c.mappings...)
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
