package filters

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/angeloszaimis/filter-proxy/internal/filterproxy"
)

const (
	DefaultRequestIDHeader = "X-Request-ID"

	// ParamRequestIDHeader overrides the header name at Init.
	ParamRequestIDHeader = "request-id-header"
)

type requestIDKey struct{}

// RequestID propagates the caller's request ID or assigns a new one, and
// makes it available to the rest of the chain through the request context.
type RequestID struct {
	mutex  sync.RWMutex
	header string
}

func NewRequestID() *RequestID {
	return &RequestID{header: DefaultRequestIDHeader}
}

func (f *RequestID) Init(cfg filterproxy.Config) error {
	if h, ok := cfg.Param(ParamRequestIDHeader); ok && h != "" {
		f.mutex.Lock()
		f.header = http.CanonicalHeaderKey(h)
		f.mutex.Unlock()
	}
	return nil
}

func (f *RequestID) DoFilter(w http.ResponseWriter, r *http.Request, next http.Handler) error {
	header := f.Header()

	id := r.Header.Get(header)
	if id == "" {
		id = uuid.NewString()
	}

	w.Header().Set(header, id)
	next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	return nil
}

func (f *RequestID) Destroy() {}

// Header returns the header name in use.
func (f *RequestID) Header() string {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.header
}

// RequestIDFromContext returns the ID set by a RequestID filter upstream.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}
