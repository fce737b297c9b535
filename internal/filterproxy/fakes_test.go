package filterproxy_test

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angeloszaimis/filter-proxy/internal/filterproxy"
	"github.com/angeloszaimis/filter-proxy/internal/registry"
)

// trace records the order in which collaborators are called.
type trace struct {
	mutex  sync.Mutex
	events []string
}

func (t *trace) add(event string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.events = append(t.events, event)
}

func (t *trace) list() []string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return append([]string(nil), t.events...)
}

type fakeFilter struct {
	trace *trace

	inits    atomic.Int32
	calls    atomic.Int32
	destroys atomic.Int32

	mutex   sync.Mutex
	lastCfg filterproxy.Config

	initErr error
	doErr   error
	// block, when set, holds DoFilter until it is closed.
	block   chan struct{}
	started chan struct{}
}

func (f *fakeFilter) Init(cfg filterproxy.Config) error {
	f.inits.Add(1)
	f.mutex.Lock()
	f.lastCfg = cfg
	f.mutex.Unlock()
	if f.trace != nil {
		f.trace.add("init")
	}
	return f.initErr
}

func (f *fakeFilter) DoFilter(w http.ResponseWriter, r *http.Request, next http.Handler) error {
	f.calls.Add(1)
	if f.trace != nil {
		f.trace.add("filter")
	}
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.doErr != nil {
		return f.doErr
	}
	w.Header().Add("X-Filtered", "yes")
	next.ServeHTTP(w, r)
	return nil
}

func (f *fakeFilter) Destroy() {
	f.destroys.Add(1)
}

func (f *fakeFilter) config() filterproxy.Config {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.lastCfg
}

// countingLocator hands out a container built by build on every Locate call
// and counts the calls.
type countingLocator struct {
	trace *trace
	build func() *registry.Container
	delay time.Duration
	err   error

	locates atomic.Int32
}

func (l *countingLocator) Locate(r *http.Request) (filterproxy.Registry, error) {
	l.locates.Add(1)
	if l.trace != nil {
		l.trace.add("locate")
	}
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.build(), nil
}

// fixedLocator always returns the same container.
func fixedLocator(t *trace, c *registry.Container) *countingLocator {
	return &countingLocator{trace: t, build: func() *registry.Container { return c }}
}

var errBoom = errors.New("boom")

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
})
