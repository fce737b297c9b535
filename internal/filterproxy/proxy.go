package filterproxy

import (
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/angeloszaimis/filter-proxy/internal/metrics"
)

// Filter is the capability a delegate must provide.
type Filter interface {
	// Init performs one-time setup with the proxy's Config.
	Init(cfg Config) error
	// DoFilter processes the request and calls next to continue the chain.
	DoFilter(w http.ResponseWriter, r *http.Request, next http.Handler) error
	// Destroy releases the filter's resources.
	Destroy()
}

// Registry resolves components by type or by key.
type Registry interface {
	ComponentOfType(t reflect.Type) (any, bool)
	Component(key string) (any, bool)
}

// Locator finds the registry that applies to a request.
type Locator interface {
	Locate(r *http.Request) (Registry, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(r *http.Request) (Registry, error)

func (f LocatorFunc) Locate(r *http.Request) (Registry, error) {
	return f(r)
}

// TypeResolver maps a delegate-class name to a Go type.
type TypeResolver interface {
	ResolveType(name string) (reflect.Type, error)
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithLogger sets the logger used for lookup and init events.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithCollector reports proxy events to a metrics collector.
func WithCollector(collector *metrics.Collector) Option {
	return func(p *Proxy) {
		p.metricsCollector = collector
	}
}

// Proxy forwards requests to a delegate Filter looked up in a Registry. When
// the lookup happens and when the delegate is initialized are governed by
// the proxy's Options.
//
// A Proxy is safe for concurrent use.
type Proxy struct {
	cfg              Config
	opts             Options
	locator          Locator
	types            TypeResolver
	logger           *slog.Logger
	metricsCollector *metrics.Collector

	// lifecycle is read-held by every Handle call and write-held by Destroy.
	lifecycle sync.RWMutex
	closed    bool

	// mutex covers check, lookup, store and context-mode init as one unit.
	mutex       sync.Mutex
	delegate    Filter
	initialized bool

	initMutex sync.Mutex
}

// New parses cfg and returns a proxy ready to serve. It fails with a
// *ConfigurationError when init-type is invalid. The registry is not
// consulted until the first request.
func New(cfg Config, locator Locator, types TypeResolver, opts ...Option) (*Proxy, error) {
	if locator == nil {
		return nil, ErrNoLocator
	}

	options, err := ParseOptions(cfg.Params)
	if err != nil {
		return nil, err
	}

	p := &Proxy{
		cfg:     cfg,
		opts:    options,
		locator: locator,
		types:   types,
		logger:  slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.logger = p.logger.With(slog.String("filter", cfg.Name))

	return p, nil
}

// Name returns the filter name the proxy was configured with.
func (p *Proxy) Name() string {
	return p.cfg.Name
}

// Options returns the parsed init parameters.
func (p *Proxy) Options() Options {
	return p.opts
}

// Delegate returns the currently stored delegate, or nil.
func (p *Proxy) Delegate() Filter {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.delegate
}

// Handle looks up and initializes the delegate as the options require, then
// forwards the request to it. The delegate's error is returned unchanged.
func (p *Proxy) Handle(w http.ResponseWriter, r *http.Request, next http.Handler) error {
	p.lifecycle.RLock()
	defer p.lifecycle.RUnlock()

	if p.closed {
		return p.fail(ErrClosed)
	}

	delegate, err := p.acquire(r)
	if err != nil {
		return p.fail(err)
	}

	if p.opts.InitMode == InitRequest {
		if err := p.initialize(delegate); err != nil {
			return p.fail(err)
		}
	}

	start := time.Now()
	err = delegate.DoFilter(w, r, next)

	p.emitEvent(metrics.Event{
		Type:      metrics.EventForwarded,
		Timestamp: time.Now(),
		Filter:    p.cfg.Name,
		Duration:  time.Since(start),
	})

	if err != nil {
		p.fail(err)
	}
	return err
}

// acquire returns the delegate for this request, looking it up if none is
// stored or if lookup-only-once is off.
func (p *Proxy) acquire(r *http.Request) (Filter, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.delegate != nil && p.opts.LookupOnlyOnce {
		return p.delegate, nil
	}

	delegate, err := p.lookup(r)
	if err != nil {
		return nil, err
	}

	p.delegate = delegate

	// Context-mode init gets exactly one attempt, right after the first
	// successful lookup. A failure fails this request only.
	if p.opts.InitMode == InitContext && !p.initialized {
		p.initialized = true
		if err := p.initialize(delegate); err != nil {
			return nil, err
		}
	}

	return delegate, nil
}

func (p *Proxy) lookup(r *http.Request) (Filter, error) {
	registry, err := p.locator.Locate(r)
	if err != nil {
		return nil, fmt.Errorf("filterproxy: %w for %s: %w", errLocate, p.cfg.Name, err)
	}

	var (
		component any
		found     bool
	)

	switch {
	case p.opts.HasDelegateType:
		t, err := p.resolveType(p.opts.DelegateType)
		if err != nil {
			return nil, &ClassLoadError{TypeName: p.opts.DelegateType, Err: err}
		}
		component, found = registry.ComponentOfType(t)
	case p.opts.HasDelegateKey:
		component, found = registry.Component(p.opts.DelegateKey)
	default:
		return nil, ErrMissingDelegateIdentifier
	}

	if !found || component == nil {
		return nil, &DelegateNotFoundError{TypeName: p.opts.DelegateType, Key: p.opts.DelegateKey}
	}

	filter, ok := component.(Filter)
	if !ok {
		return nil, &DelegateNotFoundError{
			TypeName: p.opts.DelegateType,
			Key:      p.opts.DelegateKey,
			Err:      fmt.Errorf("%w: got %T", ErrNotAFilter, component),
		}
	}

	p.logger.Debug("Looked up delegate filter",
		slog.String("type", fmt.Sprintf("%T", filter)))

	p.emitEvent(metrics.Event{
		Type:      metrics.EventResolved,
		Timestamp: time.Now(),
		Filter:    p.cfg.Name,
	})

	return filter, nil
}

func (p *Proxy) resolveType(name string) (reflect.Type, error) {
	if p.types == nil {
		return nil, errNoTypeResolver
	}
	return p.types.ResolveType(name)
}

func (p *Proxy) initialize(delegate Filter) error {
	if delegate == nil {
		return ErrIllegalState
	}

	p.initMutex.Lock()
	defer p.initMutex.Unlock()

	if err := delegate.Init(p.cfg); err != nil {
		return fmt.Errorf("filterproxy: %w for %s: %w", errInit, p.cfg.Name, err)
	}

	p.emitEvent(metrics.Event{
		Type:      metrics.EventInitialized,
		Timestamp: time.Now(),
		Filter:    p.cfg.Name,
	})

	return nil
}

// Destroy waits for in-flight requests, then releases the stored delegate.
// Later calls do nothing.
func (p *Proxy) Destroy() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	p.mutex.Lock()
	delegate := p.delegate
	p.delegate = nil
	p.mutex.Unlock()

	if delegate != nil {
		delegate.Destroy()
		p.logger.Debug("Destroyed delegate filter")
	}
}

func (p *Proxy) fail(err error) error {
	p.emitEvent(metrics.Event{
		Type:      metrics.EventFailed,
		Timestamp: time.Now(),
		Filter:    p.cfg.Name,
		Reason:    Reason(err),
	})
	return err
}

func (p *Proxy) emitEvent(event metrics.Event) {
	if p.metricsCollector == nil {
		return
	}

	select {
	case p.metricsCollector.EventChannel() <- event:
	default:
	}
}
