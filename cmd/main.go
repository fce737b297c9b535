package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"sync/atomic"
	"syscall"

	"github.com/angeloszaimis/filter-proxy/config"
	"github.com/angeloszaimis/filter-proxy/internal/filterproxy"
	"github.com/angeloszaimis/filter-proxy/internal/filters"
	"github.com/angeloszaimis/filter-proxy/internal/handler"
	"github.com/angeloszaimis/filter-proxy/internal/httpserver"
	"github.com/angeloszaimis/filter-proxy/internal/metrics"
	"github.com/angeloszaimis/filter-proxy/internal/registry"
	"github.com/angeloszaimis/filter-proxy/pkg/logger"
)

const (
	requestIDKey    = "request-id"
	counterKey      = "counter"
	sessionStampKey = "session-stamp"
	requestStampKey = "stamp"
)

// application holds everything the router needs.
type application struct {
	scopes    *registry.Scopes
	sessions  *registry.Sessions
	types     *registry.Types
	counter   *filters.Counter
	chain     *handler.Chain
	collector *metrics.Collector
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		AddSource:   true,
		Environment: cfg.Server.Environment,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var collector *metrics.Collector
	collectorCtx, stopCollector := context.WithCancel(context.Background())
	defer stopCollector()
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.BufferSize, log)
		collector.Start(collectorCtx)
	}

	app, err := newApplication(cfg, log, collector)
	if err != nil {
		log.Error("Failed to build filter chain", slog.Any("err", err))
		os.Exit(1)
	}

	srv, err := httpserver.New(httpserver.Config{
		Address:         cfg.Server.Address,
		ReadTimeout:     config.Duration(cfg.Server.ReadTimeout),
		WriteTimeout:    config.Duration(cfg.Server.WriteTimeout),
		IdleTimeout:     config.Duration(cfg.Server.IdleTimeout),
		ShutdownTimeout: config.Duration(cfg.Server.ShutdownTimeout),
	}, setupRouter(app, cfg.Metrics, log))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Filter proxy started",
		slog.String("addr", cfg.Server.Address),
		slog.Int("filters", len(app.chain.Mappings())))

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting filter proxy", slog.Any("err", err))
			exitCode = 1
		}
	}

	app.chain.Destroy()
	stopCollector()

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// newApplication builds the registry scopes and one proxy per configured
// filter, in declaration order.
func newApplication(cfg *config.Config, log *slog.Logger, collector *metrics.Collector) (*application, error) {
	app := &application{
		counter:   filters.NewCounter(),
		collector: collector,
	}

	scopes, sessions, err := buildScopes(cfg.Session, app.counter, log)
	if err != nil {
		return nil, err
	}
	app.scopes = scopes
	app.sessions = sessions

	types, err := buildTypes()
	if err != nil {
		return nil, err
	}
	app.types = types

	mappings, err := buildProxies(cfg.Filters, scopes, types, log, collector)
	if err != nil {
		return nil, err
	}

	chain, err := handler.NewChain(log, http.HandlerFunc(echo), mappings...)
	if err != nil {
		return nil, err
	}
	app.chain = chain

	return app, nil
}

// buildScopes registers the shared filters in the application container.
// Every session gets its own stamp and every request a fresh one.
func buildScopes(cfg config.SessionConfig, counter *filters.Counter, log *slog.Logger) (*registry.Scopes, *registry.Sessions, error) {
	app := registry.NewContainer(nil)
	if err := app.Register(requestIDKey, filters.NewRequestID()); err != nil {
		return nil, nil, err
	}
	if err := app.Register(counterKey, counter); err != nil {
		return nil, nil, err
	}

	var sessionSerial, requestSerial atomic.Int64

	sessions := registry.NewSessions(cfg.CookieName,
		func(c *registry.Container) error {
			return c.Register(sessionStampKey, filters.NewStamp("session", sessionSerial.Add(1)))
		},
		registry.WithIdleTimeout(config.Duration(cfg.IdleTimeout)),
		registry.WithMaxSessions(cfg.MaxSessions),
	)

	scopes := registry.NewScopes(app,
		registry.WithSessions(sessions),
		registry.WithRequestComposer(func(c *registry.Container) error {
			return c.Register(requestStampKey, filters.NewStamp("request", requestSerial.Add(1)))
		}),
		registry.WithScopeLogger(log),
	)

	return scopes, sessions, nil
}

// buildTypes returns the names usable as delegate-class.
func buildTypes() (*registry.Types, error) {
	types := registry.NewTypes()

	known := map[string]reflect.Type{
		"Stamp":     reflect.TypeFor[*filters.Stamp](),
		"Counter":   reflect.TypeFor[*filters.Counter](),
		"RequestID": reflect.TypeFor[*filters.RequestID](),
		"Filter":    reflect.TypeFor[filterproxy.Filter](),
	}
	for name, t := range known {
		if err := types.Register(name, t); err != nil {
			return nil, err
		}
	}

	return types, nil
}

func buildProxies(
	filterConfigs []config.FilterConfig,
	scopes *registry.Scopes,
	types *registry.Types,
	log *slog.Logger,
	collector *metrics.Collector,
) ([]handler.Mapping, error) {
	locator := filterproxy.LocatorFunc(func(r *http.Request) (filterproxy.Registry, error) {
		c, err := scopes.FindContainer(r)
		if err != nil {
			return nil, err
		}
		return c, nil
	})

	opts := []filterproxy.Option{filterproxy.WithLogger(log)}
	if collector != nil {
		opts = append(opts, filterproxy.WithCollector(collector))
	}

	mappings := make([]handler.Mapping, 0, len(filterConfigs))
	for _, fc := range filterConfigs {
		params, err := fc.Params()
		if err != nil {
			return nil, err
		}

		proxy, err := filterproxy.New(filterproxy.Config{Name: fc.Name, Params: params}, locator, types, opts...)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", fc.Name, err)
		}

		mappings = append(mappings, handler.Mapping{Pattern: fc.Path, Proxy: proxy})
	}

	return mappings, nil
}

// echo ends the chain by reporting what the filters left on the request.
func echo(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
	}
	if id, ok := filters.RequestIDFromContext(r.Context()); ok {
		body["request_id"] = id
	}
	if stamps := w.Header().Values(filters.StampHeader); len(stamps) > 0 {
		body["filtered_by"] = stamps
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
