package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/angeloszaimis/filter-proxy/config"
	"github.com/angeloszaimis/filter-proxy/internal/filters"
	"github.com/angeloszaimis/filter-proxy/internal/metrics"
)

type filterView struct {
	Name           string `json:"name"`
	Pattern        string `json:"pattern"`
	InitType       string `json:"init_type"`
	LookupOnlyOnce bool   `json:"lookup_only_once"`
	DelegateClass  string `json:"delegate_class,omitempty"`
	DelegateKey    string `json:"delegate_key,omitempty"`
	Resolved       bool   `json:"resolved"`
}

type debugView struct {
	Filters  []filterView         `json:"filters"`
	Counter  filters.CounterStats `json:"counter"`
	Sessions int                  `json:"sessions"`
	Metrics  *metrics.Snapshot    `json:"metrics,omitempty"`
}

func setupRouter(app *application, metricsCfg config.MetricsConfig, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if metricsCfg.Enabled && app.collector != nil {
		r.Method(http.MethodGet, metricsCfg.Path, app.collector.Handler())
	}

	r.Get("/debug/filters", debugFilters(app, log))

	r.Group(func(r chi.Router) {
		r.Use(app.scopes.Middleware)
		r.Handle("/*", app.chain)
	})

	return r
}

func debugFilters(app *application, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := debugView{
			Counter:  app.counter.Stats(),
			Sessions: app.sessions.Len(),
		}

		for _, m := range app.chain.Mappings() {
			opts := m.Proxy.Options()
			view.Filters = append(view.Filters, filterView{
				Name:           m.Proxy.Name(),
				Pattern:        m.Pattern,
				InitType:       opts.InitMode.String(),
				LookupOnlyOnce: opts.LookupOnlyOnce,
				DelegateClass:  opts.DelegateType,
				DelegateKey:    opts.DelegateKey,
				Resolved:       m.Proxy.Delegate() != nil,
			})
		}

		if app.collector != nil {
			snap := app.collector.Snapshot()
			view.Metrics = &snap
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(view); err != nil {
			log.Error("Failed to encode debug view", slog.Any("err", err))
		}
	}
}
