package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/opscart/k8s-gap-auditor/pkg/auditor"
	"github.com/opscart/k8s-gap-auditor/pkg/cache"
	"github.com/opscart/k8s-gap-auditor/pkg/cluster"
	"github.com/opscart/k8s-gap-auditor/pkg/config"
	"github.com/opscart/k8s-gap-auditor/pkg/datasource"
	"github.com/opscart/k8s-gap-auditor/pkg/recommender"
	"github.com/opscart/k8s-gap-auditor/pkg/server"
	"github.com/opscart/k8s-gap-auditor/pkg/storage"
	"github.com/opscart/k8s-gap-auditor/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app holds everything built from the configuration for one process
type app struct {
	cfg      *config.Config
	log      logr.Logger
	registry *prometheus.Registry
	cluster  *cluster.Client
	source   *datasource.PrometheusSource
	store    storage.Store
	auditor  *auditor.Auditor
}

func newApp(ctx context.Context, cfg *config.Config, log logr.Logger) (*app, error) {
	restConfig, err := cluster.NewConfig(cfg.Kubeconfig)
	if err != nil {
		return nil, err
	}
	client, err := cluster.NewForConfig(restConfig, log.WithName("cluster"))
	if err != nil {
		return nil, err
	}

	source, err := datasource.NewPrometheusSource(datasource.Config{PrometheusURL: cfg.PrometheusURL}, log.WithName("prometheus"))
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.New(registry)

	a := &app{
		cfg:      cfg,
		log:      log,
		registry: registry,
		cluster:  client,
		source:   source,
	}

	var engine auditor.RecommendationEngine = recommender.NewSimpleStrategy(source, cfg.RecommenderConfig(), log.WithName("recommender"))
	switch {
	case cfg.StorageEnabled:
		store, err := storage.NewPostgresStore(ctx, storage.Config{URL: cfg.DatabaseURL, TTL: cfg.CacheTTL})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.store = store
		engine = recommender.NewCachingEngine(engine, store, metrics, log.WithName("cache"))
		log.Info("Caching recommendations in PostgreSQL", "ttl", cfg.CacheTTL.String())
	case cfg.CacheTTL > 0:
		engine = recommender.NewCachingEngine(engine, cache.NewMemoryCache(cfg.CacheTTL), metrics, log.WithName("cache"))
		log.V(1).Info("Caching recommendations in memory", "ttl", cfg.CacheTTL.String())
	}

	a.auditor = auditor.New(client, engine, cfg.AuditorOptions()).
		WithLogger(log.WithName("auditor")).
		WithMetrics(metrics)
	return a, nil
}

// checkConnectivity logs what the process is connected to. An unreachable
// Prometheus is reported but not fatal; listing commands do not need it.
func (a *app) checkConnectivity(ctx context.Context) error {
	version, err := a.cluster.ServerVersion(ctx)
	if err != nil {
		return err
	}
	a.log.Info("Connected to cluster", "version", version)

	if a.source.IsAvailable(ctx) {
		a.log.Info("Using Prometheus", "url", a.cfg.PrometheusURL, "window", a.cfg.TimeWindow)
	} else {
		a.log.Info("Prometheus not reachable, recommendations will fail", "url", a.cfg.PrometheusURL)
	}
	return nil
}

func (a *app) readinessChecks() map[string]server.ReadinessCheck {
	checks := map[string]server.ReadinessCheck{
		"kubernetes": func(ctx context.Context) error {
			_, err := a.cluster.ServerVersion(ctx)
			return err
		},
		"prometheus": func(ctx context.Context) error {
			if !a.source.IsAvailable(ctx) {
				return errors.New("prometheus is not reachable")
			}
			return nil
		},
	}
	if a.store != nil {
		checks["storage"] = a.store.Ping
	}
	return checks
}

// purgeExpired removes expired cache rows until ctx is done
func (a *app) purgeExpired(ctx context.Context) {
	if a.store == nil {
		return
	}
	ticker := time.NewTicker(a.cfg.CacheTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.store.Purge(ctx)
			if err != nil {
				a.log.Error(err, "Purging expired recommendations failed")
				continue
			}
			a.log.V(1).Info("Purged expired recommendations", "rows", n)
		}
	}
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error(err, "Closing storage failed")
		}
	}
}
