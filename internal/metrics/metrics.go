package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"lifesim/internal/advisory"
	"lifesim/internal/depreciation"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests and multiple binaries never
// collide on the global one.
type Collector struct {
	registry *prometheus.Registry

	depreciationRuns    *prometheus.CounterVec
	holdingsDepreciated prometheus.Counter
	holdingsFailed      prometheus.Counter
	depreciationTotal   prometheus.Counter

	advisoryMessages     *prometheus.CounterVec
	advisoryPlayerErrors prometheus.Counter
	advisoryPlayers      prometheus.Gauge

	jobDuration *prometheus.HistogramVec
	jobRuns     *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	logger *slog.Logger
}

func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		depreciationRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lifesim_depreciation_runs_total",
			Help: "Monthly depreciation runs by outcome",
		}, []string{"outcome"}),
		holdingsDepreciated: factory.NewCounter(prometheus.CounterOpts{
			Name: "lifesim_depreciation_holdings_updated_total",
			Help: "Holdings whose value was reduced",
		}),
		holdingsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "lifesim_depreciation_holdings_failed_total",
			Help: "Holdings rolled back during a depreciation run",
		}),
		depreciationTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "lifesim_depreciation_amount_total",
			Help: "Sum of value removed from holdings, in game dollars",
		}),
		advisoryMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lifesim_advisory_messages_total",
			Help: "Mentor messages delivered by the daily run",
		}, []string{"persona"}),
		advisoryPlayerErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "lifesim_advisory_player_errors_total",
			Help: "Players the daily run failed to advise",
		}),
		advisoryPlayers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lifesim_advisory_players_last_run",
			Help: "Players visited by the most recent daily run",
		}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifesim_job_duration_seconds",
			Help:    "Scheduled job duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lifesim_job_runs_total",
			Help: "Scheduled job runs by outcome",
		}, []string{"job", "outcome"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lifesim_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifesim_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		logger: logger,
	}
}

func (c *Collector) RecordDepreciation(res depreciation.RunResult, err error) {
	if err != nil {
		c.depreciationRuns.WithLabelValues("error").Inc()
		return
	}
	c.depreciationRuns.WithLabelValues("ok").Inc()
	c.holdingsDepreciated.Add(float64(res.UpdatedCount))
	c.holdingsFailed.Add(float64(res.Failed))
	total, _ := res.TotalDepreciation.Float64()
	c.depreciationTotal.Add(total)
}

func (c *Collector) RecordAdvisory(res advisory.DailyResult) {
	for persona, n := range res.ByPersona {
		c.advisoryMessages.WithLabelValues(string(persona)).Add(float64(n))
	}
	c.advisoryPlayerErrors.Add(float64(res.Errors))
	c.advisoryPlayers.Set(float64(res.UsersProcessed))
}

func (c *Collector) ObserveJob(name string, took time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.jobRuns.WithLabelValues(name, outcome).Inc()
	c.jobDuration.WithLabelValues(name).Observe(took.Seconds())
}

// Middleware counts requests by their chi route pattern, so path parameters
// do not explode label cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// StartServer serves /metrics on addr in the background.
func (c *Collector) StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		c.logger.Info("metrics server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics server failed", "err", err)
		}
	}()
	return server
}
