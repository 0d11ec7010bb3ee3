package observability

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
)

// Metrics is a small in-process registry scraped at /metrics. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	apiRequests  *CounterVec
	apiLatency   *HistogramVec
	apiInflight  *GaugeVec
	llmRequests  *CounterVec
	llmLatency   *HistogramVec
	relayStreams *CounterVec
	relayChunks  *CounterVec
	lifecycle    *CounterVec
	dbStats      *GaugeVec
	redisUp      *GaugeVec
	scrapeEvery  time.Duration
}

func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("tb_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"tb_api_request_duration_seconds",
			"API request latency in seconds by method/route.",
			[]string{"method", "route"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGaugeVec("tb_api_inflight_requests", "In-flight API requests.", nil),
		llmRequests: NewCounterVec("tb_llm_requests_total", "Text generation calls by model/mode/status.", []string{"model", "mode", "status"}),
		llmLatency: NewHistogramVec(
			"tb_llm_request_duration_seconds",
			"Text generation latency in seconds by model/mode.",
			[]string{"model", "mode"},
			[]float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		),
		relayStreams: NewCounterVec("tb_relay_streams_total", "Relay runs by outcome (done, error, disconnected).", []string{"outcome"}),
		relayChunks:  NewCounterVec("tb_relay_chunks_total", "Increments forwarded by the relay.", nil),
		lifecycle:    NewCounterVec("tb_curriculum_transitions_total", "Curriculum lifecycle transitions.", []string{"transition"}),
		dbStats:      NewGaugeVec("tb_db_pool", "database/sql pool stats.", []string{"stat"}),
		redisUp:      NewGaugeVec("tb_redis_up", "1 when the realtime bus answers PING.", nil),
		scrapeEvery:  15 * time.Second,
	}
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, strconv.Itoa(status))
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflight(delta float64) {
	if m == nil {
		return
	}
	m.apiInflight.Add(delta)
}

func (m *Metrics) ObserveLLM(model, mode, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(strings.TrimSpace(model), mode, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), strings.TrimSpace(model), mode)
	}
}

func (m *Metrics) ObserveRelay(outcome string, chunks int) {
	if m == nil {
		return
	}
	m.relayStreams.Inc(outcome)
	if chunks > 0 {
		m.relayChunks.Add(float64(chunks))
	}
}

func (m *Metrics) IncTransition(transition string) {
	if m == nil {
		return
	}
	m.lifecycle.Inc(transition)
}

// RelayOutcomes is exposed for tests.
func (m *Metrics) RelayOutcomes(outcome string) float64 {
	if m == nil {
		return 0
	}
	return m.relayStreams.Value(outcome)
}

func (m *Metrics) Transitions(transition string) float64 {
	if m == nil {
		return 0
	}
	return m.lifecycle.Value(transition)
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, fam := range []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency,
		m.relayStreams, m.relayChunks,
		m.lifecycle,
		m.dbStats, m.redisUp,
	} {
		if err := fam.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

// StartDBCollector samples pool stats until ctx ends.
func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(m.scrapeEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
				m.dbStats.Set(float64(stats.InUse), "in_use")
				m.dbStats.Set(float64(stats.Idle), "idle")
				m.dbStats.Set(float64(stats.WaitCount), "wait_count")
				m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
			}
		}
	}()
}

// StartRedisCollector pings the bus client until ctx ends. The client is not closed here.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(m.scrapeEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
			}
		}
	}()
}

// StartServer serves /metrics on a dedicated listener until ctx ends.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}
