// Package metrics exposes client-side counters for turns, uploads, auth
// resolution and orchestrator calls. Exposition is opt-in through Serve.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/comigor/loanchat-go/internal/logger"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loanchat_turns_total",
		Help: "Chat turns submitted by outcome",
	}, []string{"outcome"}) // outcome=success|transport|validation|busy

	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loanchat_uploads_total",
		Help: "Salary slip upload offers by outcome",
	}, []string{"outcome"}) // outcome=success|validation|unsupported_type|too_large|precondition|transport|busy

	authResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loanchat_auth_resolutions_total",
		Help: "Auth state transitions into a resolved state",
	}, []string{"state"}) // state=resolved|anonymous

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loanchat_orchestrator_request_duration_seconds",
		Help:    "Latency of orchestrator HTTP calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "code"})
)

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// RecordTurn counts one Submit call.
func RecordTurn(outcome string) {
	turnsTotal.WithLabelValues(orUnknown(outcome)).Inc()
}

// RecordUpload counts one Offer call.
func RecordUpload(outcome string) {
	uploadsTotal.WithLabelValues(orUnknown(outcome)).Inc()
}

// RecordAuthResolution counts a transition into Resolved or Anonymous.
func RecordAuthResolution(state string) {
	authResolutionsTotal.WithLabelValues(orUnknown(state)).Inc()
}

// ObserveRequest records an orchestrator call. code is the HTTP status text
// or "error" when no response arrived.
func ObserveRequest(op, code string, d time.Duration) {
	requestDuration.WithLabelValues(orUnknown(op), orUnknown(code)).Observe(d.Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.L.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
