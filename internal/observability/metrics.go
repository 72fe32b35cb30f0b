package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CombatMetrics records combat engine activity. Labels are bounded: action
// types, outcomes, error kinds and results are fixed vocabularies.
type CombatMetrics struct {
	actions   *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	waves     prometheus.Counter
	outcomes  *prometheus.CounterVec
	roundsHis prometheus.Histogram
}

// NewCombatMetrics registers the combat collectors on reg.
//
// Precondition: reg must be non-nil and must not already hold these collectors.
func NewCombatMetrics(reg prometheus.Registerer) *CombatMetrics {
	f := promauto.With(reg)
	return &CombatMetrics{
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "combat_actions_total",
			Help: "Resolved combat actions",
		}, []string{"type", "outcome"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "combat_actions_rejected_total",
			Help: "Actions rejected before resolution",
		}, []string{"kind"}),
		waves: f.NewCounter(prometheus.CounterOpts{
			Name: "combat_waves_cleared_total",
			Help: "Enemy waves cleared",
		}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "combat_encounters_total",
			Help: "Finished encounters",
		}, []string{"result"}),
		roundsHis: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "combat_rounds_per_encounter",
			Help:    "Rounds fought per finished encounter",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		}),
	}
}

// ActionResolved counts one resolved action.
func (m *CombatMetrics) ActionResolved(actionType, outcome string) {
	m.actions.WithLabelValues(actionType, outcome).Inc()
}

// ActionRejected counts one rejected action.
func (m *CombatMetrics) ActionRejected(kind string) {
	m.rejected.WithLabelValues(kind).Inc()
}

// WaveCleared counts one cleared wave.
func (m *CombatMetrics) WaveCleared() { m.waves.Inc() }

// EncounterFinished counts a finished encounter and observes its length.
func (m *CombatMetrics) EncounterFinished(result string, rounds int) {
	m.outcomes.WithLabelValues(result).Inc()
	m.roundsHis.Observe(float64(rounds))
}

// ServeMetrics exposes gatherer on addr at /metrics until ctx is cancelled.
//
// Postcondition: returns nil after a clean shutdown.
func ServeMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}()

	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
