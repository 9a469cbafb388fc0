package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Global logger instance, a nop until Init swaps in the production one.
	Logger = zap.NewNop()

	// Metrics
	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menfes_submissions_total",
			Help: "Total number of video submissions by pipeline outcome",
		},
		[]string{"outcome"},
	)

	reactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menfes_reactions_total",
			Help: "Total number of reaction button presses applied",
		},
		[]string{"action"},
	)

	membershipChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menfes_membership_checks_total",
			Help: "Membership lookups by collapsed result",
		},
		[]string{"result"},
	)

	updateProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "menfes_update_processing_duration_seconds",
			Help:    "Time spent processing inbound updates",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func Init(ctx context.Context, metricsAddr string) error {
	var err error
	Logger, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(submissionsTotal)
	prometheus.MustRegister(reactionsTotal)
	prometheus.MustRegister(membershipChecksTotal)
	prometheus.MustRegister(updateProcessingDuration)

	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	return nil
}

// RecordSubmission records a pipeline outcome (accepted or rejection reason).
func RecordSubmission(outcome string) {
	submissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordReaction records an applied like/dislike press.
func RecordReaction(action string) {
	reactionsTotal.WithLabelValues(action).Inc()
}

// RecordMembershipCheck records a collapsed membership lookup result.
func RecordMembershipCheck(result string) {
	membershipChecksTotal.WithLabelValues(result).Inc()
}

// StartUpdateProcessing returns a func recording the processing duration.
func StartUpdateProcessing() func(status string) {
	timer := prometheus.NewTimer(nil)
	return func(status string) {
		updateProcessingDuration.WithLabelValues(status).Observe(timer.ObserveDuration().Seconds())
	}
}
