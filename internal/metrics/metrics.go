package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/metal-toolbox/osie-runner/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultEndpoint = "0.0.0.0:9090"
)

var (
	DocumentsCounter *prometheus.CounterVec

	HandlerCounter        *prometheus.CounterVec
	HandlerRunTimeSummary *prometheus.SummaryVec

	InstallerCounter        *prometheus.CounterVec
	InstallerRunTimeSummary *prometheus.SummaryVec

	ReconnectCounter *prometheus.CounterVec

	NotificationCounter *prometheus.CounterVec
)

func init() {
	DocumentsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osie_runner_documents_received",
			Help: "A counter metric to measure the total count of desired state documents received",
		},
		[]string{"state"},
	)

	HandlerCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osie_runner_handler_runs",
			Help: "A counter metric to measure the total count of state handlers executed, by outcome",
		},
		[]string{"state", "outcome"},
	)

	HandlerRunTimeSummary = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "osie_runner_handler_duration_seconds",
			Help: "A summary metric to measure the total time spent in each state handler",
		},
		[]string{"state", "outcome"},
	)

	InstallerCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osie_runner_installer_runs",
			Help: "A counter metric to measure the total count of installer runs, by result",
		},
		[]string{"entrypoint", "result"},
	)

	InstallerRunTimeSummary = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "osie_runner_installer_duration_seconds",
			Help: "A summary metric to measure the total time spent in each installer run",
		},
		[]string{"entrypoint", "result"},
	)

	ReconnectCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osie_runner_hegel_connect_attempts",
			Help: "A counter metric to measure the total count of hegel connection attempts",
		},
		[]string{"result"},
	)

	NotificationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osie_runner_notifications_sent",
			Help: "A counter metric to measure the total count of phone-home notifications, by result",
		},
		[]string{"sink", "kind", "result"},
	)
}

func result(err error) string {
	if err != nil {
		return "failed"
	}

	return "succeeded"
}

// RegisterInstallerRun records an installer run.
func RegisterInstallerRun(entrypoint model.Entrypoint, err error, elapsed time.Duration) {
	InstallerCounter.WithLabelValues(string(entrypoint), result(err)).Inc()
	InstallerRunTimeSummary.WithLabelValues(string(entrypoint), result(err)).Observe(elapsed.Seconds())
}

// RegisterHandlerRun records a state handler run.
func RegisterHandlerRun(state model.State, outcome string, elapsed time.Duration) {
	HandlerCounter.WithLabelValues(string(state), outcome).Inc()
	HandlerRunTimeSummary.WithLabelValues(string(state), outcome).Observe(elapsed.Seconds())
}

// RegisterConnectAttempt records a hegel connection attempt.
func RegisterConnectAttempt(err error) {
	ReconnectCounter.WithLabelValues(result(err)).Inc()
}

// RegisterNotification records a notification delivery.
func RegisterNotification(sink, kind string, err error) {
	NotificationCounter.WithLabelValues(sink, kind, result(err)).Inc()
}

// ListenAndServe exposes prometheus metrics as /metrics
func ListenAndServe(endpoint string) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              endpoint,
			ReadHeaderTimeout: 2 * time.Second, // nolint:gomnd // time duration value is clear as is.
		}

		if err := server.ListenAndServe(); err != nil {
			log.Println(err)
		}
	}()
}
