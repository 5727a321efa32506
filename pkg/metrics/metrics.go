package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SendRequests counts send-email requests by final outcome
	// (sent, invalid, too_large, rate_limited, duplicate, blocked,
	// timed_out, unavailable, failed).
	SendRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nekomail_send_requests_total",
		Help: "Total number of send-email requests by outcome",
	}, []string{"outcome"})

	// Admission control
	AdmissionRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nekomail_admission_rejected_total",
		Help: "Total number of requests rejected by admission control",
	}, []string{"reason"})
	SlowdownDelay = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nekomail_slowdown_delay_seconds",
		Help:    "Artificial delay applied to requests by the progressive slowdown",
		Buckets: []float64{0.5, 1, 1.5, 2, 2.5, 3, 5},
	})

	// Deduplication cache
	DedupEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nekomail_dedup_entries",
		Help: "Current number of fingerprints held by the deduplication cache",
	})
	DedupReaped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nekomail_dedup_reaped_total",
		Help: "Total number of expired fingerprints removed by the cache reaper",
	})

	// Dispatch
	DispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nekomail_dispatch_duration_seconds",
		Help:    "Time from handing a message to the relay until the dispatch outcome was known",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"outcome"})

	// Mail relay
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nekomail_mail_send_success_total",
		Help: "Total number of successful mail sends",
	}, []string{"host"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nekomail_mail_send_failure_total",
		Help: "Total number of failed mail sends",
	}, []string{"host"})
	MailQueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nekomail_mail_queued_total",
		Help: "Total number of messages accepted into the relay backlog",
	}, []string{"host"})
	MailQueueDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nekomail_mail_queue_dropped_total",
		Help: "Total number of messages refused because the relay backlog was full or closed",
	}, []string{"host"})
	MailConnectionsOpened = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nekomail_mail_connections_opened_total",
		Help: "Total number of SMTP connections opened to the relay",
	}, []string{"host"})
)

func init() {
	prometheus.MustRegister(SendRequests)
	prometheus.MustRegister(AdmissionRejected)
	prometheus.MustRegister(SlowdownDelay)
	prometheus.MustRegister(DedupEntries)
	prometheus.MustRegister(DedupReaped)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(MailQueued)
	prometheus.MustRegister(MailQueueDropped)
	prometheus.MustRegister(MailConnectionsOpened)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
