package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source exposes store sizes for gauges that are read at scrape time.
type Source interface {
	MessageCount() int
	UserCount() int
}

type Metrics struct {
	registry *prometheus.Registry

	Requests          *prometheus.CounterVec
	RateLimited       prometheus.Counter
	MessagesSent      prometheus.Counter
	SweptMessages     prometheus.Counter
	SweptRateLimits   prometheus.Counter
	Checkpoints       *prometheus.CounterVec
	CheckpointSeconds prometheus.Histogram
}

func New(src Source) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_http_requests_total",
			Help: "API requests by route and status code.",
		}, []string{"route", "code"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agora_http_rate_limited_total",
			Help: "API requests rejected by the per-token limiter.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agora_messages_sent_total",
			Help: "Messages accepted by the store.",
		}),
		SweptMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agora_retention_messages_purged_total",
			Help: "Messages removed by retention sweeps.",
		}),
		SweptRateLimits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agora_retention_rate_limits_purged_total",
			Help: "Idle rate-limit entries removed by sweeps.",
		}),
		Checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_checkpoints_total",
			Help: "Snapshot checkpoints by result.",
		}, []string{"result"}),
		CheckpointSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agora_checkpoint_duration_seconds",
			Help:    "Time spent writing a snapshot checkpoint.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.Requests,
		m.RateLimited,
		m.MessagesSent,
		m.SweptMessages,
		m.SweptRateLimits,
		m.Checkpoints,
		m.CheckpointSeconds,
		collectors.NewGoCollector(),
	)
	if src != nil {
		m.registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "agora_messages",
				Help: "Live messages across all rooms.",
			}, func() float64 { return float64(src.MessageCount()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "agora_users",
				Help: "Registered users.",
			}, func() float64 { return float64(src.UserCount()) }),
		)
	}
	return m
}

// Instrument counts requests served by h under the given route label.
func (m *Metrics) Instrument(route string, h http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(m.Requests.MustCurryWith(prometheus.Labels{"route": route}), h)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
