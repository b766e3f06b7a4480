// Package metrics holds the Prometheus collectors for the API.
//
// Each Metrics value owns its own registry, so tests can build any number of
// servers without "duplicate metrics collector registration" panics.
//
// COLLECTOR TYPES:
//   - Counter    only goes up (votes cast, questions created). Prometheus
//     computes rates from it with rate()/increase().
//   - Gauge      goes up and down (requests in flight).
//   - Histogram  buckets observations (request latency) so quantiles can be
//     computed server side with histogram_quantile().
//
// LABEL CARDINALITY:
// Every distinct label combination is a separate time series. Request
// metrics are labelled with the chi route pattern ("/api/questions/{id}"),
// never the raw path, otherwise each question ID would create new series.
// Vote labels are closed sets: target is question|answer and action is
// created|removed|flipped.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/stackit/internal/model"
)

type Metrics struct {
	registry *prometheus.Registry

	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	VotesTotal       *prometheus.CounterVec
	QuestionsCreated prometheus.Counter
	AnswersCreated   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stackit_api_request_duration_seconds",
				Help:    "HTTP request duration in seconds, by route pattern, method and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stackit_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		}),
		VotesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stackit_votes_total",
				Help: "Votes cast, by target kind and ledger transition.",
			},
			[]string{"target", "action"},
		),
		QuestionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stackit_questions_created_total",
			Help: "Questions posted.",
		}),
		AnswersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stackit_answers_created_total",
			Help: "Answers posted.",
		}),
	}

	m.registry.MustRegister(
		m.RequestDuration,
		m.RequestsInFlight,
		m.VotesTotal,
		m.QuestionsCreated,
		m.AnswersCreated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveVote counts one vote cast. Safe on a nil *Metrics.
func (m *Metrics) ObserveVote(kind model.TargetKind, action model.VoteAction) {
	if m == nil {
		return
	}
	m.VotesTotal.WithLabelValues(string(kind), string(action)).Inc()
}

func (m *Metrics) ObserveQuestionCreated() {
	if m == nil {
		return
	}
	m.QuestionsCreated.Inc()
}

func (m *Metrics) ObserveAnswerCreated() {
	if m == nil {
		return
	}
	m.AnswersCreated.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
