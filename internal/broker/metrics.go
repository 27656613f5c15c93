package broker

import (
	"net/http"

	"github.com/VictoriaMetrics/metrics"
)

// Metrics exposes the broker's counters and gauges over a private
// VictoriaMetrics set, written out in Prometheus text format. This is
// purely observability: none of the spec's Non-goals name metrics, and
// every counter here mirrors state the broker loop already tracks for its
// own bookkeeping.
type Metrics struct {
	set *metrics.Set

	requestsTotal               *metrics.Counter
	responsesAvailableTotal     *metrics.Counter
	responsesNotAvailableTotal  *metrics.Counter
	votesIndecisiveTotal        *metrics.Counter
	heartbeatsSentTotal         *metrics.Counter
	replicasUnreliableTotal     *metrics.Counter

	cohortsReady func() float64
}

// NewMetrics creates a fresh metrics set, not yet wired to any cohort
// count; call SetCohortsReadyFunc once the service database exists.
func NewMetrics() *Metrics {
	set := metrics.NewSet()
	m := &Metrics{
		set:                        set,
		requestsTotal:              set.NewCounter("requests_total"),
		responsesAvailableTotal:    set.NewCounter("responses_available_total"),
		responsesNotAvailableTotal: set.NewCounter("responses_not_available_total"),
		votesIndecisiveTotal:       set.NewCounter("votes_indecisive_total"),
		heartbeatsSentTotal:        set.NewCounter("heartbeats_sent_total"),
		replicasUnreliableTotal:    set.NewCounter("replicas_unreliable_total"),
	}
	return m
}

// SetCohortsReadyFunc wires the cohorts_ready gauge to a live count
// supplied by the broker loop.
func (m *Metrics) SetCohortsReadyFunc(fn func() float64) {
	m.cohortsReady = fn
	m.set.NewGauge("cohorts_ready", fn)
}

func (m *Metrics) RequestAdmitted()     { m.requestsTotal.Inc() }
func (m *Metrics) ResponseAvailable()   { m.responsesAvailableTotal.Inc() }
func (m *Metrics) ResponseUnavailable() { m.responsesNotAvailableTotal.Inc() }
func (m *Metrics) VoteIndecisive()      { m.votesIndecisiveTotal.Inc() }
func (m *Metrics) HeartbeatSent()       { m.heartbeatsSentTotal.Inc() }
func (m *Metrics) ReplicaMarkedUnreliable(n int) {
	m.replicasUnreliableTotal.Add(n)
}

// Serve runs an HTTP server exposing the set at /metrics, blocking until
// the server stops; the broker CLI runs it on its own goroutine. It is
// only ever started when the broker CLI is given a -metrics address;
// omitting the flag omits this endpoint entirely.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		m.set.WritePrometheus(w)
	})
	return http.ListenAndServe(addr, mux)
}
