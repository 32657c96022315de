package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "battlelog"

// Metrics is the observability sink shared by caches and services. A nil
// *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cacheRefreshes *prometheus.CounterVec
	cacheStale     *prometheus.CounterVec
	seasonRebuilds *prometheus.CounterVec
	snapshotErrors *prometheus.CounterVec
	anomalies      prometheus.Counter
	searches       *prometheus.CounterVec
	searchMemoHits prometheus.Counter
	ingestOutcomes *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cacheRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refreshes_total",
			Help:      "Cache refresh attempts by cache and result.",
		}, []string{"cache", "result"}),
		cacheStale: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_stale_served_total",
			Help:      "Reads answered with stale data after a failed refresh.",
		}, []string{"cache"}),
		seasonRebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "season_rebuilds_total",
			Help:      "Season log rebuilds by result.",
		}, []string{"result"}),
		snapshotErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_errors_total",
			Help:      "Season snapshot load/save failures.",
		}, []string{"op"}),
		anomalies: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_skipped_total",
			Help:      "Records skipped because both or neither side lost.",
		}),
		searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Composition searches by side and result.",
		}, []string{"side", "result"}),
		searchMemoHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_memo_hits_total",
			Help:      "Searches answered from the result memo.",
		}),
		ingestOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Write path outcomes.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheRefresh(cache string, err error) {
	if m == nil {
		return
	}
	m.cacheRefreshes.WithLabelValues(cache, result(err)).Inc()
}

func (m *Metrics) CacheStaleServed(cache string) {
	if m == nil {
		return
	}
	m.cacheStale.WithLabelValues(cache).Inc()
}

func (m *Metrics) SeasonRebuild(err error) {
	if m == nil {
		return
	}
	m.seasonRebuilds.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) SnapshotError(op string) {
	if m == nil {
		return
	}
	m.snapshotErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) AnomalySkipped() {
	if m == nil {
		return
	}
	m.anomalies.Inc()
}

func (m *Metrics) Search(side string, err error) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(side, result(err)).Inc()
}

func (m *Metrics) SearchMemoHit() {
	if m == nil {
		return
	}
	m.searchMemoHits.Inc()
}

func (m *Metrics) Ingest(outcome string) {
	if m == nil {
		return
	}
	m.ingestOutcomes.WithLabelValues(outcome).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
