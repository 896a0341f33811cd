package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		dbQueriesTotal,
		cacheEventsTotal,
	)
}

var (
	dbQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_queries_total",
			Help: "Database operations by repository and result.",
		},
		[]string{"repo", "result"},
	)

	cacheEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_events_total",
			Help: "Cache hits and misses by cache name.",
		},
		[]string{"cache", "event"},
	)
)

func IncDBQuery(repo, result string) {
	dbQueriesTotal.WithLabelValues(norm(repo), norm(result)).Inc()
}

func IncCache(cache, event string) {
	cacheEventsTotal.WithLabelValues(norm(cache), norm(event)).Inc()
}
