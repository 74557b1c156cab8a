package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalcache_lookups_total",
			Help: "Total number of cache lookups by outcome",
		},
		[]string{"result"},
	)

	savesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evalcache_saves_total",
			Help: "Total number of cache saves by outcome",
		},
		[]string{"status"},
	)
)
