package world

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// replansTotal counts route searches that produced a route
	replansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilewalk_nav_replans_total",
		Help: "Routes planned by followers",
	}, []string{"map"})

	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilewalk_nav_steps_total",
		Help: "Cells entered by followers",
	}, []string{"map"})

	arrivalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilewalk_nav_arrivals_total",
		Help: "Targets reached",
	}, []string{"map"})

	unreachableTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilewalk_nav_unreachable_total",
		Help: "Targets abandoned because no route exists",
	}, []string{"map"})

	// stepDelay tracks the pacing delay chosen after each step
	stepDelay = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilewalk_nav_step_delay_seconds",
		Help:    "Delay before a follower's next step",
		Buckets: prometheus.ExponentialBuckets(0.125, 2, 8), // 125ms to 16s
	})

	routeCells = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilewalk_nav_route_cells",
		Help:    "Cells per planned route, start included",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512},
	})

	pathQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tilewalk_path_query_duration_seconds",
		Help:    "Stateless path query duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14), // 50us to ~400ms
	}, []string{"result"})

	actorsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilewalk_actors",
		Help: "Actors currently spawned",
	})

	pickupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilewalk_pickups_total",
		Help: "Items picked up by actors",
	}, []string{"item"})

	minedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilewalk_tiles_mined_total",
		Help: "Tiles turned into floor with a pickaxe",
	}, []string{"map"})
)
