package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "accessiride"

var (
	BookingRunsStarted = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "booking_runs_started_total", Help: "Booking runs started"})

	BookingRunsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "booking_runs_finished_total", Help: "Booking runs finished, by how they finished"},
		[]string{"reason"},
	)

	BookingRunsActive = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "booking_runs_active", Help: "Booking runs not yet torn down"})

	BookingRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "booking_run_duration_seconds",
		Help:      "Time from run start until every entry completed or the run timed out",
		Buckets:   []float64{1, 2.5, 5, 10, 15, 20, 30, 45, 60},
	})

	CabPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cab_polls_total", Help: "Status polls against the cab service, by result"},
		[]string{"result"},
	)

	ProviderOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "provider_outcomes_total", Help: "Completed provider entries, by outcome"},
		[]string{"outcome"},
	)

	CallbackRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "callback_requests_total", Help: "Callback requests, by result"},
		[]string{"result"},
	)

	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "store_writes_total", Help: "Durable slot writes, by slot and result"},
		[]string{"slot", "result"},
	)

	StoreReadFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "store_read_fallbacks_total", Help: "Slots that fell back to defaults on load"},
		[]string{"slot"},
	)

	DirectionsRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "directions_requests_total", Help: "Directions lookups, by status"},
		[]string{"status"},
	)

	DirectionsCacheHits = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "directions_cache_hits_total", Help: "Directions lookups served from cache"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	WSSubscribers = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "ws_subscribers", Help: "Connected booking stream subscribers"})

	FareHolds = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "fare_holds_total", Help: "Fare hold operations, by action and result"},
		[]string{"action", "result"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_published_total", Help: "Kafka events published, by topic and result"},
		[]string{"topic", "result"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_consumed_total", Help: "Kafka events consumed, by result"},
		[]string{"result"},
	)
)
