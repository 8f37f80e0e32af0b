package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AdvancesTotal counts native rotation advances.
	AdvancesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signbeam_rotation_advances_total",
		Help: "Native playlist advances performed by the director.",
	})

	// VendorInsertionsTotal counts vendor creatives substituted into the
	// rotation.
	VendorInsertionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signbeam_vendor_insertions_total",
		Help: "Vendor (programmatic) creatives shown.",
	})

	// PreemptionsTotal counts livestream overrides of the rotation.
	PreemptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signbeam_livestream_preemptions_total",
		Help: "Livestream preemptions of the main rotation.",
	})

	// RenderErrorsTotal counts items ended by a rendering-surface error.
	RenderErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signbeam_render_errors_total",
		Help: "Items skipped because the rendering surface reported an error.",
	})

	// StuckAssetsTotal counts safety-timer expirations without a natural end.
	StuckAssetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signbeam_stuck_assets_total",
		Help: "Videos force-ended by the stuck-asset safety timer.",
	})

	// ExhaustionsTotal counts barren full cycles over the native playlist.
	ExhaustionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signbeam_rotation_exhaustions_total",
		Help: "Full playlist cycles with no eligible item.",
	})

	// PositionRestoresTotal counts successful cursor restores at startup.
	PositionRestoresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signbeam_position_restores_total",
		Help: "Playback positions restored from the position store.",
	})

	// ItemDisplaySeconds observes how long items were actually shown.
	ItemDisplaySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signbeam_item_display_seconds",
		Help:    "Observed display time per item by media kind.",
		Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"kind"})

	// APIRequestsTotal counts local API requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signbeam_api_requests_total",
		Help: "Local API requests.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes local API latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signbeam_api_request_duration_seconds",
		Help:    "Local API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections gauges in-flight local API requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signbeam_api_active_connections",
		Help: "In-flight local API requests.",
	})

	// APIWebSocketConnections gauges connected render pages.
	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signbeam_api_websocket_connections",
		Help: "WebSocket subscribers to item-change pushes.",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
