package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every node metric. It is served by Handler.
var Registry = prometheus.NewRegistry()

var (
	// NeighborsTotal is the neighbor count seen by the last liveness sweep.
	NeighborsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshnode_neighbors",
			Help: "Number of neighbors in the table at the last liveness sweep.",
		},
	)

	// NeighborsOnline is the number of neighbors still online after the last sweep.
	NeighborsOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meshnode_neighbors_online",
			Help: "Number of online neighbors at the last liveness sweep.",
		},
	)

	// NeighborInfoRequests counts info requests sent to new or rebooted neighbors.
	NeighborInfoRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshnode_neighbor_info_requests_total",
			Help: "Info requests sent to neighbors.",
		},
		[]string{"result"}, // result: sent/failed
	)

	// DfuSessions counts finished update sessions.
	DfuSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshnode_dfu_sessions_total",
			Help: "Firmware update sessions by path and outcome.",
		},
		[]string{"path", "result"}, // path: self/remote, result: error code name
	)

	// DfuChunkWrites counts staging writes from chunk messages.
	DfuChunkWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meshnode_dfu_chunk_writes_total",
			Help: "Chunk writes to the staging partition.",
		},
		[]string{"result"}, // result: ack/nak
	)

	// DfuPowerWait records how long the bus took to report power on.
	DfuPowerWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meshnode_dfu_power_wait_seconds",
			Help:    "Time spent waiting for the bus power signal before a peer update.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		NeighborsTotal,
		NeighborsOnline,
		NeighborInfoRequests,
		DfuSessions,
		DfuChunkWrites,
		DfuPowerWait,
	)
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
