// Package metrics exposes the server's prometheus instruments and the
// small HTTP surface (/metrics, /healthz) that serves them, bound to a
// listener entirely separate from the chat protocol's.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Instruments holds every metric the server reports.
type Instruments struct {
	registry          *prometheus.Registry
	connectionsActive prometheus.Gauge
	usersRegistered   prometheus.Gauge
	roomsActive       prometheus.Gauge
	commandsTotal     *prometheus.CounterVec
}

// New creates and registers every instrument against a private registry
// (not prometheus's global default, so tests can construct several
// without collisions).
func New() *Instruments {
	reg := prometheus.NewRegistry()
	inst := &Instruments{
		registry: reg,
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomrelay_connections_active",
			Help: "Number of currently accepted TCP connections.",
		}),
		usersRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomrelay_users_registered",
			Help: "Number of currently registered users.",
		}),
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomrelay_rooms_active",
			Help: "Number of currently existing rooms.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomrelay_commands_total",
			Help: "Commands dispatched, by 5-digit command code and 3-digit result code.",
		}, []string{"command", "result"}),
	}
	reg.MustRegister(inst.connectionsActive, inst.usersRegistered, inst.roomsActive, inst.commandsTotal)
	return inst
}

// SetUsersRegistered implements registry.Metrics.
func (i *Instruments) SetUsersRegistered(n int) { i.usersRegistered.Set(float64(n)) }

// SetRoomsActive implements registry.Metrics.
func (i *Instruments) SetRoomsActive(n int) { i.roomsActive.Set(float64(n)) }

// CommandsTotal implements dispatch.Metrics.
func (i *Instruments) CommandsTotal(command string, statusCode int) {
	i.commandsTotal.WithLabelValues(command, strconv.Itoa(statusCode)).Inc()
}

// ConnectionOpened records a newly accepted connection.
func (i *Instruments) ConnectionOpened() { i.connectionsActive.Inc() }

// ConnectionClosed records a torn-down connection.
func (i *Instruments) ConnectionClosed() { i.connectionsActive.Dec() }

// NewHTTPServer builds the /metrics + /healthz server. healthy reports
// liveness; it is called on every /healthz request and should be cheap.
func NewHTTPServer(addr string, inst *Instruments, healthy func() bool) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(inst.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if healthy == nil || healthy() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}).Methods(http.MethodGet)

	return &http.Server{
		Addr:    addr,
		Handler: router,
	}
}
