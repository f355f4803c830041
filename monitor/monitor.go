// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlinePlayers    prometheus.Gauge
	ActiveRooms      prometheus.Gauge
	RoomsByStatus    *prometheus.GaugeVec
	CommandsReceived *prometheus.CounterVec
	CommandLatency   prometheus.Histogram
	CommandErrors    *prometheus.CounterVec
	EventsSent       *prometheus.CounterVec
	SendFailures     prometheus.Counter
	GamesFinished    *prometheus.CounterVec
	AuthFailures     prometheus.Counter
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of open websocket connections",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of rooms in the registry",
		}),
		RoomsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms per status",
		}, []string{"status"}),
		CommandsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_received_total",
			Help:      "Commands received per event name",
		}, []string{"command"}),
		CommandLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_latency_seconds",
			Help:      "Command processing latency including broadcast",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		CommandErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_errors_total",
			Help:      "Error events sent per error code",
		}, []string{"code"}),
		EventsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_sent_total",
			Help:      "Events delivered per event name",
		}, []string{"event"}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Events that could not be written to a connection",
		}),
		GamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Finished rounds per outcome",
		}, []string{"outcome"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected websocket handshakes",
		}),
	}

	reg.MustRegister(
		m.OnlinePlayers,
		m.ActiveRooms,
		m.RoomsByStatus,
		m.CommandsReceived,
		m.CommandLatency,
		m.CommandErrors,
		m.EventsSent,
		m.SendFailures,
		m.GamesFinished,
		m.AuthFailures,
	)

	return m
}

// Monitor owns a private registry so several instances can coexist in tests.
// All methods are safe on a nil *Monitor.
type Monitor struct {
	metrics   *Metrics
	registry  *prometheus.Registry
	startTime time.Time
}

func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Monitor{
		metrics:   NewMetrics(namespace, reg),
		registry:  reg,
		startTime: time.Now(),
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the server started",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	}))
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

func (m *Monitor) IncOnlinePlayers() {
	if m == nil {
		return
	}
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	if m == nil {
		return
	}
	m.metrics.OnlinePlayers.Dec()
}

// SetRooms records a registry sample.
func (m *Monitor) SetRooms(total, waiting, playing, finished int) {
	if m == nil {
		return
	}
	m.metrics.ActiveRooms.Set(float64(total))
	m.metrics.RoomsByStatus.WithLabelValues("waiting").Set(float64(waiting))
	m.metrics.RoomsByStatus.WithLabelValues("playing").Set(float64(playing))
	m.metrics.RoomsByStatus.WithLabelValues("finished").Set(float64(finished))
}

func (m *Monitor) IncCommand(command string) {
	if m == nil {
		return
	}
	m.metrics.CommandsReceived.WithLabelValues(command).Inc()
}

func (m *Monitor) ObserveCommandLatency(duration time.Duration) {
	if m == nil {
		return
	}
	m.metrics.CommandLatency.Observe(duration.Seconds())
}

func (m *Monitor) IncCommandError(code string) {
	if m == nil {
		return
	}
	m.metrics.CommandErrors.WithLabelValues(code).Inc()
}

func (m *Monitor) IncEventsSent(event string) {
	if m == nil {
		return
	}
	m.metrics.EventsSent.WithLabelValues(event).Inc()
}

func (m *Monitor) IncSendFailures() {
	if m == nil {
		return
	}
	m.metrics.SendFailures.Inc()
}

func (m *Monitor) IncGamesFinished(outcome string) {
	if m == nil {
		return
	}
	m.metrics.GamesFinished.WithLabelValues(outcome).Inc()
}

func (m *Monitor) IncAuthFailures() {
	if m == nil {
		return
	}
	m.metrics.AuthFailures.Inc()
}
