// monitor/monitor.go
package monitor

import (
	"errors"
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wfunc/foosref/logger"
)

type Metrics struct {
	OnlineSessions   prometheus.Gauge
	ActiveChannels   prometheus.Gauge
	MessagesReceived prometheus.Counter
	MessageLatency   prometheus.Histogram
	Commands         *prometheus.CounterVec
	GamesLocked      prometheus.Counter
	Images           *prometheus.CounterVec
	NagsSent         prometheus.Counter
}

func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnlineSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_sessions",
			Help:      "Number of connected chat sessions",
		}),
		ActiveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_channels",
			Help:      "Number of channels with a game state",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of chat messages received",
		}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Referee commands handled, by command",
		}, []string{"command"}),
		GamesLocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_locked_total",
			Help:      "Games that reached four players",
		}),
		Images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_total",
			Help:      "Image lookups, by result",
		}, []string{"result"}),
		NagsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nags_sent_total",
			Help:      "Idle reminders posted",
		}),
	}

	reg.MustRegister(
		m.OnlineSessions,
		m.ActiveChannels,
		m.MessagesReceived,
		m.MessageLatency,
		m.Commands,
		m.GamesLocked,
		m.Images,
		m.NagsSent,
	)

	return m
}

type Monitor struct {
	metrics      *Metrics
	gatherer     prometheus.Gatherer
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
	server       *http.Server
}

var publishOnce sync.Once

// NewMonitor registers metrics in reg; nil uses the default registry.
func NewMonitor(namespace string, reg *prometheus.Registry) *Monitor {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	return &Monitor{
		metrics:   NewMetrics(namespace, registerer),
		gatherer:  gatherer,
		startTime: time.Now(),
	}
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// Handler serves /metrics and /debug/vars.
func (m *Monitor) Handler() http.Handler {
	// 添加expvar指标
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.requestCount
		}))
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

func (m *Monitor) StartServer(addr string) {
	m.server = &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Log.Infof("Metrics listening on %s", addr)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Errorf("metrics server: %v", err)
		}
	}()
}

func (m *Monitor) Close() error {
	if m.server == nil {
		return nil
	}
	return m.server.Close()
}

func (m *Monitor) IncOnlineSessions() {
	m.metrics.OnlineSessions.Inc()
}

func (m *Monitor) DecOnlineSessions() {
	m.metrics.OnlineSessions.Dec()
}

func (m *Monitor) SetActiveChannels(count int) {
	m.metrics.ActiveChannels.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived() {
	m.metrics.MessagesReceived.Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

// --- referee.Metrics ---

func (m *Monitor) IncCommand(command string) {
	m.metrics.Commands.WithLabelValues(command).Inc()
}

func (m *Monitor) IncGamesLocked() {
	m.metrics.GamesLocked.Inc()
}

func (m *Monitor) IncImagesPosted() {
	m.metrics.Images.WithLabelValues("posted").Inc()
}

func (m *Monitor) IncImagesFailed() {
	m.metrics.Images.WithLabelValues("failed").Inc()
}

func (m *Monitor) IncNagsSent() {
	m.metrics.NagsSent.Inc()
}
