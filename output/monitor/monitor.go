// Package monitor provides a WebSocket feed of automation execution
// results for supervisor dashboards. Rows are broadcast at-most-once:
// a slow or disconnected dashboard misses rows rather than applying
// backpressure to the engine, since the audit stream remains the durable
// record.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/chatrules/audit"
	"github.com/c360/chatrules/component"
	"github.com/c360/chatrules/errors"
	"github.com/c360/chatrules/metric"
	"github.com/c360/chatrules/natsclient"
)

// Config holds the monitor's settings
type Config struct {
	// Port is the WebSocket server port
	Port int `json:"port"`
	// Path is the WebSocket endpoint path
	Path string `json:"path"`
	// Subject is the audit row subject to subscribe to
	Subject string `json:"subject"`
}

// DefaultConfig returns monitor defaults
func DefaultConfig() Config {
	return Config{
		Port:    8081,
		Path:    "/ws",
		Subject: audit.SubjectPrefix + ".>",
	}
}

// Monitor broadcasts audit rows to connected WebSocket clients
type Monitor struct {
	cfg     Config
	client  *natsclient.Client
	logger  *slog.Logger
	metrics *monitorMetrics

	server   *http.Server
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*clientConn

	stateMu   sync.Mutex
	state     component.State
	startTime time.Time

	rowsSent atomic.Int64
	sendErrs atomic.Int64
}

// clientConn wraps one dashboard connection; writes are serialized
type clientConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
}

var _ component.LifecycleComponent = (*Monitor)(nil)

type monitorMetrics struct {
	rowsBroadcast    prometheus.Counter
	clientsConnected prometheus.Gauge
	sendErrors       prometheus.Counter
}

func newMonitorMetrics(registry *metric.MetricsRegistry) *monitorMetrics {
	if registry == nil {
		return nil
	}

	m := &monitorMetrics{
		rowsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrules_monitor_rows_broadcast_total",
			Help: "Audit rows broadcast to dashboard clients",
		}),
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatrules_monitor_clients_connected",
			Help: "Currently connected dashboard clients",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatrules_monitor_send_errors_total",
			Help: "Failed writes to dashboard clients",
		}),
	}
	_ = registry.RegisterCounter("monitor", "rows_broadcast_total", m.rowsBroadcast)
	_ = registry.RegisterGauge("monitor", "clients_connected", m.clientsConnected)
	_ = registry.RegisterCounter("monitor", "send_errors_total", m.sendErrors)
	return m
}

// NewMonitor creates a monitor; call Initialize before Start
func NewMonitor(cfg Config, client *natsclient.Client, registry *metric.MetricsRegistry) (*Monitor, error) {
	if client == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("NATS client is required"), "Monitor", "NewMonitor", "check deps")
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultConfig().Port
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultConfig().Subject
	}

	return &Monitor{
		cfg:     cfg,
		client:  client,
		logger:  slog.Default().With("component", "monitor"),
		metrics: newMonitorMetrics(registry),
		clients: make(map[*websocket.Conn]*clientConn),
		state:   component.StateCreated,
	}, nil
}

// Initialize prepares the WebSocket server
func (m *Monitor) Initialize() error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if m.state != component.StateCreated {
		return errors.WrapInvalid(
			fmt.Errorf("cannot initialize from state %s", m.state),
			"Monitor", "Initialize", "check state")
	}

	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		// Dashboards are served from other origins in development
		CheckOrigin: func(_ *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc(m.cfg.Path, m.handleConnection)
	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", m.cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	m.state = component.StateInitialized
	return nil
}

// Start subscribes to audit rows and serves the WebSocket endpoint
func (m *Monitor) Start(ctx context.Context) error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if m.state != component.StateInitialized {
		return errors.WrapInvalid(
			fmt.Errorf("cannot start from state %s", m.state),
			"Monitor", "Start", "check state")
	}

	if err := m.client.Subscribe(ctx, m.cfg.Subject, m.broadcast); err != nil {
		m.state = component.StateFailed
		return errors.Wrap(err, "Monitor", "Start", "subscribe to audit rows")
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("monitor server failed", "error", err)
		}
	}()

	m.startTime = time.Now()
	m.state = component.StateStarted
	m.logger.Info("monitor started", "port", m.cfg.Port, "path", m.cfg.Path)
	return nil
}

// Stop closes all client connections and shuts the server down
func (m *Monitor) Stop(timeout time.Duration) error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if m.state != component.StateStarted {
		return nil
	}

	m.clientsMu.Lock()
	for conn, cc := range m.clients {
		cc.closed.Store(true)
		_ = conn.Close()
	}
	m.clients = make(map[*websocket.Conn]*clientConn)
	m.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := m.server.Shutdown(ctx); err != nil {
		m.state = component.StateFailed
		return errors.WrapTransient(err, "Monitor", "Stop", "shutdown server")
	}

	m.state = component.StateStopped
	m.logger.Info("monitor stopped")
	return nil
}

// handleConnection upgrades a dashboard connection and keeps it open
// until the client disconnects
func (m *Monitor) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	cc := &clientConn{conn: conn}
	m.clientsMu.Lock()
	m.clients[conn] = cc
	count := len(m.clients)
	m.clientsMu.Unlock()

	if m.metrics != nil {
		m.metrics.clientsConnected.Set(float64(count))
	}
	m.logger.Info("dashboard connected", "remote", r.RemoteAddr, "clients", count)

	// Read loop only consumes control frames; the feed is one-way.
	go func() {
		defer m.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (m *Monitor) removeClient(conn *websocket.Conn) {
	m.clientsMu.Lock()
	if cc, ok := m.clients[conn]; ok {
		cc.closed.Store(true)
		delete(m.clients, conn)
	}
	count := len(m.clients)
	m.clientsMu.Unlock()

	_ = conn.Close()
	if m.metrics != nil {
		m.metrics.clientsConnected.Set(float64(count))
	}
}

// broadcast fans one audit row out to every connected client. Rows are
// forwarded verbatim; undecodable payloads are dropped.
func (m *Monitor) broadcast(_ context.Context, data []byte) {
	var row audit.ExecutionResult
	if err := json.Unmarshal(data, &row); err != nil {
		return
	}

	m.clientsMu.RLock()
	conns := make([]*clientConn, 0, len(m.clients))
	for _, cc := range m.clients {
		conns = append(conns, cc)
	}
	m.clientsMu.RUnlock()

	for _, cc := range conns {
		if cc.closed.Load() {
			continue
		}
		cc.writeMu.Lock()
		_ = cc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := cc.conn.WriteMessage(websocket.TextMessage, data)
		cc.writeMu.Unlock()

		if err != nil {
			m.sendErrs.Add(1)
			if m.metrics != nil {
				m.metrics.sendErrors.Inc()
			}
			m.removeClient(cc.conn)
			continue
		}
		m.rowsSent.Add(1)
		if m.metrics != nil {
			m.metrics.rowsBroadcast.Inc()
		}
	}
}

// Meta returns component metadata
func (m *Monitor) Meta() component.Metadata {
	return component.Metadata{
		Name:        "audit-monitor",
		Type:        "output",
		Description: "WebSocket feed of automation execution results",
		Version:     "1.0.0",
	}
}

// Health reports component health
func (m *Monitor) Health() component.HealthStatus {
	m.stateMu.Lock()
	state := m.state
	m.stateMu.Unlock()

	var uptime time.Duration
	if !m.startTime.IsZero() {
		uptime = time.Since(m.startTime)
	}

	return component.HealthStatus{
		Healthy:    state == component.StateStarted,
		LastCheck:  time.Now(),
		ErrorCount: int(m.sendErrs.Load()),
		Uptime:     uptime,
	}
}

// DataFlow reports broadcast throughput
func (m *Monitor) DataFlow() component.FlowMetrics {
	var rate float64
	if !m.startTime.IsZero() {
		if secs := time.Since(m.startTime).Seconds(); secs > 0 {
			rate = float64(m.rowsSent.Load()) / secs
		}
	}

	var errRate float64
	if total := m.rowsSent.Load() + m.sendErrs.Load(); total > 0 {
		errRate = float64(m.sendErrs.Load()) / float64(total)
	}

	return component.FlowMetrics{
		MessagesPerSecond: rate,
		ErrorRate:         errRate,
		LastActivity:      time.Now(),
	}
}
