// Package monitor implements the core's diagnostics HTTP surface: a read
// -only fiber server exposing liveness, open positions, recent system
// alerts, and aggregate counters: a pure read-only diagnostics API, not
// an interactive dashboard.
package monitor

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"copytrade-core/internal/eventbus"
	"copytrade-core/internal/execution"
	"copytrade-core/internal/insider"
	"copytrade-core/internal/position"
)

const recentAlertsCap = 200

// AlertRecord is a timestamped copy of a published SystemAlert, retained
// for the /alerts endpoint (the bus itself does not retain history).
type AlertRecord struct {
	At      time.Time           `json:"at"`
	Level   eventbus.AlertLevel `json:"level"`
	Source  string              `json:"source"`
	Message string              `json:"message"`
}

// Server is the monitor's fiber app plus the dependencies its routes
// read from. It never mutates core state.
type Server struct {
	app     *fiber.App
	host    string
	port    int
	bus     *eventbus.Bus
	tracker *position.Tracker
	cache   *insider.Cache
	metrics *execution.Metrics

	alerts    []AlertRecord
	alertsIdx int
	unsubAlerts func()
}

// New builds a monitor server and starts draining the bus's system-alert
// channel into a bounded ring buffer for the /alerts endpoint.
func New(host string, port int, bus *eventbus.Bus, tracker *position.Tracker, cache *insider.Cache, metrics *execution.Metrics) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})

	s := &Server{
		app:     app,
		host:    host,
		port:    port,
		bus:     bus,
		tracker: tracker,
		cache:   cache,
		metrics: metrics,
		alerts:  make([]AlertRecord, recentAlertsCap),
	}

	if bus != nil {
		ch, unsub := bus.SubscribeAlerts()
		s.unsubAlerts = unsub
		go s.drainAlerts(ch)
	}

	s.setupRoutes()
	return s
}

func (s *Server) drainAlerts(ch <-chan eventbus.SystemAlert) {
	for a := range ch {
		s.alerts[s.alertsIdx%recentAlertsCap] = AlertRecord{
			At:      time.Now(),
			Level:   a.Level,
			Source:  a.Source,
			Message: a.Message,
		}
		s.alertsIdx++
	}
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "time": time.Now().Unix()})
	})
	s.app.Get("/positions", s.handlePositions)
	s.app.Get("/alerts", s.handleAlerts)
	s.app.Get("/stats", s.handleStats)
}

func (s *Server) handlePositions(c *fiber.Ctx) error {
	if s.tracker == nil {
		return c.JSON(fiber.Map{"positions": []any{}})
	}
	return c.JSON(fiber.Map{"positions": s.tracker.All()})
}

func (s *Server) handleAlerts(c *fiber.Ctx) error {
	count := s.alertsIdx
	if count > recentAlertsCap {
		count = recentAlertsCap
	}
	out := make([]AlertRecord, 0, count)
	for i := 0; i < count; i++ {
		rec := s.alerts[i]
		if !rec.At.IsZero() {
			out = append(out, rec)
		}
	}
	return c.JSON(fiber.Map{"alerts": out})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	resp := fiber.Map{}
	if s.bus != nil {
		resp["eventbus"] = s.bus.Stats()
	}
	if s.cache != nil {
		resp["insider_cache"] = s.cache.Stats()
	}
	if s.metrics != nil {
		resp["execution"] = s.metrics.Snapshot()
	}
	if s.tracker != nil {
		resp["open_positions"] = s.tracker.OpenCount()
	}
	return c.JSON(resp)
}

// Start blocks serving the monitor HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	log.Info().Str("addr", addr).Msg("monitor: starting diagnostics server")
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server and unsubscribes from the bus.
func (s *Server) Shutdown() error {
	if s.unsubAlerts != nil {
		s.unsubAlerts()
	}
	return s.app.Shutdown()
}
