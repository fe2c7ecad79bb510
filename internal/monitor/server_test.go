package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"copytrade-core/internal/domain"
	"copytrade-core/internal/eventbus"
	"copytrade-core/internal/execution"
	"copytrade-core/internal/insider"
	"copytrade-core/internal/position"
)

func TestHealthEndpointReportsOK(t *testing.T) {
	s := New("127.0.0.1", 0, nil, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestPositionsEndpointReturnsOpenPositions(t *testing.T) {
	tracker := position.NewTracker(filepath.Join(t.TempDir(), "mirror.json"))
	tracker.Open(&domain.Position{Mint: "M", Status: domain.PositionOpen})

	s := New("127.0.0.1", 0, nil, tracker, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/positions", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)

	var body map[string][]domain.Position
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body["positions"], 1)
}

func TestAlertsEndpointDrainsBusAlerts(t *testing.T) {
	bus := eventbus.New()
	s := New("127.0.0.1", 0, bus, nil, nil, nil)

	bus.PublishAlert(eventbus.SystemAlert{Level: eventbus.AlertWarn, Source: "test", Message: "hello"})

	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
		resp, err := s.app.Test(req, -1)
		if err != nil {
			return false
		}
		var body map[string][]AlertRecord
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false
		}
		return len(body["alerts"]) == 1
	}, 1_000_000_000, 10_000_000)
}

func TestStatsEndpointAggregatesSubsystems(t *testing.T) {
	bus := eventbus.New()
	metrics := execution.NewMetrics()
	cache := insider.NewCache(insider.DefaultCacheConfig())

	s := New("127.0.0.1", 0, bus, nil, cache, metrics)
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body, "eventbus")
	require.Contains(t, body, "insider_cache")
	require.Contains(t, body, "execution")
}
