package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"dispatch/internal/app"
	"dispatch/internal/config"
	"dispatch/internal/domain"
	"dispatch/internal/events"
	"dispatch/internal/handler"
	"dispatch/internal/testutil"
)

var (
	start      = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	restaurant = domain.Location{Lat: 25.2000, Lng: 55.2700}
	customer   = domain.Location{Lat: 25.2100, Lng: 55.2700}
)

// minAcceptScore sits between the rule-based score of a strong courier
// next to the restaurant and that of a weak one, so tests pick automatic
// matching or bidding through the courier's stats.
const minAcceptScore = 0.9

var (
	strongStats = domain.CourierStats{OnTimeRate: 0.9, Rating: 4.9, CancellationRate: 0.05}
	weakStats   = domain.CourierStats{OnTimeRate: 0.2, Rating: 2, CancellationRate: 0.5}
)

type harness struct {
	t        *testing.T
	router   *gin.Engine
	engine   *app.Engine
	clock    *testutil.Clock
	notifier *testutil.Notifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Dispatch.MinAcceptScore = minAcceptScore

	clock := testutil.NewClock(start)
	notifier := testutil.NewNotifier()
	engine, err := app.NewEngine(context.Background(), cfg, app.MemoryStores(), app.External{
		Notifier: notifier,
		Clock:    clock,
		Now:      clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Bus.Close)

	reg := prometheus.NewRegistry()
	_, err = events.NewPromSink(reg)
	require.NoError(t, err)

	router := app.NewRouter(app.RouterDeps{
		RequestHandler: handler.NewRequestHandler(engine.Service),
		CourierHandler: handler.NewCourierHandler(engine.Service),
		SessionHandler: handler.NewSessionHandler(engine.Service),
		IssueHandler:   handler.NewIssueHandler(engine.Service),
		Metrics:        reg,
	})

	return &harness{t: t, router: router, engine: engine, clock: clock, notifier: notifier}
}

// do sends a JSON request and decodes the response into out when it is
// non-nil. It returns the status code.
func (h *harness) do(method, path string, body, out any) int {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func (h *harness) courier(id string, stats domain.CourierStats) {
	h.t.Helper()
	code := h.do(http.MethodPost, "/v1/couriers", handler.RegisterCourierRequest{
		ID:       id,
		Name:     "courier " + id,
		Location: domain.Location{Lat: restaurant.Lat + 0.001, Lng: restaurant.Lng},
		Vehicle:  string(domain.VehicleMotorcycle),
		Stats:    stats,
	}, nil)
	require.Equal(h.t, http.StatusOK, code)
}

func (h *harness) move(courierID string, loc domain.Location) handler.LocationResponse {
	h.t.Helper()
	var resp handler.LocationResponse
	code := h.do(http.MethodPost, "/v1/couriers/"+courierID+"/location",
		handler.UpdateLocationRequest{Lat: loc.Lat, Lng: loc.Lng}, &resp)
	require.Equal(h.t, http.StatusOK, code)
	return resp
}

func (h *harness) submit(id, priority string) (int, handler.SubmitResponse) {
	h.t.Helper()
	var resp handler.SubmitResponse
	code := h.do(http.MethodPost, "/v1/requests", handler.SubmitRequestBody{
		ID:              id,
		RestaurantID:    "rest-1",
		CustomerID:      "cust-1",
		Pickup:          domain.Place{Location: restaurant},
		Dropoff:         domain.Place{Location: customer},
		OrderValue:      4500,
		Priority:        priority,
		PrepTimeMinutes: 10,
	}, &resp)
	return code, resp
}

func (h *harness) request(id string) handler.RequestResponse {
	h.t.Helper()
	var resp handler.RequestResponse
	require.Equal(h.t, http.StatusOK, h.do(http.MethodGet, "/v1/requests/"+id, nil, &resp))
	return resp
}

// south returns a point meters south of loc.
func south(loc domain.Location, meters float64) domain.Location {
	return domain.Location{Lat: loc.Lat - meters/111195, Lng: loc.Lng}
}
