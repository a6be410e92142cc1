package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/domain"
	"dispatch/internal/handler"
	"dispatch/internal/notify"
)

// ──────────────────────────────────────────────
// 1. SUBMISSION AND AUTOMATIC MATCHING
// ──────────────────────────────────────────────

func TestSubmit_StrongCourier_AssignsAutomatically(t *testing.T) {
	h := newHarness(t)
	h.courier("c1", strongStats)

	code, resp := h.submit("r1", "normal")
	require.Equal(t, http.StatusCreated, code)

	require.NotNil(t, resp.Assignment)
	assert.Equal(t, "c1", resp.Assignment.CourierID)
	assert.Equal(t, "rule_based", resp.Assignment.Strategy)
	assert.Nil(t, resp.Session)
	assert.Equal(t, "assigned", resp.Request.Status)
	assert.Equal(t, 1, resp.Request.Revision)
	assert.Positive(t, resp.Quote.FinalPrice)
	require.NotNil(t, resp.Route)
	assert.Len(t, resp.Route.Waypoints, 2)

	got := h.request("r1")
	assert.Equal(t, "assigned", got.Status)
	assert.Equal(t, "c1", got.CourierID)
	assert.Nil(t, got.Failure)
}

func TestSubmit_NoCouriers_AcceptedWithFailure(t *testing.T) {
	h := newHarness(t)

	code, resp := h.submit("r1", "normal")
	require.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "pending", resp.Request.Status)
	require.NotNil(t, resp.Request.Failure)
	assert.NotEmpty(t, resp.Request.Failure.Reason)

	got := h.request("r1")
	assert.Equal(t, "pending", got.Status)
	require.NotNil(t, got.Failure)

	// A courier comes online; resubmitting prices a new revision.
	h.courier("c1", strongStats)
	var again handler.SubmitResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/requests/r1/resubmit", nil, &again))
	assert.Equal(t, "assigned", again.Request.Status)
	assert.Equal(t, 2, again.Request.Revision)
	assert.Equal(t, 2, again.Quote.Revision)
	assert.Nil(t, h.request("r1").Failure)
}

func TestSubmit_InvalidInput_Rejected(t *testing.T) {
	h := newHarness(t)

	testCases := []struct {
		name string
		body any
	}{
		{name: "malformed body", body: "not an object"},
		{name: "missing restaurant", body: handler.SubmitRequestBody{
			CustomerID: "cust-1",
			Pickup:     domain.Place{Location: restaurant},
			Dropoff:    domain.Place{Location: customer},
		}},
		{name: "unknown priority", body: handler.SubmitRequestBody{
			RestaurantID: "rest-1",
			CustomerID:   "cust-1",
			Pickup:       domain.Place{Location: restaurant},
			Dropoff:      domain.Place{Location: customer},
			Priority:     "whenever",
		}},
		{name: "out of range pickup", body: handler.SubmitRequestBody{
			RestaurantID: "rest-1",
			CustomerID:   "cust-1",
			Pickup:       domain.Place{Location: domain.Location{Lat: 123, Lng: 55}},
			Dropoff:      domain.Place{Location: customer},
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var resp handler.ErrorResponse
			code := h.do(http.MethodPost, "/v1/requests", tc.body, &resp)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestGetRequest_Unknown_NotFound(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/requests/missing", nil, nil))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/requests/missing/quote", nil, nil))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/v1/requests/missing/cancel", nil, nil))
}

func TestQuote_MatchesSubmittedRevision(t *testing.T) {
	h := newHarness(t)
	h.courier("c1", strongStats)

	_, resp := h.submit("r1", "express")

	var quote domain.PricingQuote
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/requests/r1/quote", nil, &quote))
	assert.Equal(t, resp.Quote.FinalPrice, quote.FinalPrice)
	assert.Equal(t, "r1", quote.RequestID)
	assert.Equal(t, 1, quote.Revision)
}

// ──────────────────────────────────────────────
// 2. CANCELLATION
// ──────────────────────────────────────────────

func TestCancel_Assigned_ReleasesCourier(t *testing.T) {
	h := newHarness(t)
	h.courier("c1", strongStats)
	h.submit("r1", "normal")

	var resp handler.RequestResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/requests/r1/cancel",
		handler.CancelRequestBody{Reason: "restaurant closed"}, &resp))
	assert.Equal(t, "cancelled", resp.Status)

	c, ok := h.engine.Registry.Get("c1")
	require.True(t, ok)
	assert.Empty(t, c.ActiveRequests)

	// A second cancel is a conflict, not a silent success.
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/v1/requests/r1/cancel", nil, nil))
}

func TestComplete_Pending_Conflict(t *testing.T) {
	h := newHarness(t)
	h.submit("r1", "normal")

	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/v1/requests/r1/complete", nil, nil))
}

// ──────────────────────────────────────────────
// 3. GEOFENCE DRIVEN LIFECYCLE
// ──────────────────────────────────────────────

func TestLocationUpdates_DriveDeliveryToCompletion(t *testing.T) {
	h := newHarness(t)
	h.courier("c1", strongStats)
	h.submit("r1", "normal")

	entered := h.move("c1", restaurant)
	assert.ElementsMatch(t, []string{"r1:pickup_approach", "r1:pickup_arrival"}, entered.Triggered)
	assert.Equal(t, "assigned", h.request("r1").Status)

	h.move("c1", south(customer, 300))
	assert.Equal(t, "in_transit", h.request("r1").Status)

	h.move("c1", customer)
	assert.Equal(t, "delivered", h.request("r1").Status)

	assert.Equal(t, []notify.NotificationType{
		notify.NotificationCourierAssigned,
		notify.NotificationCourierApproaching,
		notify.NotificationCourierArrived,
		notify.NotificationDelivered,
	}, h.notifier.CustomerTypes("cust-1"))

	// Completing twice is a no-op.
	var resp handler.RequestResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/requests/r1/complete", nil, &resp))
	assert.Equal(t, "delivered", resp.Status)
}

func TestLocationUpdate_UnknownCourier_NotFound(t *testing.T) {
	h := newHarness(t)

	code := h.do(http.MethodPost, "/v1/couriers/ghost/location",
		handler.UpdateLocationRequest{Lat: restaurant.Lat, Lng: restaurant.Lng}, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRoute_AssignedCourier_HasPickupAndDropoff(t *testing.T) {
	h := newHarness(t)
	h.courier("c1", strongStats)
	h.submit("r1", "normal")

	var route domain.RouteOptimization
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/couriers/c1/route", nil, &route))
	assert.Equal(t, "c1", route.CourierID)
	assert.Len(t, route.Waypoints, 2)
}
