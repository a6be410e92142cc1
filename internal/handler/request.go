package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/dispatch"
	"dispatch/internal/domain"
	"dispatch/internal/eta"
	"dispatch/internal/matching"
)

// RequestHandler handles HTTP requests for delivery requests.
type RequestHandler struct {
	service *dispatch.Service
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(service *dispatch.Service) *RequestHandler {
	return &RequestHandler{service: service}
}

// SubmitRequestBody is the HTTP request body for submitting a delivery.
type SubmitRequestBody struct {
	ID               string       `json:"id,omitempty"`
	RestaurantID     string       `json:"restaurant_id"`
	CustomerID       string       `json:"customer_id"`
	Pickup           domain.Place `json:"pickup"`
	Dropoff          domain.Place `json:"dropoff"`
	OrderValue       int64        `json:"order_value"`
	Priority         string       `json:"priority,omitempty"`
	RequiredVehicles []string     `json:"required_vehicles,omitempty"`
	PrepTimeMinutes  float64      `json:"prep_time_minutes,omitempty"`
	WindowStart      *time.Time   `json:"window_start,omitempty"`
	WindowEnd        *time.Time   `json:"window_end,omitempty"`
}

// CancelRequestBody is the HTTP request body for cancelling a delivery.
type CancelRequestBody struct {
	Reason string `json:"reason,omitempty"`
}

// RequestResponse is the HTTP response for a delivery request.
type RequestResponse struct {
	ID           string             `json:"id"`
	RestaurantID string             `json:"restaurant_id"`
	CustomerID   string             `json:"customer_id"`
	Pickup       domain.Place       `json:"pickup"`
	Dropoff      domain.Place       `json:"dropoff"`
	OrderValue   int64              `json:"order_value"`
	Priority     string             `json:"priority"`
	Status       string             `json:"status"`
	CourierID    string             `json:"courier_id,omitempty"`
	Revision     int                `json:"revision"`
	Window       *domain.TimeWindow `json:"window,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Failure      *ErrorResponse     `json:"failure,omitempty"`
}

// SubmitResponse is the HTTP response for a dispatched request.
type SubmitResponse struct {
	Request    RequestResponse           `json:"request"`
	Quote      domain.PricingQuote       `json:"quote"`
	ETA        eta.Estimate              `json:"eta"`
	Assignment *matching.Assignment      `json:"assignment,omitempty"`
	Session    *domain.BiddingSession    `json:"session,omitempty"`
	Route      *domain.RouteOptimization `json:"route,omitempty"`
}

// Submit handles POST /v1/requests
func (h *RequestHandler) Submit(c *gin.Context) {
	var body SubmitRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	req := domain.DeliveryRequest{
		ID:           body.ID,
		RestaurantID: body.RestaurantID,
		CustomerID:   body.CustomerID,
		Pickup:       body.Pickup,
		Dropoff:      body.Dropoff,
		OrderValue:   body.OrderValue,
		Priority:     domain.Priority(body.Priority),
		PrepTime:     time.Duration(body.PrepTimeMinutes * float64(time.Minute)),
	}
	for _, v := range body.RequiredVehicles {
		req.RequiredVehicles = append(req.RequiredVehicles, domain.VehicleType(v))
	}
	if body.WindowStart != nil || body.WindowEnd != nil {
		if body.WindowStart == nil || body.WindowEnd == nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "window_start and window_end must be set together"})
			return
		}
		req.Window = &domain.TimeWindow{Start: *body.WindowStart, End: *body.WindowEnd}
	}

	out, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		// The request is stored and stays pending when nobody is eligible.
		if errors.Is(err, matching.ErrNoEligibleCourier) && out.Request.ID != "" {
			resp := toSubmitResponse(out)
			failure := errorBody(err)
			resp.Request.Failure = &failure
			respondJSON(c, http.StatusAccepted, resp)
			return
		}
		respondError(c, err)
		return
	}

	code := http.StatusCreated
	if out.Assignment == nil {
		code = http.StatusAccepted
	}
	respondJSON(c, code, toSubmitResponse(out))
}

// Get handles GET /v1/requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	id := c.Param("id")
	req, err := h.service.Request(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := toRequestResponse(req)
	if failure := h.service.LastFailure(id); failure != nil {
		body := errorBody(failure)
		resp.Failure = &body
	}
	respondJSON(c, http.StatusOK, resp)
}

// Quote handles GET /v1/requests/:id/quote
func (h *RequestHandler) Quote(c *gin.Context) {
	q, err := h.service.Quote(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, q)
}

// Cancel handles POST /v1/requests/:id/cancel
func (h *RequestHandler) Cancel(c *gin.Context) {
	var body CancelRequestBody
	// Body is optional.
	_ = c.ShouldBindJSON(&body)

	id := c.Param("id")
	if err := h.service.Cancel(c.Request.Context(), id, body.Reason); err != nil {
		respondError(c, err)
		return
	}
	req, err := h.service.Request(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRequestResponse(req))
}

// Complete handles POST /v1/requests/:id/complete
func (h *RequestHandler) Complete(c *gin.Context) {
	req, err := h.service.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRequestResponse(req))
}

// Resubmit handles POST /v1/requests/:id/resubmit
func (h *RequestHandler) Resubmit(c *gin.Context) {
	out, err := h.service.Resubmit(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, matching.ErrNoEligibleCourier) {
			resp := toSubmitResponse(out)
			failure := errorBody(err)
			resp.Request.Failure = &failure
			respondJSON(c, http.StatusAccepted, resp)
			return
		}
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toSubmitResponse(out))
}

func toRequestResponse(r domain.DeliveryRequest) RequestResponse {
	return RequestResponse{
		ID:           r.ID,
		RestaurantID: r.RestaurantID,
		CustomerID:   r.CustomerID,
		Pickup:       r.Pickup,
		Dropoff:      r.Dropoff,
		OrderValue:   r.OrderValue,
		Priority:     string(r.Priority),
		Status:       string(r.Status),
		CourierID:    r.CourierID,
		Revision:     r.Revision,
		Window:       r.Window,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func toSubmitResponse(out dispatch.Outcome) SubmitResponse {
	return SubmitResponse{
		Request:    toRequestResponse(out.Request),
		Quote:      out.Quote,
		ETA:        out.ETA,
		Assignment: out.Assignment,
		Session:    out.Session,
		Route:      out.Route,
	}
}
