package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/dispatch"
	"dispatch/internal/domain"
)

// CourierHandler handles HTTP requests for couriers.
type CourierHandler struct {
	service *dispatch.Service
}

// NewCourierHandler creates a new CourierHandler.
func NewCourierHandler(service *dispatch.Service) *CourierHandler {
	return &CourierHandler{service: service}
}

// RegisterCourierRequest is the HTTP request body for courier registration.
type RegisterCourierRequest struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Location    domain.Location           `json:"location"`
	Vehicle     string                    `json:"vehicle"`
	Capacity    int                       `json:"capacity,omitempty"`
	Stats       domain.CourierStats       `json:"stats"`
	Available   *bool                     `json:"available,omitempty"`
	Preferences domain.CourierPreferences `json:"preferences"`
}

// UpdateLocationRequest is the HTTP request body for updating courier location.
type UpdateLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// AvailabilityRequest is the HTTP request body for toggling availability.
type AvailabilityRequest struct {
	Available bool `json:"available"`
}

// CourierResponse is the HTTP response for courier data.
type CourierResponse struct {
	ID             string                    `json:"id"`
	Name           string                    `json:"name"`
	Location       domain.Location           `json:"location"`
	LastUpdate     time.Time                 `json:"last_update"`
	Vehicle        string                    `json:"vehicle"`
	Capacity       int                       `json:"capacity"`
	CurrentLoad    int                       `json:"current_load"`
	ActiveRequests []string                  `json:"active_requests"`
	Available      bool                      `json:"available"`
	Stats          domain.CourierStats       `json:"stats"`
	Preferences    domain.CourierPreferences `json:"preferences"`
}

// LocationResponse lists the geofence areas a location update entered.
type LocationResponse struct {
	CourierID string   `json:"courier_id"`
	Triggered []string `json:"triggered"`
}

// Register handles POST /v1/couriers
func (h *CourierHandler) Register(c *gin.Context) {
	var req RegisterCourierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.ID == "" || req.Vehicle == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "id and vehicle are required"})
		return
	}

	available := true
	if req.Available != nil {
		available = *req.Available
	}

	courier, err := h.service.UpsertCourier(c.Request.Context(), domain.CourierProfile{
		ID:          req.ID,
		Name:        req.Name,
		Location:    req.Location,
		Vehicle:     domain.VehicleType(req.Vehicle),
		Capacity:    req.Capacity,
		Stats:       req.Stats,
		Available:   available,
		Preferences: req.Preferences,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toCourierResponse(courier))
}

// UpdateLocation handles POST /v1/couriers/:id/location
func (h *CourierHandler) UpdateLocation(c *gin.Context) {
	courierID := c.Param("id")

	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	triggers, err := h.service.ReportLocation(c.Request.Context(), courierID, req.Lat, req.Lng)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := LocationResponse{CourierID: courierID, Triggered: make([]string, 0, len(triggers))}
	for _, t := range triggers {
		resp.Triggered = append(resp.Triggered, t.Area.ID)
	}
	respondJSON(c, http.StatusOK, resp)
}

// SetAvailability handles POST /v1/couriers/:id/availability
func (h *CourierHandler) SetAvailability(c *gin.Context) {
	var req AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.service.SetAvailability(c.Request.Context(), c.Param("id"), req.Available); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Route handles GET /v1/couriers/:id/route
func (h *CourierHandler) Route(c *gin.Context) {
	route, err := h.service.Route(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, route)
}

func toCourierResponse(p domain.CourierProfile) CourierResponse {
	active := p.ActiveRequests
	if active == nil {
		active = []string{}
	}
	return CourierResponse{
		ID:             p.ID,
		Name:           p.Name,
		Location:       p.Location,
		LastUpdate:     p.LastUpdate,
		Vehicle:        string(p.Vehicle),
		Capacity:       p.Capacity,
		CurrentLoad:    p.CurrentLoad,
		ActiveRequests: active,
		Available:      p.Available,
		Stats:          p.Stats,
		Preferences:    p.Preferences,
	}
}
