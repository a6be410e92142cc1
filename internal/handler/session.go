package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/dispatch"
)

// SessionHandler handles HTTP requests for bidding sessions.
type SessionHandler struct {
	service *dispatch.Service
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(service *dispatch.Service) *SessionHandler {
	return &SessionHandler{service: service}
}

// SubmitBidRequest is the HTTP request body for a courier bid.
type SubmitBidRequest struct {
	CourierID  string  `json:"courier_id"`
	Fee        int64   `json:"fee"`
	ETAMinutes float64 `json:"eta_minutes"`
}

// SubmitBid handles POST /v1/sessions/:id/bids
func (h *SessionHandler) SubmitBid(c *gin.Context) {
	var req SubmitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if req.CourierID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "courier_id is required"})
		return
	}

	eta := time.Duration(req.ETAMinutes * float64(time.Minute))
	bid, err := h.service.SubmitBid(c.Request.Context(), c.Param("id"), req.CourierID, req.Fee, eta)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, bid)
}

// Get handles GET /v1/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.service.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, session)
}

// Close handles POST /v1/sessions/:id/close
func (h *SessionHandler) Close(c *gin.Context) {
	session, err := h.service.CloseSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, session)
}
