package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/dispatch"
	"dispatch/internal/domain"
)

// IssueHandler handles HTTP requests for delivery issues.
type IssueHandler struct {
	service *dispatch.Service
}

// NewIssueHandler creates a new IssueHandler.
func NewIssueHandler(service *dispatch.Service) *IssueHandler {
	return &IssueHandler{service: service}
}

// ReportIssueRequest is the HTTP request body for reporting an issue.
type ReportIssueRequest struct {
	CourierID   string          `json:"courier_id"`
	RequestID   string          `json:"request_id"`
	Type        string          `json:"type"`
	Severity    string          `json:"severity"`
	Location    domain.Location `json:"location"`
	Description string          `json:"description"`
}

// Report handles POST /v1/issues
func (h *IssueHandler) Report(c *gin.Context) {
	var req ReportIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	resolution, err := h.service.ReportIssue(c.Request.Context(), domain.DeliveryIssue{
		CourierID:   req.CourierID,
		RequestID:   req.RequestID,
		Type:        domain.IssueType(req.Type),
		Severity:    domain.Severity(req.Severity),
		Location:    req.Location,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, resolution)
}
