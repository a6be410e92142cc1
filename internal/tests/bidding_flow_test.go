package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch/internal/bidding"
	"dispatch/internal/domain"
	"dispatch/internal/handler"
)

// ──────────────────────────────────────────────
// 4. BIDDING
// ──────────────────────────────────────────────

func TestBidding_WeakCouriers_SealedWinnerAssigned(t *testing.T) {
	h := newHarness(t)
	h.courier("c1", weakStats)
	h.courier("c2", weakStats)

	code, resp := h.submit("r1", "normal")
	require.Equal(t, http.StatusAccepted, code)
	require.NotNil(t, resp.Session)
	assert.Nil(t, resp.Assignment)
	assert.Equal(t, "bidding", resp.Request.Status)
	assert.Equal(t, domain.BiddingModeSealed, resp.Session.Mode)
	assert.Equal(t, map[string]int{"c1": 1, "c2": 1}, h.notifier.OfferedTo())

	sessionPath := "/v1/sessions/" + resp.Session.ID
	fee := resp.Quote.FinalPrice

	var bid domain.Bid
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, sessionPath+"/bids",
		handler.SubmitBidRequest{CourierID: "c1", Fee: fee, ETAMinutes: 20}, &bid))
	assert.Equal(t, "c1", bid.CourierID)
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, sessionPath+"/bids",
		handler.SubmitBidRequest{CourierID: "c2", Fee: fee + 50, ETAMinutes: 25}, nil))

	var session domain.BiddingSession
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, sessionPath+"/close", nil, &session))
	assert.Equal(t, domain.SessionStatusClosedMatched, session.Status)
	assert.Equal(t, "c2", session.WinnerCourierID)
	assert.Equal(t, fee+50, session.WinningFee)

	got := h.request("r1")
	assert.Equal(t, "assigned", got.Status)
	assert.Equal(t, "c2", got.CourierID)

	// The window is over for everyone else.
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, sessionPath+"/bids",
		handler.SubmitBidRequest{CourierID: "c1", Fee: fee, ETAMinutes: 10}, nil))
}

func TestBidding_SuperUrgent_FirstBidWins(t *testing.T) {
	h := newHarness(t)
	h.courier("c1", weakStats)

	_, resp := h.submit("r1", "super_urgent")
	require.NotNil(t, resp.Session)
	assert.Equal(t, domain.BiddingModeFCFS, resp.Session.Mode)

	var bid domain.Bid
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/v1/sessions/"+resp.Session.ID+"/bids",
		handler.SubmitBidRequest{CourierID: "c1", Fee: resp.Quote.FinalPrice, ETAMinutes: 12}, &bid))
	assert.Equal(t, domain.BidStatusAccepted, bid.Status)

	got := h.request("r1")
	assert.Equal(t, "assigned", got.Status)
	assert.Equal(t, "c1", got.CourierID)
}

func TestBidding_LowBid_Rejected(t *testing.T) {
	h := newHarness(t)
	h.courier("c1", weakStats)

	_, resp := h.submit("r1", "normal")
	require.NotNil(t, resp.Session)

	var errResp handler.ErrorResponse
	code := h.do(http.MethodPost, "/v1/sessions/"+resp.Session.ID+"/bids",
		handler.SubmitBidRequest{CourierID: "c1", Fee: 1, ETAMinutes: 20}, &errResp)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.NotEmpty(t, errResp.Error)
}

func TestBidding_WindowExpires_RequestExpiredThenResubmitted(t *testing.T) {
	h := newHarness(t)
	h.courier("c1", weakStats)

	_, resp := h.submit("r1", "normal")
	require.NotNil(t, resp.Session)

	h.clock.Advance(bidding.DefaultSealedWindow)

	got := h.request("r1")
	assert.Equal(t, "expired", got.Status)
	require.NotNil(t, got.Failure)
	assert.Equal(t, "bid_window_expired", got.Failure.Reason)

	var again handler.SubmitResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/requests/r1/resubmit", nil, &again))
	assert.Equal(t, "bidding", again.Request.Status)
	assert.Equal(t, 2, again.Request.Revision)
	require.NotNil(t, again.Session)
	assert.Equal(t, 2, again.Session.Revision)
}

func TestBidding_CancelledRequest_SessionCancelled(t *testing.T) {
	h := newHarness(t)
	h.courier("c1", weakStats)

	_, resp := h.submit("r1", "normal")
	require.NotNil(t, resp.Session)

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/requests/r1/cancel", nil, nil))

	var session domain.BiddingSession
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/v1/sessions/"+resp.Session.ID, nil, &session))
	assert.Equal(t, domain.SessionStatusCancelled, session.Status)
	assert.Equal(t, "cancelled", h.request("r1").Status)
}

func TestSession_Unknown_NotFound(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/sessions/missing", nil, nil))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/v1/sessions/missing/bids",
		handler.SubmitBidRequest{CourierID: "c1", Fee: 1000, ETAMinutes: 10}, nil))
}
