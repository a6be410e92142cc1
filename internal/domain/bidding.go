package domain

import "time"

// BiddingMode selects how a session picks its winner.
type BiddingMode string

const (
	// BiddingModeSealed collects bids silently and selects at close.
	BiddingModeSealed BiddingMode = "sealed"
	// BiddingModeFCFS accepts the first valid bid that reserves its courier.
	BiddingModeFCFS BiddingMode = "fcfs"
)

// SessionStatus represents the state of a bidding session.
type SessionStatus string

const (
	SessionStatusActive        SessionStatus = "active"
	SessionStatusClosedMatched SessionStatus = "closed_matched"
	SessionStatusClosedExpired SessionStatus = "closed_expired"
	SessionStatusCancelled     SessionStatus = "cancelled"
)

// BidStatus represents the state of a single bid.
type BidStatus string

const (
	BidStatusPending  BidStatus = "pending"
	BidStatusAccepted BidStatus = "accepted"
	BidStatusRejected BidStatus = "rejected"
	BidStatusExpired  BidStatus = "expired"
)

// Bid is a courier's offer to serve a request.
type Bid struct {
	ID          string        `json:"id"`
	SessionID   string        `json:"session_id"`
	CourierID   string        `json:"courier_id"`
	Fee         int64         `json:"fee"`
	ETA         time.Duration `json:"eta"`
	SubmittedAt time.Time     `json:"submitted_at"`
	Seq         uint64        `json:"seq"`
	Status      BidStatus     `json:"status"`
	Reason      string        `json:"reason,omitempty"`
}

// BiddingSession is a time-bounded negotiation round for one request.
type BiddingSession struct {
	ID              string        `json:"id"`
	RequestID       string        `json:"request_id"`
	Revision        int           `json:"revision"`
	Mode            BiddingMode   `json:"mode"`
	MinimumBid      int64         `json:"minimum_bid"`
	QuotedPrice     int64         `json:"quoted_price"`
	TargetETA       time.Duration `json:"target_eta,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	ExpiresAt       time.Time     `json:"expires_at"`
	Bids            []Bid         `json:"bids"`
	Status          SessionStatus `json:"status"`
	WinnerCourierID string        `json:"winner_courier_id,omitempty"`
	WinningFee      int64         `json:"winning_fee,omitempty"`
	ClosedAt        time.Time     `json:"closed_at,omitempty"`
}

// Clone returns a deep copy of the session.
func (s BiddingSession) Clone() BiddingSession {
	s.Bids = append([]Bid(nil), s.Bids...)
	return s
}
