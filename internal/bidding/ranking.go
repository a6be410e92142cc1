package bidding

import (
	"time"

	"github.com/google/btree"
)

// rankedBid indexes a pending sealed bid by value.
type rankedBid struct {
	fee int64
	eta time.Duration
	seq uint64
	idx int // position in the session's Bids
}

// betterBid orders bids best first: higher fee, then faster ETA, then
// earlier sequence number.
func betterBid(a, b rankedBid) bool {
	if a.fee != b.fee {
		return a.fee > b.fee
	}
	if a.eta != b.eta {
		return a.eta < b.eta
	}
	return a.seq < b.seq
}

func newRanking() *btree.BTreeG[rankedBid] {
	return btree.NewG(8, betterBid)
}
