// ratelimit.go groups per-category rate limiters for one venue's REST API.
//
// Both venues meter reads and order mutations separately, so each adapter
// carries one Limits value and calls the matching limiter before every
// request. Waits are context-aware: a cancelled tick abandons the request
// instead of queueing stale work.
package venue

import (
	"golang.org/x/time/rate"
)

// Limits holds the per-category token buckets for one venue.
type Limits struct {
	Read  *rate.Limiter // market lists, quotes, order books, fills, balance
	Write *rate.Limiter // order placement and cancels
}

// NewLimits creates limiters with the given steady rates. Burst is one
// second of allowance so short fan-out spikes do not queue behind the
// steady rate.
func NewLimits(readPerSec, writePerSec float64) Limits {
	readBurst := int(readPerSec)
	if readBurst < 1 {
		readBurst = 1
	}
	writeBurst := int(writePerSec)
	if writeBurst < 1 {
		writeBurst = 1
	}
	return Limits{
		Read:  rate.NewLimiter(rate.Limit(readPerSec), readBurst),
		Write: rate.NewLimiter(rate.Limit(writePerSec), writeBurst),
	}
}
