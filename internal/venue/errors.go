package venue

import (
	"errors"
	"fmt"
	"net/http"

	"crossarb/pkg/types"
)

// Kind classifies an adapter failure. The executor and orchestrator branch
// on kinds, never on error strings.
type Kind int

const (
	// KindTransport covers network failures and 5xx responses.
	KindTransport Kind = iota + 1
	// KindRateLimit is an HTTP 429. Refresh backs off 30s; the quote
	// fan-out drops the pair for the tick.
	KindRateLimit
	// KindAuth is a 401/403. Pauses the executor for that venue until
	// restart; the scanner keeps running.
	KindAuth
	// KindProtocol is a response that parsed but made no sense.
	KindProtocol
	// KindOrderRejected is a venue refusing an order.
	KindOrderRejected
	// KindInsufficientLiquidity means the book was too thin even after a
	// ladder walk.
	KindInsufficientLiquidity
	// KindBalanceLow means the venue balance cannot cover the minimum order.
	KindBalanceLow
	// KindValidation is a failed sanity check, e.g. a spread that turned
	// negative after blending.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRateLimit:
		return "rate_limit"
	case KindAuth:
		return "auth"
	case KindProtocol:
		return "protocol"
	case KindOrderRejected:
		return "order_rejected"
	case KindInsufficientLiquidity:
		return "insufficient_liquidity"
	case KindBalanceLow:
		return "balance_low"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is the failure type returned by venue adapters.
type Error struct {
	Venue  types.Venue
	Op     string // adapter operation, e.g. "place_taker"
	Kind   Kind
	Status int    // HTTP status when the venue answered, 0 otherwise
	Detail string // venue-provided message or local description
	Err    error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("venue %s: %s: %s", e.Venue, e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errf builds an Error with a formatted detail message.
func Errf(v types.Venue, op string, kind Kind, format string, args ...any) *Error {
	return &Error{Venue: v, Op: op, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches taxonomy metadata to an underlying error.
func Wrap(v types.Venue, op string, kind Kind, err error) *Error {
	return &Error{Venue: v, Op: op, Kind: kind, Err: err}
}

// FromReadStatus maps a non-2xx status on a read endpoint to an Error.
func FromReadStatus(v types.Venue, op string, status int, body string) *Error {
	return &Error{Venue: v, Op: op, Kind: kindForStatus(status, KindProtocol), Status: status, Detail: truncate(body)}
}

// FromOrderStatus maps a non-2xx status on an order endpoint to an Error.
// Anything that is not a rate limit or auth failure is a rejection; the
// original status is kept so callers can special-case conflicts.
func FromOrderStatus(v types.Venue, op string, status int, body string) *Error {
	return &Error{Venue: v, Op: op, Kind: kindForStatus(status, KindOrderRejected), Status: status, Detail: truncate(body)}
}

func kindForStatus(status int, fallback Kind) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status >= 500:
		return KindTransport
	default:
		return fallback
	}
}

func truncate(s string) string {
	const max = 300
	if len(s) > max {
		return s[:max]
	}
	return s
}

// KindOf extracts the taxonomy kind from any error in the chain, or 0.
func KindOf(err error) Kind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return 0
}

// IsRateLimit reports whether err is an HTTP 429 from either venue.
func IsRateLimit(err error) bool { return KindOf(err) == KindRateLimit }

// IsAuth reports whether err is a credential failure.
func IsAuth(err error) bool { return KindOf(err) == KindAuth }

// IsConflict reports whether err is an order rejection caused by a
// conflicting resting order (HTTP 409). These get an extended cooldown.
func IsConflict(err error) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Status == http.StatusConflict
}
