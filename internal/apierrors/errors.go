// Package apierrors defines the semantic error kinds shared by every layer
// of the auction engine, and maps them to HTTP status codes at the
// transport boundary.
package apierrors

import (
	"errors"
	"net/http"
)

// Business/validation errors — user-visible 400s.
var (
	ErrAuctionNotActive  = errors.New("auction is not active")
	ErrNoActiveRound     = errors.New("no active round")
	ErrRoundEnded        = errors.New("round has ended")
	ErrBelowMinimum      = errors.New("bid amount below minimum")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Lookup errors — 404.
var (
	ErrNotFound = errors.New("not found")
)

// Infrastructure errors — 503 for clients, retried for background jobs.
var (
	ErrLockTimeout = errors.New("lock acquisition timed out")
	ErrTransient   = errors.New("transient failure")
)

// Conflict — 409, a CAS (compare-and-set) loss. The caller should treat
// this as "someone else already did it" rather than retry blindly.
var ErrConflict = errors.New("conflict")

// Invariant signals a detected violation of the money invariant (I-MONEY).
// It is fatal for the affected aggregate: settlement halts and the
// operator must intervene; the rest of the system keeps running.
var ErrInvariant = errors.New("invariant violation")

// MapToHTTP maps a semantic error to an HTTP status code and a short
// operator-facing message, mirroring the teacher's MapErrorToHTTP.
func MapToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, ErrAuctionNotActive):
		return http.StatusBadRequest, "auction is not active"
	case errors.Is(err, ErrNoActiveRound):
		return http.StatusBadRequest, "no active round"
	case errors.Is(err, ErrRoundEnded):
		return http.StatusBadRequest, "round has ended"
	case errors.Is(err, ErrBelowMinimum):
		return http.StatusBadRequest, "bid amount below minimum"
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusBadRequest, "insufficient funds"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, ErrLockTimeout):
		return http.StatusServiceUnavailable, "service busy, try again"
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable, "temporary failure"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ErrInvariant):
		return http.StatusInternalServerError, "internal invariant violation"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
