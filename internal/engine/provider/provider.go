package provider

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rendis/poiscan/internal/model"
)

// SearchRequest bounds a single spatial query.
type SearchRequest struct {
	Lat        float64
	Lng        float64
	RadiusM    float64
	Categories []string
}

// Client performs one bounded spatial query against a POI provider.
// Implementations return at most Capacity() places per call; a response of
// exactly Capacity() places is the truncation signal that drives tile
// subdivision upstream.
type Client interface {
	SearchNearby(ctx context.Context, req SearchRequest) ([]model.Place, error)
	Capacity() int
}

// AuthError indicates the provider rejected our credential.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authorization failed (status %d)", e.StatusCode)
}

// RateLimitError indicates the provider is rate limiting us.
type RateLimitError struct {
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (status %d)", e.StatusCode)
}

// IsTimeout reports whether err is a per-call deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// Classify maps a query failure to a coarse class for logs and metrics.
// The traversal treats every class the same way; observability does not.
func Classify(err error) string {
	var authErr *AuthError
	var rlErr *RateLimitError
	switch {
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &rlErr):
		return "rate_limit"
	case IsTimeout(err):
		return "timeout"
	default:
		return "transport"
	}
}
