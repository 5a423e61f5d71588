// Package restclient builds the resty clients shared by the provider adapters.
package restclient

import (
	"context"
	"errors"
	"net"
	"time"

	"resty.dev/v3"
)

// New returns a resty client for baseURL. Automatic retries are disabled;
// callers that retry do so explicitly.
func New(baseURL string, timeout time.Duration, userAgent string) *resty.Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	if userAgent != "" {
		c.SetHeader("User-Agent", userAgent)
	}
	return c
}

// IsTimeout reports whether err came from a deadline or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
