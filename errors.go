package main

import (
	"context"
	"errors"
	"net"
	"strings"
)

var (
	ErrNetwork           = errors.New("network failure")
	ErrNotYetRouted      = errors.New("purchase link not routed yet")
	ErrRateLimited       = errors.New("order submitted too fast")
	ErrSessionInvalid    = errors.New("session invalid")
	ErrMalformedResponse = errors.New("malformed response")
	ErrBusinessRejection = errors.New("order rejected")
)

// resultCodeTooFast is returned by the submit endpoint when orders arrive faster than it accepts them.
const resultCodeTooFast = 60017

// classify names the failure class of err for attempt logs.
func classify(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrNotYetRouted):
		return "not_routed"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrSessionInvalid):
		return "session_invalid"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrBusinessRejection):
		return "rejected"
	case isNetworkError(err):
		return "network"
	default:
		return "unknown"
	}
}

// isNetworkError checks if an error is a transport/timeout failure
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Client.Timeout") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "no route to host")
}
