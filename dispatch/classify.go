package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	ErrCodeDestinationRejected = "destination_rejected"
	ErrCodeDestinationError    = "destination_error"
	ErrCodeRateLimited         = "destination_rate_limited"
	ErrCodeRequestError        = "request_error"
	ErrCodeInvalidURL          = "invalid_destination_url"
	ErrCodeTimeout             = "request_timeout"
)

// Verdict classifies a single delivery attempt. Retryable failures go back on
// the backoff curve; permanent ones short-circuit the event to failed.
type Verdict struct {
	Succeeded bool
	Retryable bool
	ErrorCode string
	// RetryAfter is a provider-supplied delay hint from a 429 response. Zero
	// means no hint; the caller falls back to the backoff policy.
	RetryAfter time.Duration
}

// classifyResponse maps an HTTP response status to a verdict.
// 2xx succeeds, 429 and 5xx are transient, every other 4xx is permanent.
func classifyResponse(resp *http.Response, now time.Time) Verdict {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return Verdict{Succeeded: true}
	case code == http.StatusTooManyRequests:
		return Verdict{
			Retryable:  true,
			ErrorCode:  ErrCodeRateLimited,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), now),
		}
	case code >= 400 && code < 500:
		return Verdict{Retryable: false, ErrorCode: ErrCodeDestinationRejected}
	default:
		return Verdict{Retryable: true, ErrorCode: ErrCodeDestinationError}
	}
}

// classifyError maps a transport failure to a verdict. Malformed destination
// URLs can never succeed; everything else on the wire is transient.
func classifyError(err error) Verdict {
	if isInvalidURL(err) {
		return Verdict{Retryable: false, ErrorCode: ErrCodeInvalidURL}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Verdict{Retryable: true, ErrorCode: ErrCodeTimeout}
	}
	return Verdict{Retryable: true, ErrorCode: ErrCodeRequestError}
}

func isInvalidURL(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if _, parseErr := url.ParseRequestURI(urlErr.URL); parseErr != nil {
			return true
		}
		if parsed, parseErr := url.Parse(urlErr.URL); parseErr == nil {
			if parsed.Scheme != "http" && parsed.Scheme != "https" {
				return true
			}
			if parsed.Host == "" {
				return true
			}
		}
	}
	return false
}

func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if delay := at.Sub(now); delay > 0 {
			return delay
		}
	}
	return 0
}
