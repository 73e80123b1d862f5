package anthropic

import (
	"errors"
	"net/http"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/sells-group/research-brief/internal/resilience"
)

// StatusCode returns the HTTP status of an API error, or 0 when err did not
// come from an API response.
func StatusCode(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsRateLimit reports whether err is a 429 from the API.
func IsRateLimit(err error) bool {
	return StatusCode(err) == http.StatusTooManyRequests
}

// RetryAfter returns the retry-after hint attached to an API error.
func RetryAfter(err error) (time.Duration, bool) {
	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) || apiErr.Response == nil {
		return 0, false
	}
	return resilience.ParseRetryAfter(apiErr.Response.Header.Get("retry-after"))
}
