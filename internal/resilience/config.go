package resilience

import (
	"time"
)

// FromRateLimitConfig converts config values to a rate-limit-only RetryConfig.
// Retries are capped at 2 regardless of what the config asks for.
func FromRateLimitConfig(retries, backoffMs int) RetryConfig {
	if retries > 2 {
		retries = 2
	}
	backoff := 2 * time.Second
	if backoffMs > 0 {
		backoff = time.Duration(backoffMs) * time.Millisecond
	}
	return RateLimitRetryConfig(retries, backoff)
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}
