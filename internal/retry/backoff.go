package retry

import (
	"context"
	"log"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Config controls exponential backoff behavior for a retried operation.
type Config struct {
	MaxRetries int           `json:"max_retries"` // Retry attempts after the first try (default: 3)
	BaseDelay  time.Duration `json:"base_delay"`  // Delay before the first retry (default: 1s)
	MaxDelay   time.Duration `json:"max_delay"`   // Upper bound on any single delay (default: 30s)
	Multiplier float64       `json:"multiplier"`  // Backoff growth factor (default: 2.0)
	Jitter     bool          `json:"jitter"`      // Randomize delays to avoid thundering herd
	LogRetries bool          `json:"log_retries"` // Log each attempt
}

// Result reports what happened across all attempts of one operation.
type Result struct {
	Attempts      int           `json:"attempts"`
	TotalDuration time.Duration `json:"total_duration"`
	LastError     error         `json:"-"`
	Success       bool          `json:"success"`
	RetryReasons  []string      `json:"retry_reasons"`
}

// DefaultConfig returns the backoff settings used for repository API calls.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
		LogRetries: true,
	}
}

// GenerationConfig returns backoff settings tuned for generation-service
// calls, which run longer and rate-limit more aggressively.
func GenerationConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.5,
		Jitter:     true,
		LogRetries: true,
	}
}

// Do executes operation with exponential backoff until it succeeds, the
// retry budget is spent, or ctx is cancelled.
func Do(ctx context.Context, config Config, operation func() error) Result {
	return DoWithReason(ctx, config, func() (error, string) {
		err := operation()
		reason := ""
		if err != nil {
			reason = err.Error()
		}
		return err, reason
	})
}

// DoWithReason is Do with a per-attempt reason string recorded into the
// Result for postmortems.
func DoWithReason(ctx context.Context, config Config, operation func() (error, string)) Result {
	startTime := time.Now()

	result := Result{
		RetryReasons: make([]string, 0),
	}

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		err, reason := operation()
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(startTime)
			if config.LogRetries && attempt > 0 {
				log.Printf("[INFO] Operation succeeded after %d retries (total: %v)", attempt, result.TotalDuration)
			}
			return result
		}

		result.LastError = err
		result.RetryReasons = append(result.RetryReasons, reason)

		if attempt >= config.MaxRetries {
			result.TotalDuration = time.Since(startTime)
			if config.LogRetries {
				log.Printf("[ERROR] Operation failed after %d attempts (total: %v): %v",
					result.Attempts, result.TotalDuration, err)
			}
			return result
		}

		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		}

		delay := calculateDelay(config, attempt)
		if config.LogRetries {
			log.Printf("[WARN] Operation failed (attempt %d/%d): %v; retrying in %v",
				attempt+1, config.MaxRetries+1, err, delay)
		}

		select {
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		case <-time.After(delay):
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// calculateDelay computes baseDelay * multiplier^attempt, capped at
// MaxDelay, with up to ±10% jitter when enabled.
func calculateDelay(config Config, attempt int) time.Duration {
	delay := float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt))

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(config.BaseDelay)
		}
	}

	return time.Duration(delay)
}

// IsRetryable reports whether err looks transient. Classification is by
// substring because errors cross process boundaries as text here (HTTP
// client errors, SDK-wrapped status codes).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	retryable := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"quota",
		"429",
		"500",
		"502",
		"503",
		"504",
		"no such host",
		"network unreachable",
		"broken pipe",
		"context deadline exceeded",
	}

	for _, s := range retryable {
		if strings.Contains(errStr, s) {
			return true
		}
	}

	return false
}
