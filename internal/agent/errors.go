package agent

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorCategory represents the type of error
type ErrorCategory string

const (
	// ErrorCategoryUITimeout for elements or modals that did not appear in time
	ErrorCategoryUITimeout ErrorCategory = "ui_timeout"
	// ErrorCategoryLoginRejected for credentials the dashboard refused
	ErrorCategoryLoginRejected ErrorCategory = "login_rejected"
	// ErrorCategoryChallengeRejected for a confirm rejected by the challenge provider
	ErrorCategoryChallengeRejected ErrorCategory = "challenge_rejected"
	// ErrorCategoryNotFound for a renewable resource that could not be located
	ErrorCategoryNotFound ErrorCategory = "resource_not_found"
	// ErrorCategoryProxy for a configured proxy that cannot reach the internet
	ErrorCategoryProxy ErrorCategory = "proxy_unreachable"
	// ErrorCategoryBrowser for a browser that cannot be reached or launched
	ErrorCategoryBrowser ErrorCategory = "browser_unreachable"
	// ErrorCategoryStorage for snapshot/report persistence errors
	ErrorCategoryStorage ErrorCategory = "storage"
	// ErrorCategoryUnknown for uncategorized errors
	ErrorCategoryUnknown ErrorCategory = "unknown"
)

// CategorizedError wraps an error with category and retry info
type CategorizedError struct {
	Category  ErrorCategory
	Original  error
	Retryable bool
	Message   string
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Original == nil {
		return fmt.Sprintf("[%s] %s", e.Category, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Message, e.Original)
}

// Unwrap implements error unwrapping
func (e *CategorizedError) Unwrap() error {
	return e.Original
}

// IsFatal reports whether the category aborts the whole run rather than one account.
func (c ErrorCategory) IsFatal() bool {
	return c == ErrorCategoryProxy || c == ErrorCategoryBrowser
}

// NewUITimeoutError creates a transient UI timeout error
func NewUITimeoutError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category:  ErrorCategoryUITimeout,
		Original:  err,
		Retryable: true,
		Message:   message,
	}
}

// NewLoginRejectedError creates a terminal per-account login error
func NewLoginRejectedError(message string) *CategorizedError {
	return &CategorizedError{
		Category: ErrorCategoryLoginRejected,
		Message:  message,
	}
}

// NewChallengeRejectedError creates an error for a confirm the dashboard
// refused because the challenge was not solved
func NewChallengeRejectedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:  ErrorCategoryChallengeRejected,
		Retryable: true,
		Message:   message,
	}
}

// NewNotFoundError creates a terminal per-account lookup error
func NewNotFoundError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category: ErrorCategoryNotFound,
		Original: err,
		Message:  message,
	}
}

// NewProxyError creates a fatal proxy error
func NewProxyError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category: ErrorCategoryProxy,
		Original: err,
		Message:  message,
	}
}

// NewBrowserError creates a browser connectivity error
func NewBrowserError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category:  ErrorCategoryBrowser,
		Original:  err,
		Retryable: true,
		Message:   message,
	}
}

// NewStorageError creates a storage error
func NewStorageError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category:  ErrorCategoryStorage,
		Original:  err,
		Retryable: true,
		Message:   message,
	}
}

// CategoryOf returns the category of err, or ErrorCategoryUnknown.
func CategoryOf(err error) ErrorCategory {
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}
	return ErrorCategoryUnknown
}

// IsCategory reports whether err carries category c anywhere in its chain.
func IsCategory(err error, c ErrorCategory) bool {
	return err != nil && CategoryOf(err) == c
}

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors []ErrorCategory
}

// ConnectRetryConfig retries browser attach at a fixed interval.
func ConnectRetryConfig(attempts int, delay time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:     attempts,
		InitialDelay:    delay,
		MaxDelay:        delay,
		BackoffFactor:   1.0,
		RetryableErrors: []ErrorCategory{ErrorCategoryBrowser},
	}
}

// Retry executes a function with exponential backoff retry logic
func Retry(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !shouldRetry(err, config) {
			return err
		}

		if attempt < config.MaxAttempts-1 {
			delay := calculateDelay(attempt, config)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", config.MaxAttempts, lastErr)
}

// shouldRetry determines if an error is retryable
func shouldRetry(err error, config RetryConfig) bool {
	var catErr *CategorizedError
	if !errors.As(err, &catErr) {
		// Unknown errors are not retryable by default
		return false
	}

	if !catErr.Retryable {
		return false
	}

	for _, category := range config.RetryableErrors {
		if catErr.Category == category {
			return true
		}
	}

	return false
}

// calculateDelay calculates retry delay with exponential backoff
func calculateDelay(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay)

	for i := 0; i < attempt; i++ {
		delay *= config.BackoffFactor
	}

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	return time.Duration(delay)
}
