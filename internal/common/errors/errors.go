// Package errors provides standardized error handling for the notification pipeline.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Delivery errors
	ErrCodeTransientProvider ErrorCode = "TRANSIENT_PROVIDER_ERROR"
	ErrCodePermanentProvider ErrorCode = "PERMANENT_PROVIDER_ERROR"
	ErrCodeProviderTimeout   ErrorCode = "PROVIDER_TIMEOUT"

	// Configuration errors (fatal, surfaced to tenant admins)
	ErrCodeTemplateMissing      ErrorCode = "TEMPLATE_MISSING"
	ErrCodeNoProviderConfigured ErrorCode = "NO_PROVIDER_CONFIGURED"
	ErrCodeInvalidProviderConfig ErrorCode = "INVALID_PROVIDER_CONFIG"

	// Store errors
	ErrCodeDatabaseFailed  ErrorCode = "DATABASE_FAILED"
	ErrCodeJobNotFound     ErrorCode = "JOB_NOT_FOUND"
	ErrCodeJobNotPending   ErrorCode = "JOB_NOT_PENDING"
	ErrCodeTenantRequired  ErrorCode = "TENANT_REQUIRED"
	ErrCodeInvalidRequest  ErrorCode = "INVALID_REQUEST"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewTransientProviderError creates a retryable delivery error (network trouble, 5xx).
func NewTransientProviderError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransientProvider,
		Message:   "Provider delivery failed transiently",
		Details:   fmt.Sprintf("provider: %s, error: %s", provider, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPermanentProviderError creates a non-retryable delivery error (rejected recipient or content).
func NewPermanentProviderError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePermanentProvider,
		Message:   "Provider rejected the delivery",
		Details:   fmt.Sprintf("provider: %s, error: %s", provider, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderTimeoutError creates a retryable timeout error.
func NewProviderTimeoutError(provider string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderTimeout,
		Message:   "Provider call exceeded timeout",
		Details:   fmt.Sprintf("provider: %s", provider),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateMissingError creates a fatal configuration error: no tenant or
// platform template exists for the (type, channel) pair.
func NewTemplateMissingError(tenantID, typeCode, channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateMissing,
		Message:   "No template configured",
		Details:   fmt.Sprintf("tenant: %s, type: %s, channel: %s", tenantID, typeCode, channel),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoProviderConfiguredError creates a fatal configuration error: the channel
// has no provider at either tenant or platform level.
func NewNoProviderConfiguredError(tenantID, channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoProviderConfigured,
		Message:   "No provider configured for channel",
		Details:   fmt.Sprintf("tenant: %s, channel: %s", tenantID, channel),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidProviderConfigError creates a fatal configuration error.
func NewInvalidProviderConfigError(provider, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidProviderConfig,
		Message:   fmt.Sprintf("Provider '%s' configuration is invalid", provider),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseError creates a retryable store error.
func NewDatabaseError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseFailed,
		Message:   "Database operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewJobNotFoundError creates a non-retryable lookup error.
func NewJobNotFoundError(jobID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeJobNotFound,
		Message:   "Notification job not found",
		Details:   fmt.Sprintf("jobId: %s", jobID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewJobNotPendingError signals a cancel attempt on a job that already left pending.
func NewJobNotPendingError(jobID, status string) *StandardError {
	return &StandardError{
		Code:      ErrCodeJobNotPending,
		Message:   "Job is no longer pending",
		Details:   fmt.Sprintf("jobId: %s, status: %s", jobID, status),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidRequestError creates a non-retryable validation error.
func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Request validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Classification Helpers
// ==========================

// IsRetryable reports whether an error should be retried by the dispatcher.
// Unknown errors are treated as transient so a flaky provider SDK error does
// not permanently fail a job.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return true
}

// IsConfigError reports whether the error is a fatal configuration error that
// must be escalated to the tenant admin alert channel.
func IsConfigError(err error) bool {
	var stdErr *StandardError
	if !errors.As(err, &stdErr) {
		return false
	}
	switch stdErr.Code {
	case ErrCodeTemplateMissing, ErrCodeNoProviderConfigured, ErrCodeInvalidProviderConfig:
		return true
	}
	return false
}

// CodeOf extracts the ErrorCode, or empty for plain errors.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}
