package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeProcessing      ErrorType = "processing"
	ErrorTypeConfiguration   ErrorType = "configuration"
	ErrorTypeRateLimited     ErrorType = "rate_limited"
	ErrorTypeQuotaExceeded   ErrorType = "quota_exceeded"
	ErrorTypeUnavailable     ErrorType = "unavailable"
	ErrorTypeUpstream        ErrorType = "upstream"
	ErrorTypeInvalidResponse ErrorType = "invalid_response"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeNetwork         ErrorType = "network"
	ErrorTypeDNS             ErrorType = "dns"
	ErrorTypePending         ErrorType = "pending"
	ErrorTypeInternal        ErrorType = "internal"
)

// AppError represents a structured application error.
// Title is the short heading, PlantName the display-safe placeholder shown
// in place of a plant name.
type AppError struct {
	Type       ErrorType `json:"type"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	PlantName  string    `json:"plant_name"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Retryable  bool      `json:"retryable"`
	JobID      string    `json:"job_id,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches diagnostic detail that is never required to understand Message.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithJobID attaches the upstream job identifier.
func (e *AppError) WithJobID(id string) *AppError {
	e.JobID = id
	return e
}

// Envelope is the JSON body written for an error response.
type Envelope struct {
	Error       bool   `json:"error"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	PlantName   string `json:"plantName"`
	HealthScore int    `json:"healthScore"`
	Code        string `json:"code"`
	Retryable   bool   `json:"retryable,omitempty"`
	JobID       string `json:"jobId,omitempty"`
	Details     string `json:"details,omitempty"`
}

// Envelope converts the error into its response body. Health score is always zero.
func (e *AppError) Envelope() Envelope {
	return Envelope{
		Error:       true,
		Title:       e.Title,
		Message:     e.Message,
		PlantName:   e.PlantName,
		HealthScore: 0,
		Code:        string(e.Type),
		Retryable:   e.Retryable,
		JobID:       e.JobID,
		Details:     e.Details,
	}
}

func newError(t ErrorType, status int, title, plantName, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Title:      title,
		Message:    message,
		PlantName:  plantName,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, "Invalid request", "Invalid Request", message, cause)
}

// NewNoImageError is the validation error for a request without images
func NewNoImageError() *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, "No image provided", "No Image",
		"Please upload an image to identify", nil)
}

// NewImageTooLargeError is the validation error for an oversized encoded image
func NewImageTooLargeError(limitKB int64) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, "Image too large", "Image Too Large",
		fmt.Sprintf("Please use a smaller image (under %dKB). Try taking a new photo or compressing the image.", limitKB), nil)
}

// NewInvalidFileError creates the validation error for a rejected upload
func NewInvalidFileError(message string) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, "Invalid file", "Invalid File", message, nil)
}

// NewProcessingError creates a new processing error
func NewProcessingError(message string, cause error) *AppError {
	return newError(ErrorTypeProcessing, http.StatusUnprocessableEntity, "Processing failed", "Processing Failed", message, cause)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string, cause error) *AppError {
	return newError(ErrorTypeConfiguration, http.StatusInternalServerError, "Service not configured", "Configuration Error", message, cause)
}

// NewRateLimitedError creates a new rate limit error
func NewRateLimitedError(cause error) *AppError {
	return newError(ErrorTypeRateLimited, http.StatusTooManyRequests, "Rate limit exceeded", "Rate Limited",
		"Too many requests to the plant identification service. Please wait 30 seconds and try again.", cause)
}

// NewQuotaExceededError creates a new quota error
func NewQuotaExceededError(cause error) *AppError {
	return newError(ErrorTypeQuotaExceeded, http.StatusPaymentRequired, "API quota exceeded", "Quota Exceeded",
		"Plant identification quota exceeded. Please check your Plant.id account.", cause)
}

// NewUnavailableError creates a new upstream unavailable error
func NewUnavailableError(cause error) *AppError {
	return newError(ErrorTypeUnavailable, http.StatusServiceUnavailable, "Service unavailable", "Service Down",
		"The plant identification service is temporarily down. Please try again in a few minutes.", cause)
}

// NewUpstreamError creates a new generic upstream error
func NewUpstreamError(status int, cause error) *AppError {
	e := newError(ErrorTypeUpstream, http.StatusInternalServerError, "Identification failed", "Error",
		"An unexpected error occurred. Please try again with a different image.", cause)
	e.Details = fmt.Sprintf("upstream status %d", status)
	return e
}

// NewInvalidResponseError creates a new malformed upstream response error
func NewInvalidResponseError(cause error) *AppError {
	return newError(ErrorTypeInvalidResponse, http.StatusBadGateway, "Invalid API response", "Invalid Response",
		"Received invalid data from plant identification service. Please try again.", cause)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(cause error) *AppError {
	e := newError(ErrorTypeTimeout, http.StatusRequestTimeout, "Request timeout", "Timeout",
		"The plant identification took too long. Please try with a simpler image or check your connection.", cause)
	e.Retryable = true
	return e
}

// NewNetworkError creates a new network error
func NewNetworkError(cause error) *AppError {
	e := newError(ErrorTypeNetwork, http.StatusServiceUnavailable, "Network error", "Network Error",
		"Cannot connect to plant identification service. Please check your internet connection and try again.", cause)
	e.Retryable = true
	return e
}

// NewDNSError creates a new name resolution error
func NewDNSError(cause error) *AppError {
	e := newError(ErrorTypeDNS, http.StatusServiceUnavailable, "DNS error", "DNS Error",
		"Cannot resolve plant identification service. Please try again later.", cause)
	e.Retryable = true
	return e
}

// NewPendingError reports a job that was accepted but not finished within the poll budget
func NewPendingError(jobID string) *AppError {
	e := newError(ErrorTypePending, http.StatusAccepted, "Identification still processing", "Still Processing",
		"The plant identification was accepted but is still processing. Please try again in a moment.", nil)
	e.JobID = jobID
	e.Retryable = true
	return e
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, "Identification failed", "Error", message, cause)
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if appErr, ok := As(err); ok {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
