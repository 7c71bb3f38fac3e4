// Package errors provides standardized error handling shared by the HTTP API and the
// Zeebe workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeMissingClientID  ErrorCode = "MISSING_CLIENT_ID"

	ErrCodeCompanyNotFound   ErrorCode = "COMPANY_NOT_FOUND"
	ErrCodeUserNotFound      ErrorCode = "USER_NOT_FOUND"
	ErrCodeValuationNotFound ErrorCode = "VALUATION_NOT_FOUND"
	ErrCodeValuationExists   ErrorCode = "VALUATION_EXISTS"

	ErrCodeGenerationLimitReached ErrorCode = "GENERATION_LIMIT_REACHED"
	ErrCodeGenerationInProgress   ErrorCode = "GENERATION_IN_PROGRESS"

	ErrCodeBackendSessionFailed ErrorCode = "BACKEND_SESSION_FAILED"
	ErrCodeBackendRequestFailed ErrorCode = "BACKEND_REQUEST_FAILED"
	ErrCodeBackendTimeout       ErrorCode = "BACKEND_TIMEOUT"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeTransactionFailed        ErrorCode = "TRANSACTION_FAILED"

	ErrCodeCacheFailed            ErrorCode = "CACHE_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeWorkflowEngineFailed   ErrorCode = "WORKFLOW_ENGINE_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Invalid request payload", details, false, nil)
}

func NewMissingClientIDError() *StandardError {
	return newError(ErrCodeMissingClientID, "Missing clientId", "", false, nil)
}

func NewCompanyNotFoundError(details string) *StandardError {
	return newError(ErrCodeCompanyNotFound, "Company not found", details, false, nil)
}

func NewUserNotFoundError(companyID string) *StandardError {
	return newError(ErrCodeUserNotFound, "User not found for company", fmt.Sprintf("companyId: %s", companyID), false, nil)
}

func NewValuationNotFoundError(companyID, generationID string) *StandardError {
	return newError(ErrCodeValuationNotFound, "IPO valuation record not found",
		fmt.Sprintf("companyId: %s, generationId: %s", companyID, generationID), false, nil)
}

func NewValuationExistsError(companyID, generationID string) *StandardError {
	return newError(ErrCodeValuationExists, "IPO valuation record already exists",
		fmt.Sprintf("companyId: %s, generationId: %s", companyID, generationID), false, nil)
}

func NewGenerationLimitReachedError(plan string, used int) *StandardError {
	return newError(ErrCodeGenerationLimitReached, "Generation limit reached for plan",
		fmt.Sprintf("plan: %s, used: %d", plan, used), false, nil)
}

func NewGenerationInProgressError(generationID string) *StandardError {
	return newError(ErrCodeGenerationInProgress, "A generation cycle is already in progress",
		fmt.Sprintf("generationId: %s", generationID), false, nil)
}

func NewBackendSessionError(err error) *StandardError {
	return newError(ErrCodeBackendSessionFailed, "Failed to create analysis backend session", err.Error(), true, err)
}

func NewBackendRequestError(operation string, err error) *StandardError {
	return newError(ErrCodeBackendRequestFailed, fmt.Sprintf("Analysis backend %s failed", operation), err.Error(), true, err)
}

func NewBackendTimeoutError(operation string, err error) *StandardError {
	return newError(ErrCodeBackendTimeout, fmt.Sprintf("Analysis backend %s timed out", operation), err.Error(), true, err)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true, err)
}

func NewQueryExecutionFailedError(queryName string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("query: %s, error: %s", queryName, err.Error()), true, err)
}

func NewTransactionFailedError(step string, err error) *StandardError {
	return newError(ErrCodeTransactionFailed, "Status update transaction aborted",
		fmt.Sprintf("step: %s, error: %s", step, err.Error()), true, err)
}

func NewCacheError(op string, err error) *StandardError {
	return newError(ErrCodeCacheFailed, "Cache operation failed", fmt.Sprintf("op: %s, error: %s", op, err.Error()), true, err)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Failed to send notification",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true, err)
}

func NewWorkflowEngineError(operation string, err error) *StandardError {
	return newError(ErrCodeWorkflowEngineFailed, "Workflow engine call failed",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Internal server error", err.Error(), false, err)
}

// ==========================
// 4. Classification
// ==========================

// AsStandard unwraps err into a *StandardError, wrapping unknown errors as INTERNAL_ERROR.
func AsStandard(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}

// HTTPStatus maps an error code to the response status of the public API.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeMissingClientID:
		return http.StatusBadRequest
	case ErrCodeCompanyNotFound, ErrCodeUserNotFound, ErrCodeValuationNotFound:
		return http.StatusNotFound
	case ErrCodeValuationExists, ErrCodeGenerationInProgress:
		return http.StatusConflict
	case ErrCodeGenerationLimitReached:
		return http.StatusPaymentRequired
	case ErrCodeBackendSessionFailed, ErrCodeBackendRequestFailed:
		return http.StatusBadGateway
	case ErrCodeBackendTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// GetRetryCount returns the recommended Zeebe retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeTransactionFailed,
		ErrCodeBackendSessionFailed,
		ErrCodeBackendRequestFailed:
		return 3

	case ErrCodeBackendTimeout, ErrCodeCacheFailed, ErrCodeNotificationSendFailed:
		return 2

	default:
		return 0 // business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "BACKEND") || strings.HasPrefix(codeStr, "WORKFLOW"):
		return "INTEGRATION"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "TRANSACTION"):
		return "DATABASE"
	case strings.Contains(codeStr, "NOT_FOUND"):
		return "NOT_FOUND"
	case strings.Contains(codeStr, "GENERATION"):
		return "SUBSCRIPTION"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "MISSING"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
