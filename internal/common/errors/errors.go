// Package errors provides the marketplace's error taxonomy, its HTTP mapping
// and the conversion to BPMN errors for job workers.
package errors

import (
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

// Submission workflow
const (
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeAgreementRequired ErrorCode = "AGREEMENT_REQUIRED"
	ErrCodeDuplicateIdentity ErrorCode = "DUPLICATE_IDENTITY"
	ErrCodeProvisioning      ErrorCode = "PROVISIONING_ERROR"
	ErrCodeUpload            ErrorCode = "UPLOAD_ERROR"
	ErrCodePersistence       ErrorCode = "PERSISTENCE_ERROR"
	ErrCodeMissingReference  ErrorCode = "MISSING_REFERENCE"
	ErrCodeInvalidState      ErrorCode = "INVALID_STATE"
)

// Accounts and orders
const (
	ErrCodeInvalidCredentials     ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeAccountPendingApproval ErrorCode = "ACCOUNT_PENDING_APPROVAL"
	ErrCodeAccountSuspended       ErrorCode = "ACCOUNT_SUSPENDED"
	ErrCodeAccessDenied           ErrorCode = "ACCESS_DENIED"
	ErrCodeUnauthenticated        ErrorCode = "UNAUTHENTICATED"
	ErrCodeOrderNotCancellable    ErrorCode = "ORDER_NOT_CANCELLABLE"
	ErrCodeInvalidStatus          ErrorCode = "INVALID_STATUS"
	ErrCodeNotFound               ErrorCode = "NOT_FOUND"
)

// Infrastructure
const (
	ErrCodeDatabaseConnectionFailed      ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed          ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeSearchQueryFailed             ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeNotificationSendFailed        ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeKeycloakAuth                  ErrorCode = "KEYCLOAK_AUTH_ERROR"
	ErrCodeKeycloakAPI                   ErrorCode = "KEYCLOAK_API_ERROR"
	ErrCodeKeycloakLogoutFailed          ErrorCode = "KEYCLOAK_LOGOUT_FAILED"
	ErrCodeUserNotFound                  ErrorCode = "USER_NOT_FOUND"
	ErrCodeTokenInvalid                  ErrorCode = "TOKEN_INVALID"
	ErrCodeNetwork                       ErrorCode = "NETWORK_ERROR"
	ErrCodeZeebeUnavailable              ErrorCode = "ZEEBE_UNAVAILABLE"
	ErrCodeZeebeTimeout                  ErrorCode = "ZEEBE_TIMEOUT"
	ErrCodeZeebeRejected                 ErrorCode = "ZEEBE_REJECTED"
	ErrCodeInternal                      ErrorCode = "INTERNAL_ERROR"
)

// StandardError is the error shape used across services and the HTTP envelope.
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

func (e *StandardError) Unwrap() error { return e.cause }

// Is matches on code, so the exported sentinels work with errors.Is.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	return ok && t.Code == e.Code
}

// WithMetadata returns e after attaching a metadata entry.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// Sentinels for errors.Is checks.
var (
	ErrValidation             = &StandardError{Code: ErrCodeValidation}
	ErrAgreementRequired      = &StandardError{Code: ErrCodeAgreementRequired}
	ErrDuplicateIdentity      = &StandardError{Code: ErrCodeDuplicateIdentity}
	ErrProvisioning           = &StandardError{Code: ErrCodeProvisioning}
	ErrUpload                 = &StandardError{Code: ErrCodeUpload}
	ErrPersistence            = &StandardError{Code: ErrCodePersistence}
	ErrMissingReference       = &StandardError{Code: ErrCodeMissingReference}
	ErrInvalidState           = &StandardError{Code: ErrCodeInvalidState}
	ErrInvalidCredentials     = &StandardError{Code: ErrCodeInvalidCredentials}
	ErrAccountPendingApproval = &StandardError{Code: ErrCodeAccountPendingApproval}
	ErrAccountSuspended       = &StandardError{Code: ErrCodeAccountSuspended}
	ErrAccessDenied           = &StandardError{Code: ErrCodeAccessDenied}
	ErrUnauthenticated        = &StandardError{Code: ErrCodeUnauthenticated}
	ErrOrderNotCancellable    = &StandardError{Code: ErrCodeOrderNotCancellable}
	ErrInvalidStatus          = &StandardError{Code: ErrCodeInvalidStatus}
	ErrNotFound               = &StandardError{Code: ErrCodeNotFound}
	ErrUserNotFound           = &StandardError{Code: ErrCodeUserNotFound}
	ErrTokenInvalid           = &StandardError{Code: ErrCodeTokenInvalid}
)

// BPMNError represents an error thrown into a BPMN process.
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
// 2. Constructors
// ==========================

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

func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidation, "Please fill all required fields", details, false, nil)
}

func NewAgreementRequiredError() *StandardError {
	return newError(ErrCodeAgreementRequired, "You must agree to the terms and conditions", "", false, nil)
}

func NewDuplicateIdentityError(email string) *StandardError {
	return newError(ErrCodeDuplicateIdentity,
		"This email is already registered. Please use a different email.",
		fmt.Sprintf("email: %s", email), false, nil)
}

func NewProvisioningError(err error) *StandardError {
	return newError(ErrCodeProvisioning, "Failed to create account", errDetails(err), true, err)
}

func NewUploadError(path string, err error) *StandardError {
	return newError(ErrCodeUpload, "Failed to upload file",
		fmt.Sprintf("path: %s, error: %s", path, errDetails(err)), true, err)
}

func NewPersistenceError(collection string, err error) *StandardError {
	return newError(ErrCodePersistence, "Failed to save record",
		fmt.Sprintf("collection: %s, error: %s", collection, errDetails(err)), true, err)
}

func NewMissingReferenceError() *StandardError {
	return newError(ErrCodeMissingReference, "Please enter the UTR / transaction reference", "", false, nil)
}

func NewInvalidStateError(details string) *StandardError {
	return newError(ErrCodeInvalidState, "Operation not allowed in the current state", details, false, nil)
}

func NewInvalidCredentialsError(err error) *StandardError {
	return newError(ErrCodeInvalidCredentials, "Invalid email or password", errDetails(err), false, err)
}

func NewAccountPendingApprovalError() *StandardError {
	return newError(ErrCodeAccountPendingApproval, "Your account is pending approval", "", false, nil)
}

func NewAccountSuspendedError() *StandardError {
	return newError(ErrCodeAccountSuspended, "Your account has been suspended", "", false, nil)
}

func NewAccessDeniedError(details string) *StandardError {
	return newError(ErrCodeAccessDenied, "Access denied", details, false, nil)
}

func NewUnauthenticatedError(details string) *StandardError {
	return newError(ErrCodeUnauthenticated, "Authentication required", details, false, nil)
}

func NewOrderNotCancellableError(orderID, status string) *StandardError {
	return newError(ErrCodeOrderNotCancellable, "Order can no longer be cancelled",
		fmt.Sprintf("orderId: %s, status: %s", orderID, status), false, nil)
}

func NewInvalidStatusError(status string) *StandardError {
	return newError(ErrCodeInvalidStatus, "Unsupported status", fmt.Sprintf("status: %s", status), false, nil)
}

func NewNotFoundError(resource, id string) *StandardError {
	return newError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), fmt.Sprintf("id: %s", id), false, nil)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", errDetails(err), true, err)
}

func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("operation: %s, error: %s", operation, errDetails(err)), true, err)
}

func NewElasticsearchConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeElasticsearchConnectionFailed, "Elasticsearch connection error", errDetails(err), true, err)
}

func NewSearchQueryFailedError(index string, err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Elasticsearch query error",
		fmt.Sprintf("index: %s, error: %s", index, errDetails(err)), true, err)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("type: %s, error: %s", channel, errDetails(err)), true, err)
}

// NewError builds a StandardError for codes without a dedicated constructor.
func NewError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return newError(code, message, details, retryable, nil)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", errDetails(err), false, err)
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 3. Classification
// ==========================

// HTTPStatus maps an error code to the response status used by the API.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidation, ErrCodeAgreementRequired, ErrCodeMissingReference, ErrCodeInvalidStatus:
		return http.StatusBadRequest
	case ErrCodeInvalidCredentials, ErrCodeUnauthenticated, ErrCodeTokenInvalid:
		return http.StatusUnauthorized
	case ErrCodeAccessDenied, ErrCodeAccountPendingApproval, ErrCodeAccountSuspended:
		return http.StatusForbidden
	case ErrCodeNotFound, ErrCodeUserNotFound:
		return http.StatusNotFound
	case ErrCodeDuplicateIdentity, ErrCodeInvalidState, ErrCodeOrderNotCancellable:
		return http.StatusConflict
	case ErrCodeUpload, ErrCodeProvisioning, ErrCodeKeycloakAuth, ErrCodeKeycloakAPI,
		ErrCodeElasticsearchConnectionFailed, ErrCodeSearchQueryFailed, ErrCodeNetwork,
		ErrCodeZeebeUnavailable, ErrCodeZeebeTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// BPMNErrorMapping maps internal codes to the BPMN error codes modelled in the
// onboarding process. Codes missing here are thrown as-is.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeUserNotFound:           "STOCKIST_NOT_FOUND",
	ErrCodeNotFound:               "STOCKIST_NOT_FOUND",
	ErrCodeValidation:             "INVALID_JOB_VARIABLES",
	ErrCodeNotificationSendFailed: "NOTIFICATION_SEND_FAILED",
	ErrCodePersistence:            "PERSISTENCE_ERROR",
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodePersistence,
		ErrCodeElasticsearchConnectionFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeUpload,
		ErrCodeProvisioning:
		return 3

	case ErrCodeKeycloakAuth, ErrCodeKeycloakAPI, ErrCodeNetwork,
		ErrCodeZeebeUnavailable, ErrCodeZeebeTimeout:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
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

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "KEYCLOAK") || strings.Contains(codeStr, "TOKEN") ||
		strings.Contains(codeStr, "CREDENTIALS") || strings.Contains(codeStr, "ACCOUNT") ||
		codeStr == string(ErrCodeAccessDenied) || codeStr == string(ErrCodeUnauthenticated):
		return "AUTH"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY") || codeStr == string(ErrCodePersistence):
		return "DATABASE"
	case strings.Contains(codeStr, "ELASTICSEARCH") || strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.HasPrefix(codeStr, "ZEEBE"):
		return "WORKFLOW"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case codeStr == string(ErrCodeUpload):
		return "STORAGE"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION") ||
		strings.Contains(codeStr, "REQUIRED") || strings.Contains(codeStr, "MISSING"):
		return "VALIDATION"
	case strings.Contains(codeStr, "ORDER"):
		return "ORDER"
	default:
		return "OTHER"
	}
}

// AsStandardError unwraps err to a StandardError, wrapping unknown errors as
// INTERNAL_ERROR.
func AsStandardError(err error) *StandardError {
	for e := err; e != nil; {
		if se, ok := e.(*StandardError); ok {
			return se
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return NewInternalError(err)
}
