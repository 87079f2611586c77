package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeNotImplemented     ErrorCode = "COMMON_015"
)

// Royalty module error codes.
const (
	ErrCodeRecordNotFound      ErrorCode = "ROY_001"
	ErrCodeUnknownMethod       ErrorCode = "ROY_002"
	ErrCodeInvalidParams       ErrorCode = "ROY_003"
	ErrCodeValidationFailed    ErrorCode = "ROY_004"
	ErrCodeWarningsUnconfirmed ErrorCode = "ROY_005"
	ErrCodeInvalidTransition   ErrorCode = "ROY_006"
	ErrCodeStaleVersion        ErrorCode = "ROY_007"
	ErrCodePaymentInvalid      ErrorCode = "ROY_008"
	ErrCodeImportFailed        ErrorCode = "ROY_009"
	ErrCodeExportFailed        ErrorCode = "ROY_010"
)

// Contract module error codes.
const (
	ErrCodeContractNotFound ErrorCode = "CTR_001"
	ErrCodeContractInvalid  ErrorCode = "CTR_002"
	ErrCodeContractInactive ErrorCode = "CTR_003"
)

// Short aliases used at call sites.
const (
	CodeInternal       = ErrCodeInternal
	CodeInvalidParam   = ErrCodeBadRequest
	CodeNotFound       = ErrCodeNotFound
	CodeConflict       = ErrCodeConflict
	CodeValidation     = ErrCodeValidation
	CodeSerialization  = ErrCodeSerialization
	CodeDatabaseError  = ErrCodeDatabaseError
	CodeCacheError     = ErrCodeCacheError
	CodeNotImplemented = ErrCodeNotImplemented
	CodeOK             = ErrorCode("OK")
	CodeUnknown        = ErrorCode("UNKNOWN")

	CodeRecordNotFound      = ErrCodeRecordNotFound
	CodeUnknownMethod       = ErrCodeUnknownMethod
	CodeInvalidParams       = ErrCodeInvalidParams
	CodeValidationFailed    = ErrCodeValidationFailed
	CodeWarningsUnconfirmed = ErrCodeWarningsUnconfirmed
	CodeInvalidTransition   = ErrCodeInvalidTransition
	CodeStaleVersion        = ErrCodeStaleVersion
	CodePaymentInvalid      = ErrCodePaymentInvalid
	CodeImportFailed        = ErrCodeImportFailed
	CodeExportFailed        = ErrCodeExportFailed
	CodeContractNotFound    = ErrCodeContractNotFound
	CodeContractInvalid     = ErrCodeContractInvalid
	CodeContractInactive    = ErrCodeContractInactive
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusInternalServerError,
	ErrCodeNotImplemented:     http.StatusNotImplemented,

	ErrCodeRecordNotFound:      http.StatusNotFound,
	ErrCodeUnknownMethod:       http.StatusBadRequest,
	ErrCodeInvalidParams:       http.StatusBadRequest,
	ErrCodeValidationFailed:    http.StatusUnprocessableEntity,
	ErrCodeWarningsUnconfirmed: http.StatusConflict,
	ErrCodeInvalidTransition:   http.StatusConflict,
	ErrCodeStaleVersion:        http.StatusConflict,
	ErrCodePaymentInvalid:      http.StatusBadRequest,
	ErrCodeImportFailed:        http.StatusUnprocessableEntity,
	ErrCodeExportFailed:        http.StatusInternalServerError,

	ErrCodeContractNotFound: http.StatusNotFound,
	ErrCodeContractInvalid:  http.StatusBadRequest,
	ErrCodeContractInactive: http.StatusConflict,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeNotImplemented:     "not implemented",

	ErrCodeRecordNotFound:      "royalty record not found",
	ErrCodeUnknownMethod:       "unknown calculation method",
	ErrCodeInvalidParams:       "invalid calculation parameters",
	ErrCodeValidationFailed:    "record validation failed",
	ErrCodeWarningsUnconfirmed: "validation warnings require confirmation",
	ErrCodeInvalidTransition:   "invalid payment status transition",
	ErrCodeStaleVersion:        "record was modified by another operation",
	ErrCodePaymentInvalid:      "invalid payment amount",
	ErrCodeImportFailed:        "bulk import failed",
	ErrCodeExportFailed:        "export failed",

	ErrCodeContractNotFound: "contract not found",
	ErrCodeContractInvalid:  "invalid contract configuration",
	ErrCodeContractInactive: "contract not active for period",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
