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

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeStorageError       ErrorCode = "COMMON_017"
	ErrCodeMessageQueueError  ErrorCode = "COMMON_018"
)

// Fingerprint Module Error Codes
const (
	ErrCodeInvalidSettings      ErrorCode = "FP_001"
	ErrCodeUnresolvedAlgorithm  ErrorCode = "FP_002"
	ErrCodeAbsentFingerprint    ErrorCode = "FP_003"
	ErrCodeIndexUnavailable     ErrorCode = "FP_004"
	ErrCodeEncodingFailed       ErrorCode = "FP_005"
	ErrCodeMoleculeParseFailed  ErrorCode = "FP_006"
	ErrCodeIndexCorrupted       ErrorCode = "FP_007"
	ErrCodeIncompatibleSettings ErrorCode = "FP_008"
	ErrCodeBatchAborted         ErrorCode = "FP_009"
)

// Aliases used at call sites.
const (
	CodeOK            = ErrorCode("OK")
	CodeUnknown       = ErrorCode("UNKNOWN")
	CodeInternal      = ErrCodeInternal
	CodeInvalidParam  = ErrCodeBadRequest
	CodeNotFound      = ErrCodeNotFound
	CodeConflict      = ErrCodeConflict
	CodeDatabaseError = ErrCodeDatabaseError
	CodeCacheError    = ErrCodeCacheError
	CodeStorageError  = ErrCodeStorageError
	CodeMessageQueue  = ErrCodeMessageQueueError
	CodeSerialization = ErrCodeSerialization
	CodeUnavailable   = ErrCodeServiceUnavailable
	CodeSearchBackend = ErrCodeExternalService

	CodeInvalidSettings      = ErrCodeInvalidSettings
	CodeUnresolvedAlgorithm  = ErrCodeUnresolvedAlgorithm
	CodeAbsentFingerprint    = ErrCodeAbsentFingerprint
	CodeIndexUnavailable     = ErrCodeIndexUnavailable
	CodeEncodingFailed       = ErrCodeEncodingFailed
	CodeMoleculeParseFailed  = ErrCodeMoleculeParseFailed
	CodeIndexCorrupted       = ErrCodeIndexCorrupted
	CodeIncompatibleSettings = ErrCodeIncompatibleSettings
	CodeBatchAborted         = ErrCodeBatchAborted
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeMessageQueueError:  http.StatusInternalServerError,

	ErrCodeInvalidSettings:      http.StatusBadRequest,
	ErrCodeUnresolvedAlgorithm:  http.StatusBadRequest,
	ErrCodeAbsentFingerprint:    http.StatusUnprocessableEntity,
	ErrCodeIndexUnavailable:     http.StatusServiceUnavailable,
	ErrCodeEncodingFailed:       http.StatusBadRequest,
	ErrCodeMoleculeParseFailed:  http.StatusBadRequest,
	ErrCodeIndexCorrupted:       http.StatusInternalServerError,
	ErrCodeIncompatibleSettings: http.StatusConflict,
	ErrCodeBatchAborted:         http.StatusInternalServerError,
}

// HTTPStatusForCode returns the HTTP status for code, defaulting to 500.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// IsClientError reports whether code maps to a 4xx status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError reports whether code maps to a 5xx status.
func IsServerError(code ErrorCode) bool {
	return HTTPStatusForCode(code) >= 500
}

// ModuleForCode returns the module prefix of code ("COMMON", "FP").
func ModuleForCode(code ErrorCode) string {
	s := string(code)
	if i := strings.IndexByte(s, '_'); i > 0 {
		return s[:i]
	}
	return s
}

//Personal.AI order the ending
