package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "COMMON_001", ErrCodeInternal.String())
	assert.Equal(t, "FP_001", CodeInvalidSettings.String())
}

func TestHTTPStatusForCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeInternal, 500},
		{ErrCodeBadRequest, 400},
		{ErrCodeNotFound, 404},
		{ErrCodeConflict, 409},
		{ErrCodeValidation, 422},
		{CodeInvalidSettings, 400},
		{CodeUnresolvedAlgorithm, 400},
		{CodeAbsentFingerprint, 422},
		{CodeIndexUnavailable, 503},
		{ErrorCode("UNKNOWN"), 500},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatusForCode(tt.code))
		})
	}
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(ErrCodeBadRequest))
	assert.True(t, IsClientError(CodeInvalidSettings))
	assert.False(t, IsClientError(ErrCodeInternal))
}

func TestIsServerError(t *testing.T) {
	assert.True(t, IsServerError(ErrCodeInternal))
	assert.True(t, IsServerError(CodeIndexCorrupted))
	assert.False(t, IsServerError(ErrCodeBadRequest))
}

func TestModuleForCode(t *testing.T) {
	assert.Equal(t, "COMMON", ModuleForCode(ErrCodeInternal))
	assert.Equal(t, "FP", ModuleForCode(CodeAbsentFingerprint))
	assert.Equal(t, "OK", ModuleForCode(CodeOK))
}

func TestAllCodesHaveStatus(t *testing.T) {
	codes := []ErrorCode{
		CodeInvalidSettings, CodeUnresolvedAlgorithm, CodeAbsentFingerprint,
		CodeIndexUnavailable, CodeEncodingFailed, CodeMoleculeParseFailed,
		CodeIndexCorrupted, CodeIncompatibleSettings, CodeBatchAborted,
	}
	for _, c := range codes {
		_, ok := ErrorCodeHTTPStatus[c]
		assert.True(t, ok, "missing status for %s", c)
	}
}

//Personal.AI order the ending
