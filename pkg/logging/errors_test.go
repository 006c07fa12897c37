// accolade/pkg/logging/errors_test.go

package logging

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewError(t *testing.T) {
	tests := []struct {
		name        string
		errType     ErrorType
		message     string
		err         error
		fields      map[string]interface{}
		expectedMsg string
	}{
		{
			name:        "Config error",
			errType:     ErrorTypeConfig,
			message:     "invalid rule",
			err:         errors.New("unknown field"),
			fields:      map[string]interface{}{"rule": "white-rabbit"},
			expectedMsg: "CONFIG: invalid rule: unknown field",
		},
		{
			name:        "Cache error without cause",
			errType:     ErrorTypeCache,
			message:     "write failed",
			expectedMsg: "CACHE: write failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accErr := NewError(tt.errType, tt.message, tt.err, tt.fields)

			assert.Equal(t, tt.errType, accErr.Type)
			assert.Equal(t, tt.message, accErr.Message)
			assert.Equal(t, tt.fields, accErr.Fields)
			assert.Equal(t, tt.expectedMsg, accErr.Error())
			assert.Equal(t, tt.err, accErr.Unwrap())
		})
	}
}

func TestIsType(t *testing.T) {
	inner := NewError(ErrorTypeTransient, "directory unreachable", errors.New("timeout"), nil)
	outer := NewError(ErrorTypeRuntime, "rule failed", inner, nil)
	wrapped := fmt.Errorf("processing: %w", outer)

	assert.True(t, IsType(wrapped, ErrorTypeRuntime))
	assert.True(t, IsType(wrapped, ErrorTypeTransient))
	assert.False(t, IsType(wrapped, ErrorTypeCache))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeRuntime))
}

func TestLogError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected map[string]interface{}
	}{
		{
			name: "AccoladeError with all fields",
			err: &AccoladeError{
				Type:    ErrorTypeRuntime,
				Message: "Test error",
				Err:     errors.New("underlying error"),
				Fields: map[string]interface{}{
					"rule":  "white-rabbit",
					"count": 42,
				},
			},
			expected: map[string]interface{}{
				"error":      "underlying error",
				"error_type": "RUNTIME",
				"message":    "Test error",
				"rule":       "white-rabbit",
				"count":      float64(42),
				"level":      "error",
			},
		},
		{
			name: "AccoladeError without underlying error",
			err: &AccoladeError{
				Type:    ErrorTypeConfig,
				Message: "Config error",
				Fields: map[string]interface{}{
					"file": "rules/white-rabbit.yml",
				},
			},
			expected: map[string]interface{}{
				"error_type": "CONFIG",
				"message":    "Config error",
				"file":       "rules/white-rabbit.yml",
				"level":      "error",
			},
		},
		{
			name: "Standard error",
			err:  errors.New("standard error"),
			expected: map[string]interface{}{
				"error":   "standard error",
				"message": "standard error",
				"level":   "error",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			mockLogger := zerolog.New(&buf)

			LogError(mockLogger, tt.err)

			var logged map[string]interface{}
			err := json.Unmarshal(buf.Bytes(), &logged)
			assert.NoError(t, err)

			for k, v := range tt.expected {
				assert.Equal(t, v, logged[k], "Mismatch for key %s", k)
			}

			for k := range logged {
				_, expected := tt.expected[k]
				if !expected && k != "time" {
					t.Errorf("Unexpected key in logged data: %s", k)
				}
			}
		})
	}
}
