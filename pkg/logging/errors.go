// accolade/pkg/logging/errors.go

package logging

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

type ErrorType string

const (
	ErrorTypeConfig       ErrorType = "CONFIG"
	ErrorTypeMissingField ErrorType = "MISSING_FIELD"
	ErrorTypeTransient    ErrorType = "TRANSIENT"
	ErrorTypeCache        ErrorType = "CACHE"
	ErrorTypeRuntime      ErrorType = "RUNTIME"
	ErrorTypeStore        ErrorType = "STORE"
)

type AccoladeError struct {
	Type    ErrorType
	Message string
	Err     error
	Fields  map[string]interface{}
}

func (e *AccoladeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AccoladeError) Unwrap() error {
	return e.Err
}

func NewError(errType ErrorType, message string, err error, fields map[string]interface{}) *AccoladeError {
	return &AccoladeError{
		Type:    errType,
		Message: message,
		Err:     err,
		Fields:  fields,
	}
}

// IsType reports whether any AccoladeError in err's chain has the given type.
func IsType(err error, errType ErrorType) bool {
	var accErr *AccoladeError
	for err != nil {
		if !errors.As(err, &accErr) {
			return false
		}
		if accErr.Type == errType {
			return true
		}
		err = accErr.Err
	}
	return false
}

func LogError(logger zerolog.Logger, err error) {
	var accErr *AccoladeError
	if !errors.As(err, &accErr) {
		logger.Error().Err(err).Msg(err.Error())
		return
	}

	event := logger.Error().
		Str("error_type", string(accErr.Type))
	if accErr.Err != nil {
		event = event.Err(accErr.Err)
	}

	for k, v := range accErr.Fields {
		event = event.Interface(k, v)
	}

	event.Msg(accErr.Message)
}
