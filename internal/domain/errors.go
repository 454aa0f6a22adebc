package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when the backend answers with an empty or
// whitespace-only body.
var ErrEmptyResponse = errors.New("empty rpc response")

// TransportError reports a non-2xx HTTP status from the backend.
type TransportError struct {
	Method Method
	Status int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rpc %s failed: status %d", e.Method, e.Status)
}

// MalformedPayloadError reports a body that is not valid JSON, is not an
// object, or does not match the shape expected for its method.
type MalformedPayloadError struct {
	Method Method
	Reason string
	Err    error
}

func (e *MalformedPayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s payload: %s: %v", e.Method, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %s payload: %s", e.Method, e.Reason)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// DecodeError reports an unparseable reference time. It is soft: the batch
// returned alongside it is still usable, it just carries no strikes.
type DecodeError struct {
	Method        Method
	ReferenceTime string
	Err           error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: invalid reference time %q: %v", e.Method, e.ReferenceTime, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrorKind classifies an error for metrics labels and user-facing messages.
func ErrorKind(err error) string {
	var (
		transport *TransportError
		malformed *MalformedPayloadError
		decode    *DecodeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &transport):
		return "transport"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	case errors.As(err, &malformed):
		return "malformed"
	case errors.As(err, &decode):
		return "decode"
	default:
		return "network"
	}
}
