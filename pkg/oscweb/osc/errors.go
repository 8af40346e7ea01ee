package osc

import "fmt"

// DecodeError reports a document or datagram that could not be turned into a
// Message. Reason is a short human readable description; Err, when set, is the
// underlying parser error.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode error: %s: %v", e.Reason, e.Err)
	}
	return "decode error: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeErrorf(format string, args ...any) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}
