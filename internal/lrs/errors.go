package lrs

import (
	"errors"
	"fmt"
)

// TransportError reports a network failure or a non-2xx response.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("lrs transport error: %s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("lrs transport error: %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the request can succeed.
func (e *TransportError) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// MalformedResponseError reports a body that is not the expected statement result.
type MalformedResponseError struct {
	URL    string
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed lrs response from %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed lrs response from %s: %s", e.URL, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// TooManyPagesError reports that paging stopped at a configured bound.
type TooManyPagesError struct {
	Pages  int
	URL    string
	Reason string
}

func (e *TooManyPagesError) Error() string {
	return fmt.Sprintf("lrs paging stopped after %d pages (%s) at %s", e.Pages, e.Reason, e.URL)
}

// IsTransport reports whether err wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsMalformed reports whether err wraps a MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}
