package clicksapi

import "fmt"

// RequestFailedError is returned when the service answered with a status
// outside 2xx. Error returns the response text unchanged so it can be shown
// to the user as is.
type RequestFailedError struct {
	StatusCode int
	Body       string
}

func (e *RequestFailedError) Error() string {
	return e.Body
}

// TransportError means no response was received (DNS, refused connection,
// broken body).
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
