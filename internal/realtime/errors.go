package realtime

import (
	"errors"
	"fmt"
)

var ErrClosed = errors.New("realtime: client closed")

// ConnectionError is returned when the channel cannot be opened. Auth is set
// when the backend rejected the credential, which is never retried.
type ConnectionError struct {
	Op   string
	Auth bool
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Auth {
		return fmt.Sprintf("realtime %s: unauthorized: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("realtime %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether err is a connection error caused by a rejected
// credential.
func IsAuth(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr) && connErr.Auth
}

// ParseError describes a push payload that matched none of the known shapes.
type ParseError struct {
	Reason  string
	Payload string
}

func (e *ParseError) Error() string {
	return "realtime: unparseable event: " + e.Reason
}
