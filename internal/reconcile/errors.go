package reconcile

import (
	"errors"

	"queuehive/internal/apiclient"
)

var (
	ErrNotTracked = errors.New("reconcile: token not tracked")
	// ErrTerminal is returned by Poll and Refresh once a token has reached a
	// terminal status. Its snapshot is final until StopTracking.
	ErrTerminal = errors.New("reconcile: token is terminal")
)

// fatalFetch reports errors that no amount of polling will fix.
func fatalFetch(err error) bool {
	return apiclient.IsNotFound(err) || apiclient.IsAuth(err)
}
