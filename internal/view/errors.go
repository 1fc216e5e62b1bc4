package view

import "errors"

var (
	// ErrControlBusy is returned when an intent is repeated while its
	// control is still disabled by the first call.
	ErrControlBusy = errors.New("view: action already in progress")
	ErrNoSession   = errors.New("view: not logged in")
)
