package session

import "errors"

var (
	ErrNoSession         = errors.New("no session")
	ErrExpired           = errors.New("session expired")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrCorrupt           = errors.New("corrupt session record")
)
