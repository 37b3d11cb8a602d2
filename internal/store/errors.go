package store

import "errors"

var (
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrPositionNotFound    = errors.New("position not found")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrPositionMismatch    = errors.New("ticket assigned to different position")
	ErrPositionBusy        = errors.New("position already attending a ticket")
	ErrInvalidState        = errors.New("invalid ticket state")
	ErrSessionNotFound     = errors.New("session not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrBadCredentials      = errors.New("bad credentials")
	ErrAccessDenied        = errors.New("access denied")
)
