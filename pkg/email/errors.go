package email

import "errors"

var (
	ErrFailedToSendEmail = errors.New("email: failed to send email")
	ErrInvalidConfig     = errors.New("email: invalid config")
	ErrInvalidPayload    = errors.New("email: invalid payload")
	ErrSendInProgress    = errors.New("email: another delivery of this message is in progress")
)
