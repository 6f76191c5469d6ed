package apperrors

import (
	"errors"
)

var (
	ErrShutdown = errors.New("shutdown error")

	ErrEmptyBody     = errors.New("message body is required")
	ErrInvalidBody   = errors.New("message body is not valid text")
	ErrInvalidAuthor = errors.New("author is not valid text")

	ErrPendingNotFound = errors.New("pending message does not exist")
	ErrMessageNotFound = errors.New("message does not exist")

	ErrUnauthorized = errors.New("invalid admin credential")

	ErrMissingPayment = errors.New("payment header is missing")
	ErrInvalidPayment = errors.New("payment header is malformed")
	ErrNoPayer        = errors.New("payment payload carries no payer identity")
)
