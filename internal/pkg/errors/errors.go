package errors

import "errors"

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalid          = errors.New("invalid")
	ErrTooMany          = errors.New("too many requests")
	ErrInternal         = errors.New("internal")
	ErrInvalidImage     = errors.New("invalid image")
	ErrModelUnavailable = errors.New("model unavailable")
)

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

func IsModelUnavailable(err error) bool {
	return errors.Is(err, ErrModelUnavailable)
}
