package tokens

import (
	"errors"
	"fmt"
)

var (
	ErrQuotaExceeded       = errors.New("tokens: quota exceeded")
	ErrUserNotFound        = errors.New("tokens: user not found")
	ErrTokenNotFound       = errors.New("tokens: token not found")
	ErrTokenNotEligible    = errors.New("tokens: token not eligible")
	ErrTokenBound          = errors.New("tokens: token is bound to an account")
	ErrTokenValueExhausted = errors.New("tokens: could not generate a unique token value")
)

// QuotaExceededError is returned by Issue when the user has no slot left.
type QuotaExceededError struct {
	Limit   int
	Current int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("tokens: quota exceeded (limit=%d current=%d)", e.Limit, e.Current)
}

func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }
