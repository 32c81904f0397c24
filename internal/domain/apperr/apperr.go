// Package apperr defines the error kinds surfaced by the service layer.
// Transport code maps each Kind to a response; anything that is not an
// *Error is treated as KindInternal.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindValidation
	KindQuota
	KindModeration
	KindRateLimited
	KindNotFound
	KindConflict
	KindGone
	KindProvider
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindQuota:
		return "quota"
	case KindModeration:
		return "moderation"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGone:
		return "gone"
	case KindProvider:
		return "provider"
	case KindStorage:
		return "storage"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, apperr.ErrNotFound) works
// for any not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

var (
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrQuota        = &Error{Kind: KindQuota}
	ErrModeration   = &Error{Kind: KindModeration}
	ErrRateLimited  = &Error{Kind: KindRateLimited}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrGone         = &Error{Kind: KindGone}
	ErrProvider     = &Error{Kind: KindProvider}
	ErrStorage      = &Error{Kind: KindStorage}
)

func Unauthorized(msg string) error { return &Error{Kind: KindUnauthorized, Message: msg} }

func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

func Quota(msg string) error { return &Error{Kind: KindQuota, Message: msg} }

func Moderation(msg string) error { return &Error{Kind: KindModeration, Message: msg} }

func RateLimited(msg string) error { return &Error{Kind: KindRateLimited, Message: msg} }

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

func Conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

func Gone(msg string) error { return &Error{Kind: KindGone, Message: msg} }

func Provider(msg string, err error) error { return &Error{Kind: KindProvider, Message: msg, Err: err} }

func Storage(msg string, err error) error { return &Error{Kind: KindStorage, Message: msg, Err: err} }

func Internal(msg string, err error) error { return &Error{Kind: KindInternal, Message: msg, Err: err} }

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of the first *Error in the chain.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }
