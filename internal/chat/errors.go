package chat

import (
	"errors"
	"fmt"

	"github.com/lalith-99/pulsechat/internal/media"
)

// Kind classifies a failure for the transport layer.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindForbidden  Kind = "forbidden"
	KindUpstream   Kind = "upstream"
)

var (
	ErrEmptyMessage  = errors.New("message must have text or an image")
	ErrInvalidGroup  = errors.New("group needs a name and at least one member")
	ErrAlreadyMember = errors.New("user is already a member of the group")
	ErrNotAMember    = errors.New("user is not a member of the group")
	ErrGroupNotFound = errors.New("group not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrUploadFailed  = errors.New("image upload failed")
)

// Error is returned for every expected failure. Err is one of the sentinels
// above, so callers match with errors.Is and map Kind to a status.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

func validationError(err error) *Error { return newError(KindValidation, err) }
func notFoundError(err error) *Error   { return newError(KindNotFound, err) }
func conflictError(err error) *Error   { return newError(KindConflict, err) }
func forbiddenError(err error) *Error  { return newError(KindForbidden, err) }

// uploadError reports a bad image as the caller's fault and anything else
// as a storage failure.
func uploadError(cause error) *Error {
	if errors.Is(cause, media.ErrNotImage) || errors.Is(cause, media.ErrTooLarge) || errors.Is(cause, media.ErrEncoding) {
		return &Error{
			Kind:    KindValidation,
			Message: cause.Error(),
			Err:     fmt.Errorf("%w: %w", ErrUploadFailed, cause),
		}
	}
	return &Error{
		Kind:    KindUpstream,
		Message: ErrUploadFailed.Error(),
		Err:     fmt.Errorf("%w: %w", ErrUploadFailed, cause),
	}
}

// KindOf returns the kind of a chat error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
