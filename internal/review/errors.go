package review

import (
	"errors"
	"fmt"

	"github.com/sprite-ai/agstage/internal/model"
)

// Error is a review failure reported to callers as a value.
type Error struct {
	Kind    model.ErrorKind
	Message string
	Path    string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns a stable identifier such as "review.not_found".
func (e *Error) Code() string {
	return "review." + e.Kind.String()
}

// Is matches another *Error of the same kind, so callers can test
// errors.Is(err, &review.Error{Kind: model.KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func newError(kind model.ErrorKind, path, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Path: path, Err: err}
}

// KindOf returns the kind of a review error, or 0 if err is not one.
func KindOf(err error) model.ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}

// hostError classifies a failure reported by the document host.
func hostError(path string, err error) *Error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return newError(model.KindNotFound, path, "target not found", err)
	case errors.Is(err, model.ErrNotText):
		return newError(model.KindDocumentNotText, path, "target is not a text document", err)
	default:
		return newError(model.KindHostUnavailable, path, "document host unavailable", err)
	}
}
