package torrentfile

import (
	"errors"
	"fmt"
)

// ErrParse matches every *ParseError through errors.Is.
var ErrParse = errors.New("parse error")

// ParseError reports a missing, mistyped or malformed field.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("parse error: %v", e.Err)
	}
	return fmt.Sprintf("parse error: %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

var (
	errMissing = errors.New("missing")
	errType    = errors.New("wrong type")
)

func missingField(field string) error {
	return &ParseError{Field: field, Err: errMissing}
}

func mistypedField(field, want string) error {
	return &ParseError{Field: field, Err: fmt.Errorf("%w, want %s", errType, want)}
}
