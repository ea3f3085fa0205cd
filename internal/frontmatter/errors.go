package frontmatter

import (
	"errors"
	"fmt"
)

// Sentinel errors for the three ways a document can fail to parse.
// Match them with errors.Is; use errors.As on the typed errors for details.
var (
	ErrMalformedDocument    = errors.New("malformed document")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidFieldValue    = errors.New("invalid field value")
)

// MalformedError reports missing or mismatched delimiters, or a metadata
// block that is not a key-value mapping.
type MalformedError struct {
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed document: %s: %v", e.Reason, e.Err)
	}
	return "malformed document: " + e.Reason
}

func (e *MalformedError) Is(target error) bool { return target == ErrMalformedDocument }

func (e *MalformedError) Unwrap() error { return e.Err }

// MissingFieldError reports a mandatory field that is absent or empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingRequiredField }

// InvalidValueError reports a recognized field whose value does not fit its
// expected shape.
type InvalidValueError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value for field %q: %s", e.Field, e.Reason)
}

func (e *InvalidValueError) Is(target error) bool { return target == ErrInvalidFieldValue }

func (e *InvalidValueError) Unwrap() error { return e.Err }

// Kind returns a stable machine-readable name for a parse error, or an empty
// string when err did not come from Parse.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrMalformedDocument):
		return "malformed_document"
	case errors.Is(err, ErrMissingRequiredField):
		return "missing_required_field"
	case errors.Is(err, ErrInvalidFieldValue):
		return "invalid_field_value"
	default:
		return ""
	}
}

// Field returns the field name carried by a missing or invalid field error.
func Field(err error) string {
	var missing *MissingFieldError
	if errors.As(err, &missing) {
		return missing.Field
	}
	var invalid *InvalidValueError
	if errors.As(err, &invalid) {
		return invalid.Field
	}
	return ""
}
