package field

import (
	"errors"
	"fmt"
)

// FormatError reports malformed or truncated input. Offset is a byte offset
// for binary formats and a token index for text formats.
type FormatError struct {
	Format  string
	File    string
	Section string
	Offset  int
	Reason  string
	Err     error
}

func (e *FormatError) Error() string {
	msg := e.Format
	if e.File != "" {
		msg += " " + e.File
	}
	if e.Section != "" {
		msg += fmt.Sprintf(" [%s]", e.Section)
	}
	msg += fmt.Sprintf(" at %d: %s", e.Offset, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// Errorf builds a FormatError for the given format and offset.
func Errorf(format string, offset int, reason string, args ...interface{}) *FormatError {
	return &FormatError{Format: format, Offset: offset, Reason: fmt.Sprintf(reason, args...)}
}

// UnsupportedVariantError reports a recognized format variant that is not
// implemented (an AWX product category, a compression code, ...).
type UnsupportedVariantError struct {
	Format  string
	File    string
	Variant string
}

func (e *UnsupportedVariantError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: unsupported variant %s", e.Format, e.File, e.Variant)
	}
	return fmt.Sprintf("%s: unsupported variant %s", e.Format, e.Variant)
}

// Unsupported builds an UnsupportedVariantError.
func Unsupported(format, variant string, args ...interface{}) *UnsupportedVariantError {
	return &UnsupportedVariantError{Format: format, Variant: fmt.Sprintf(variant, args...)}
}

// WithFile attaches the file identity to a decode error. Errors of other
// types are returned unchanged.
func WithFile(err error, name string) error {
	var fe *FormatError
	if errors.As(err, &fe) && fe.File == "" {
		fe.File = name
		return err
	}
	var ue *UnsupportedVariantError
	if errors.As(err, &ue) && ue.File == "" {
		ue.File = name
	}
	return err
}
