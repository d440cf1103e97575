package messaging

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxIDLength bounds user and crew identifiers.
	MaxIDLength = 255
	// MaxMessageTypeLength bounds the message type label.
	MaxMessageTypeLength = 64
)

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func validateID(id, label string) error {
	if id == "" {
		return validationErrorf("%s must not be empty", label)
	}
	if len(id) > MaxIDLength {
		return validationErrorf("%s exceeds maximum length of %d", label, MaxIDLength)
	}
	if !utf8.ValidString(id) {
		return validationErrorf("%s contains invalid UTF-8", label)
	}
	for _, r := range id {
		if r == ':' || r == '/' {
			return validationErrorf("%s contains forbidden character %q", label, r)
		}
		if unicode.IsControl(r) {
			return validationErrorf("%s contains control character", label)
		}
	}
	return nil
}

func validateMessageType(t string) error {
	if t == "" {
		return validationErrorf("message type must not be empty")
	}
	if len(t) > MaxMessageTypeLength {
		return validationErrorf("message type exceeds maximum length of %d", MaxMessageTypeLength)
	}
	if !utf8.ValidString(t) {
		return validationErrorf("message type contains invalid UTF-8")
	}
	for _, r := range t {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return validationErrorf("message type contains forbidden character %q", r)
		}
	}
	return nil
}
