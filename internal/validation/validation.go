// Package validation checks user and operator supplied strings.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const (
	MaxDeviceNameLength = 100
	MaxPlatformLength   = 50
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError{Field: "email", Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidateDeviceName accepts an empty name or up to MaxDeviceNameLength
// printable characters.
func ValidateDeviceName(name string) error {
	return validateLabel("name", name, MaxDeviceNameLength)
}

// ValidatePlatform accepts an empty platform or up to MaxPlatformLength
// printable characters.
func ValidatePlatform(platform string) error {
	return validateLabel("platform", platform, MaxPlatformLength)
}

func validateLabel(field, value string, max int) error {
	if !utf8.ValidString(value) {
		return ValidationError{Field: field, Message: "must be valid UTF-8"}
	}
	if utf8.RuneCountInString(value) > max {
		return ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", max)}
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return ValidationError{Field: field, Message: "must not contain control characters"}
		}
	}
	return nil
}
