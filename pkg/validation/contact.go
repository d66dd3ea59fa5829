package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxSubjectLength = 200
	maxMessageLength = 5000
)

// ContactRequestValidator validates contact form submissions
type ContactRequestValidator struct {
	auth *AuthRequestValidator
}

// NewContactRequestValidator creates a new ContactRequestValidator
func NewContactRequestValidator() *ContactRequestValidator {
	return &ContactRequestValidator{auth: NewAuthRequestValidator()}
}

// ValidateContactRequest validates a complete contact form submission
func (v *ContactRequestValidator) ValidateContactRequest(name, email, subject, message string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name cannot be empty")
	}
	if err := v.auth.ValidateName("name", name); err != nil {
		return err
	}

	if err := v.auth.ValidateEmail(email); err != nil {
		return err
	}

	if strings.TrimSpace(subject) == "" {
		return errors.New("subject cannot be empty")
	}
	// Subjects end up in a mail header
	if strings.ContainsAny(subject, "\r\n") {
		return errors.New("subject cannot contain line breaks")
	}
	if n := utf8.RuneCountInString(subject); n > maxSubjectLength {
		return fmt.Errorf("subject must be at most %d characters long, got %d", maxSubjectLength, n)
	}

	if strings.TrimSpace(message) == "" {
		return errors.New("message cannot be empty")
	}
	if n := utf8.RuneCountInString(message); n > maxMessageLength {
		return fmt.Errorf("message must be at most %d characters long, got %d", maxMessageLength, n)
	}

	return nil
}
