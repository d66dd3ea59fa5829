package validation

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const maxNameLength = 100

// AuthRequestValidator validates authentication-related requests
type AuthRequestValidator struct{}

// NewAuthRequestValidator creates a new AuthRequestValidator
func NewAuthRequestValidator() *AuthRequestValidator {
	return &AuthRequestValidator{}
}

// ValidateEmail validates an email address (basic validation)
func (v *AuthRequestValidator) ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email cannot be empty")
	}

	if len(email) > 255 {
		return fmt.Errorf("email must be at most 255 characters long, got %d", len(email))
	}

	if !emailRegex.MatchString(email) {
		return errors.New("invalid email format")
	}

	return nil
}

// ValidatePassword validates a password
func (v *AuthRequestValidator) ValidatePassword(password string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}

	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters long, got %d", len(password))
	}

	// bcrypt ignores everything past 72 bytes
	if len(password) > 72 {
		return fmt.Errorf("password must be at most 72 bytes long, got %d", len(password))
	}

	return nil
}

// ValidateName validates an optional given or family name
func (v *AuthRequestValidator) ValidateName(field, name string) error {
	if n := utf8.RuneCountInString(name); n > maxNameLength {
		return fmt.Errorf("%s must be at most %d characters long, got %d", field, maxNameLength, n)
	}
	return nil
}

// ValidateLoginRequest validates a login request
func (v *AuthRequestValidator) ValidateLoginRequest(email, password string) error {
	if email == "" {
		return errors.New("email cannot be empty")
	}

	if password == "" {
		return errors.New("password cannot be empty")
	}

	return nil
}

// ValidateRegisterRequest validates a registration request
func (v *AuthRequestValidator) ValidateRegisterRequest(email, password, givenName, familyName string) error {
	if err := v.ValidateEmail(email); err != nil {
		return err
	}

	if err := v.ValidatePassword(password); err != nil {
		return err
	}

	if err := v.ValidateName("given_name", givenName); err != nil {
		return err
	}

	return v.ValidateName("family_name", familyName)
}
