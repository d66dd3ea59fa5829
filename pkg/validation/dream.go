package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxPromptLength bounds a single dream description
const MaxPromptLength = 4000

// DreamRequestValidator validates interpretation requests
type DreamRequestValidator struct{}

// NewDreamRequestValidator creates a new DreamRequestValidator
func NewDreamRequestValidator() *DreamRequestValidator {
	return &DreamRequestValidator{}
}

// ValidatePrompt validates a dream description
func (v *DreamRequestValidator) ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return errors.New("dream cannot be empty")
	}

	if n := utf8.RuneCountInString(prompt); n > MaxPromptLength {
		return fmt.Errorf("dream must be at most %d characters long, got %d", MaxPromptLength, n)
	}

	return nil
}

// ValidateSessionID validates an optional session id
func (v *DreamRequestValidator) ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return nil // Empty starts a new session
	}

	if _, err := uuid.Parse(sessionID); err != nil {
		return fmt.Errorf("session_id must be a UUID, got %q", sessionID)
	}
	return nil
}

// ValidateDreamRequest validates a complete interpretation request
func (v *DreamRequestValidator) ValidateDreamRequest(prompt, sessionID string) error {
	if err := v.ValidatePrompt(prompt); err != nil {
		return err
	}

	return v.ValidateSessionID(sessionID)
}
