package validation

import (
	"strings"
	"testing"
)

func TestDreamRequestValidator_ValidatePrompt(t *testing.T) {
	validator := NewDreamRequestValidator()

	tests := []struct {
		name    string
		prompt  string
		wantErr bool
		errMsg  string
	}{
		{"valid prompt", "I was walking through a forest of glass", false, ""},
		{"max length", strings.Repeat("a", MaxPromptLength), false, ""},
		{"max length in multibyte runes", strings.Repeat("夢", MaxPromptLength), false, ""},
		{"empty prompt", "", true, "dream cannot be empty"},
		{"whitespace only", "   \n\t", true, "dream cannot be empty"},
		{"too long", strings.Repeat("a", MaxPromptLength+1), true, "dream must be at most"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidatePrompt(tt.prompt)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePrompt() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("ValidatePrompt() error = %v, want error containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestDreamRequestValidator_ValidateDreamRequest(t *testing.T) {
	validator := NewDreamRequestValidator()

	tests := []struct {
		name      string
		prompt    string
		sessionID string
		wantErr   bool
	}{
		{"new session", "a dream", "", false},
		{"continuation", "a dream", "3f1c2a9e-8d4b-4c7a-9a51-0b2f6f3c1d2e", false},
		{"malformed session id", "a dream", "session-1", true},
		{"empty prompt", "", "3f1c2a9e-8d4b-4c7a-9a51-0b2f6f3c1d2e", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateDreamRequest(tt.prompt, tt.sessionID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDreamRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
