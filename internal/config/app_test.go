package config

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("MODELS_CONFIG_PATH", writeModelsFile(t, `[{"id": "gpt-4o-mini", "provider": "openai"}]`))
}

func TestLoadConfig_Defaults(t *testing.T) {
	setBaseEnv(t)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Ledger.CharRate != 0.1 {
		t.Errorf("Ledger.CharRate = %v, want 0.1", config.Ledger.CharRate)
	}
	if config.Ledger.MinFloor != 10 {
		t.Errorf("Ledger.MinFloor = %d, want 10", config.Ledger.MinFloor)
	}
	if config.Ledger.SignupGrant != 250 {
		t.Errorf("Ledger.SignupGrant = %d, want 250", config.Ledger.SignupGrant)
	}
	if config.Ledger.SubscriptionGrant != 1500 || config.Ledger.MonthlyGrant != 1500 {
		t.Errorf("subscription/monthly grants = %d/%d, want 1500/1500", config.Ledger.SubscriptionGrant, config.Ledger.MonthlyGrant)
	}
	if config.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %s, want postgres", config.Database.Driver)
	}
	if config.S3.Bucket != "dream-images" {
		t.Errorf("S3.Bucket = %s, want dream-images", config.S3.Bucket)
	}
	if config.Auth.TokenExpiration != 24*time.Hour {
		t.Errorf("Auth.TokenExpiration = %v, want 24h", config.Auth.TokenExpiration)
	}
	if !config.Images.Enabled {
		t.Error("Images.Enabled = false, want true")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("TOKENS_PER_CHARACTER", "0.25")
	t.Setenv("MIN_TOKENS_PER_QUERY", "5")
	t.Setenv("LLM_TIMEOUT", "45s")
	t.Setenv("ADMIN_EMAILS", " admin@dreamsan.app , ops@dreamsan.app,")
	t.Setenv("IMAGES_ENABLED", "false")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if config.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %s, want sqlite", config.Database.Driver)
	}
	if config.Ledger.CharRate != 0.25 || config.Ledger.MinFloor != 5 {
		t.Errorf("Ledger = %+v, want rate 0.25 floor 5", config.Ledger)
	}
	if config.LLM.Timeout != 45*time.Second {
		t.Errorf("LLM.Timeout = %v, want 45s", config.LLM.Timeout)
	}
	if len(config.Admin.Emails) != 2 {
		t.Fatalf("Admin.Emails = %v, want 2 entries", config.Admin.Emails)
	}
	if !config.Admin.IsAdmin("ADMIN@dreamsan.app") {
		t.Error("IsAdmin should be case-insensitive")
	}
	if config.Admin.IsAdmin("someone@else.com") {
		t.Error("IsAdmin(someone@else.com) = true, want false")
	}
	if config.Images.Enabled {
		t.Error("Images.Enabled = true, want false")
	}
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SIGNUP_TOKEN_GRANT", "lots")
	t.Setenv("JWT_TOKEN_EXPIRATION", "forever")

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Ledger.SignupGrant != 250 {
		t.Errorf("Ledger.SignupGrant = %d, want default 250", config.Ledger.SignupGrant)
	}
	if config.Auth.TokenExpiration != 24*time.Hour {
		t.Errorf("Auth.TokenExpiration = %v, want default 24h", config.Auth.TokenExpiration)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing jwt secret", map[string]string{"JWT_SECRET": ""}, "JWT_SECRET environment variable must be set"},
		{"short jwt secret", map[string]string{"JWT_SECRET": "short"}, "at least 32 characters"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"zero floor", map[string]string{"MIN_TOKENS_PER_QUERY": "0"}, "MIN_TOKENS_PER_QUERY"},
		{"negative rate", map[string]string{"TOKENS_PER_CHARACTER": "-1"}, "TOKENS_PER_CHARACTER"},
		{"missing models file", map[string]string{"MODELS_CONFIG_PATH": "/nonexistent/models.json"}, "failed to load models config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := LoadConfig()
			if err == nil {
				t.Fatalf("LoadConfig() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadConfig() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
