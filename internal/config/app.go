package config

import (
	"dream-san/internal/logger"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// AppConfig holds all application configuration
type AppConfig struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Ledger    LedgerConfig
	LLM       LLMConfig
	Images    ImagesConfig
	S3        S3Config
	Stripe    StripeConfig
	Mail      MailConfig
	Cron      CronConfig
	RateLimit RateLimitConfig
	Admin     AdminConfig
	Models    *ModelsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port          string
	AllowedOrigin string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver         string
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	SQLitePath     string
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret       []byte
	TokenExpiration time.Duration
	// ProviderSecret verifies access tokens minted by the external identity provider.
	ProviderSecret []byte
	ProviderName   string
}

// LedgerConfig holds token pricing and grant amounts
type LedgerConfig struct {
	CharRate          float64
	MinFloor          int
	SignupGrant       int
	SubscriptionGrant int
	MonthlyGrant      int
}

// LLMConfig holds interpreter provider configuration
type LLMConfig struct {
	Provider         string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
	SystemPrompt     string
	Temperature      float64
	Timeout          time.Duration
}

// ImagesConfig holds dream illustration settings
type ImagesConfig struct {
	Enabled        bool
	Model          string
	PromptTemplate string
}

// S3Config holds object storage settings for generated images
type S3Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
}

// StripeConfig holds payment webhook settings
type StripeConfig struct {
	WebhookSecret string
}

// MailConfig holds SMTP settings for the contact form
type MailConfig struct {
	Host         string
	Port         int
	Username     string
	Password     string
	From         string
	ContactEmail string
}

// CronConfig holds the monthly grant trigger settings
type CronConfig struct {
	Secret   string
	Schedule string
}

// RateLimitConfig limits interpretation requests per user
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// AdminConfig lists the accounts allowed to read statistics
type AdminConfig struct {
	Emails []string
}

// LoadConfig loads and validates application configuration from environment
func LoadConfig() (*AppConfig, error) {
	config := &AppConfig{}

	config.Server = ServerConfig{
		Port:          getEnvOrDefault("SERVER_PORT", "8080"),
		AllowedOrigin: getEnvOrDefault("CORS_ALLOWED_ORIGIN", "*"),
	}

	config.Database = DatabaseConfig{
		Driver:         getEnvOrDefault("DB_DRIVER", "postgres"),
		Host:           getEnvOrDefault("DB_HOST", "postgres"),
		Port:           getEnvOrDefault("DB_PORT", "5432"),
		User:           getEnvOrDefault("DB_USER", "postgres"),
		Password:       getEnvOrDefault("DB_PASSWORD", "postgres"),
		Name:           getEnvOrDefault("DB_NAME", "dreamsan"),
		SSLMode:        getEnvOrDefault("DB_SSLMODE", "disable"),
		SQLitePath:     getEnvOrDefault("SQLITE_PATH", "dreamsan.db"),
	}
	if config.Database.Driver != "postgres" && config.Database.Driver != "sqlite" {
		return nil, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", config.Database.Driver)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable must be set")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters (current length: %d)", len(jwtSecret))
	}

	providerSecret := os.Getenv("AUTH_PROVIDER_SECRET")
	if providerSecret == "" {
		logger.Log.Warn("AUTH_PROVIDER_SECRET not set, provider token exchange disabled")
	}

	config.Auth = AuthConfig{
		JWTSecret:       []byte(jwtSecret),
		TokenExpiration: getEnvAsDuration("JWT_TOKEN_EXPIRATION", 24*time.Hour),
		ProviderSecret:  []byte(providerSecret),
		ProviderName:    getEnvOrDefault("AUTH_PROVIDER_NAME", "kinde"),
	}

	config.Ledger = LedgerConfig{
		CharRate:          getEnvAsFloat("TOKENS_PER_CHARACTER", 0.1),
		MinFloor:          getEnvAsInt("MIN_TOKENS_PER_QUERY", 10),
		SignupGrant:       getEnvAsInt("SIGNUP_TOKEN_GRANT", 250),
		SubscriptionGrant: getEnvAsInt("SUBSCRIPTION_TOKEN_GRANT", 1500),
		MonthlyGrant:      getEnvAsInt("MONTHLY_TOKEN_GRANT", 1500),
	}
	if err := config.Ledger.Validate(); err != nil {
		return nil, err
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	openRouterKey := os.Getenv("OPENROUTER_API_KEY")
	if openAIKey == "" && openRouterKey == "" {
		logger.Log.Warn("Neither OPENAI_API_KEY nor OPENROUTER_API_KEY is set")
	}

	config.LLM = LLMConfig{
		Provider:         getEnvOrDefault("LLM_PROVIDER", "openai"),
		OpenAIAPIKey:     openAIKey,
		OpenRouterAPIKey: openRouterKey,
		SystemPrompt:     getEnvOrDefault("DREAM_SYSTEM_PROMPT", getDefaultSystemPrompt()),
		Temperature:      getEnvAsFloat("LLM_TEMPERATURE", 0.8),
		Timeout:          getEnvAsDuration("LLM_TIMEOUT", 2*time.Minute),
	}

	config.Images = ImagesConfig{
		Enabled:        getEnvAsBool("IMAGES_ENABLED", true),
		Model:          getEnvOrDefault("IMAGE_MODEL", "dall-e-3"),
		PromptTemplate: getEnvOrDefault("IMAGE_PROMPT_TEMPLATE", "A dreamlike, surreal illustration of this dream: %s"),
	}

	config.S3 = S3Config{
		Endpoint:      os.Getenv("S3_ENDPOINT"),
		Region:        getEnvOrDefault("S3_REGION", "us-east-1"),
		AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		SecretKey:     os.Getenv("S3_SECRET_KEY"),
		Bucket:        getEnvOrDefault("S3_BUCKET", "dream-images"),
		PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
	}

	config.Stripe = StripeConfig{
		WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
	}

	config.Mail = MailConfig{
		Host:         getEnvOrDefault("SMTP_HOST", "smtp.gmail.com"),
		Port:         getEnvAsInt("SMTP_PORT", 587),
		Username:     os.Getenv("SMTP_USERNAME"),
		Password:     os.Getenv("SMTP_PASSWORD"),
		From:         getEnvOrDefault("SMTP_FROM", os.Getenv("SMTP_USERNAME")),
		ContactEmail: os.Getenv("CONTACT_EMAIL"),
	}

	config.Cron = CronConfig{
		Secret:   os.Getenv("CRON_SECRET"),
		Schedule: os.Getenv("CRON_SCHEDULE"),
	}

	config.RateLimit = RateLimitConfig{
		RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 0.5),
		Burst:             getEnvAsInt("RATE_LIMIT_BURST", 3),
	}

	config.Admin = AdminConfig{
		Emails: getEnvAsList("ADMIN_EMAILS"),
	}

	modelsConfigPath := getEnvOrDefault("MODELS_CONFIG_PATH", filepath.Join("config", "models.json"))
	modelsConfig, err := NewModelsConfig(modelsConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load models config: %w", err)
	}
	config.Models = modelsConfig

	return config, nil
}

// Validate rejects pricing settings that would allow free or negative queries
func (c *LedgerConfig) Validate() error {
	if c.CharRate <= 0 {
		return fmt.Errorf("TOKENS_PER_CHARACTER must be positive, got %v", c.CharRate)
	}
	if c.MinFloor < 1 {
		return fmt.Errorf("MIN_TOKENS_PER_QUERY must be at least 1, got %d", c.MinFloor)
	}
	if c.SignupGrant < 0 || c.SubscriptionGrant < 0 || c.MonthlyGrant < 0 {
		return fmt.Errorf("token grants cannot be negative")
	}
	return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// IsAdmin reports whether the email belongs to an administrator
func (c *AdminConfig) IsAdmin(email string) bool {
	for _, admin := range c.Emails {
		if strings.EqualFold(admin, email) {
			return true
		}
	}
	return false
}

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid integer value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid float value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid boolean value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid duration value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func getDefaultSystemPrompt() string {
	return `You are Dream-San, a gentle and insightful dream interpreter.

When the user describes a dream:
1. Identify the main symbols, settings and emotions
2. Offer possible meanings drawn from psychology and common symbolism
3. Relate the dream to what the dreamer may be experiencing while awake
4. Answer follow-up questions in the context of the same dream

Never claim certainty about a dream's meaning. Keep answers warm and concise.`
}
