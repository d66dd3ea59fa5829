package app

import (
	"dream-san/internal/auth"
	"dream-san/internal/config"
	"dream-san/internal/metrics"
	"dream-san/internal/repository/db"
	"dream-san/internal/service/billing"
	"dream-san/internal/service/contact"
	"dream-san/internal/service/dream"
	"dream-san/internal/service/identity"
	"dream-san/internal/service/ledger"
	"dream-san/internal/service/llm"
	"dream-san/internal/service/session"
)

// Config holds all application dependencies and configuration
type Config struct {
	// Database interface for data persistence
	DB db.Database
	// Centralized application configuration
	AppConfig *config.AppConfig
	// Metrics may be nil
	Metrics *metrics.Metrics

	Tokens   *auth.TokenService
	Ledger   *ledger.Ledger
	Sessions *session.SessionService
	Dreams   *dream.DreamService
	Identity *identity.IdentityService
	Billing  *billing.BillingService
	Contact  *contact.ContactService
}

// NewConfig wires the services on top of database and interpreter
func NewConfig(database db.Database, appConfig *config.AppConfig, interpreter llm.Interpreter, m *metrics.Metrics) *Config {
	l := ledger.NewLedger(database, ledger.NewLengthEstimator(appConfig.Ledger), m)
	sessions := session.NewSessionService(database, m)

	return &Config{
		DB:        database,
		AppConfig: appConfig,
		Metrics:   m,
		Tokens:    auth.NewTokenService(&appConfig.Auth),
		Ledger:    l,
		Sessions:  sessions,
		Dreams:    dream.NewDreamService(l, sessions, interpreter, appConfig, m),
		Identity:  identity.NewIdentityService(database, appConfig.Ledger.SignupGrant),
		Billing:   billing.NewBillingService(database, l, &appConfig.Ledger),
		Contact:   contact.NewContactService(&appConfig.Mail),
	}
}

// WithImages enables dream illustrations
func (c *Config) WithImages(generator llm.ImageGenerator, store dream.ImageStore) *Config {
	c.Dreams.WithImages(generator, store)
	return c
}

func (c *Config) ModelsConfig() *config.ModelsConfig {
	return c.AppConfig.Models
}
