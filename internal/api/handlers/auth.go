package handlers

import (
	"dream-san/internal/app"
	"dream-san/internal/auth"
	"dream-san/internal/logger"
	"dream-san/internal/repository/db"
	"dream-san/internal/service/identity"
	"dream-san/pkg/validation"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
}

type UserData struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	TokenBalance int       `json:"token_balance"`
	TokensSpent  int       `json:"tokens_spent"`
	IsSubscribed bool      `json:"is_subscribed"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

type AuthResponse struct {
	Token string   `json:"token"`
	User  UserData `json:"user"`
}

// AuthHandlers serves login, registration and provider token exchange
type AuthHandlers struct {
	config    *app.Config
	validator *validation.AuthRequestValidator
}

func NewAuthHandlers(config *app.Config) *AuthHandlers {
	return &AuthHandlers{
		config:    config,
		validator: validation.NewAuthRequestValidator(),
	}
}

func (h *AuthHandlers) userData(user *db.User) UserData {
	return UserData{
		ID:           user.ID,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		AvatarURL:    user.AvatarURL,
		TokenBalance: user.TokenBalance,
		TokensSpent:  user.TokensSpent,
		IsSubscribed: user.IsSubscribed,
		IsAdmin:      h.config.AppConfig.Admin.IsAdmin(user.Email),
		CreatedAt:    user.CreatedAt,
	}
}

func (h *AuthHandlers) sendSession(w http.ResponseWriter, status int, user *db.User) {
	token, err := h.config.Tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		logger.Log.WithError(err).Error("Error generating token")
		sendError(w, http.StatusInternalServerError, "Error generating token", err)
		return
	}
	sendJSON(w, status, AuthResponse{Token: token, User: h.userData(user)})
}

// RegisterHandler creates a local account
func (h *AuthHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validator.ValidateRegisterRequest(req.Email, req.Password, req.GivenName, req.FamilyName); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	user, err := h.config.Identity.Register(r.Context(), req.Email, req.Password, req.GivenName, req.FamilyName)
	if err != nil {
		logger.Log.WithError(err).Warn("Registration failed")
		sendServiceError(w, err)
		return
	}

	logger.Log.WithField("user_id", user.ID).Info("User registered successfully")
	h.sendSession(w, http.StatusCreated, user)
}

// LoginHandler authenticates a local account
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validator.ValidateLoginRequest(req.Email, req.Password); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	user, err := h.config.Identity.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	logger.Log.WithField("user_id", user.ID).Info("User logged in successfully")
	h.sendSession(w, http.StatusOK, user)
}

// ExchangeHandler trades an identity-provider access token for a session token
func (h *AuthHandlers) ExchangeHandler(w http.ResponseWriter, r *http.Request) {
	providerToken, err := auth.BearerToken(r)
	if err != nil {
		sendError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}

	claims, err := h.config.Tokens.VerifyProviderToken(providerToken)
	if err != nil {
		logger.Log.WithError(err).Info("Provider token rejected")
		sendError(w, http.StatusUnauthorized, "Invalid token", err)
		return
	}

	user, err := h.config.Identity.SyncUser(r.Context(), identity.ExternalIdentity{
		Provider:   h.config.Tokens.ProviderName(),
		Subject:    claims.Subject,
		Email:      claims.Email,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		AvatarURL:  claims.Picture,
	})
	if err != nil {
		logger.Log.WithError(err).Error("Error syncing user")
		sendServiceError(w, err)
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"provider": h.config.Tokens.ProviderName(),
	}).Info("Exchanged provider token")
	h.sendSession(w, http.StatusOK, user)
}
