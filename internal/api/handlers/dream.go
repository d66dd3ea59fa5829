package handlers

import (
	"dream-san/internal/app"
	"dream-san/internal/config"
	"dream-san/internal/logger"
	"dream-san/internal/repository/db"
	"dream-san/internal/service/dream"
	"dream-san/pkg/validation"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type DreamRequest struct {
	Dream     string `json:"dream"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

type DreamResponse struct {
	Interpretation string `json:"interpretation"`
	SessionID      string `json:"session_id"`
	ImageURL       string `json:"image_url,omitempty"`
	Model          string `json:"model"`
	TokensCharged  int    `json:"tokens_charged"`
	Balance        int    `json:"balance"`
}

type SessionInfo struct {
	ID        string    `json:"id"`
	DreamText string    `json:"dream_text"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

type SessionResponse struct {
	ID        string    `json:"id"`
	DreamText string    `json:"dream_text"`
	ImageURL  string    `json:"image_url,omitempty"`
	Turns     []db.Turn `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ModelsResponse struct {
	Provider     string         `json:"provider"`
	DefaultModel string         `json:"default_model"`
	Models       []config.Model `json:"models"`
}

// DreamHandlers serves interpretation and dream history
type DreamHandlers struct {
	config    *app.Config
	validator *validation.DreamRequestValidator
}

func NewDreamHandlers(config *app.Config) *DreamHandlers {
	return &DreamHandlers{
		config:    config,
		validator: validation.NewDreamRequestValidator(),
	}
}

// InterpretHandler charges the caller and interprets a dream
func (h *DreamHandlers) InterpretHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromRequest(r)

	var req DreamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validator.ValidateDreamRequest(req.Dream, req.SessionID); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":     claims.UserID,
		"session_id":  req.SessionID,
		"dream_chars": len(req.Dream),
	}).Info("Dream interpretation request received")

	resp, err := h.config.Dreams.Interpret(r.Context(), dream.InterpretRequest{
		UserID:    claims.UserID,
		SessionID: req.SessionID,
		Prompt:    req.Dream,
		Model:     req.Model,
	})
	if err != nil {
		logger.Log.WithError(err).Warn("Error from dream service")
		sendServiceError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, DreamResponse{
		Interpretation: resp.Reply,
		SessionID:      resp.SessionID,
		ImageURL:       resp.ImageURL,
		Model:          resp.Model,
		TokensCharged:  resp.TokensCharged,
		Balance:        resp.Balance,
	})
}

// ListSessionsHandler returns the caller's dream history, newest first
func (h *DreamHandlers) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromRequest(r)

	sessions, err := h.config.Sessions.ListSessions(r.Context(), claims.UserID)
	if err != nil {
		logger.Log.WithError(err).Error("Error from session service")
		sendServiceError(w, err)
		return
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, SessionInfo{
			ID:        s.ID,
			DreamText: s.DreamText,
			ImageURL:  s.ImageURL,
			CreatedAt: s.CreatedAt,
		})
	}
	sendJSON(w, http.StatusOK, SessionsResponse{Sessions: infos})
}

// GetSessionHandler returns one of the caller's sessions with all its turns
func (h *DreamHandlers) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromRequest(r)
	sessionID := r.PathValue("id")

	session, err := h.config.Sessions.LoadOwnedSession(r.Context(), sessionID, claims.UserID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	turns := session.Turns
	if turns == nil {
		turns = []db.Turn{}
	}
	sendJSON(w, http.StatusOK, SessionResponse{
		ID:        session.ID,
		DreamText: session.DreamText,
		ImageURL:  session.ImageURL,
		Turns:     turns,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	})
}

// GetModelsHandler returns the models available for the configured provider
func (h *DreamHandlers) GetModelsHandler(w http.ResponseWriter, r *http.Request) {
	provider := h.config.AppConfig.LLM.Provider
	if provider == "genkit" {
		provider = "openrouter"
	}

	models := h.config.ModelsConfig().ModelsForProvider(provider)
	if models == nil {
		models = []config.Model{}
	}
	sendJSON(w, http.StatusOK, ModelsResponse{
		Provider:     provider,
		DefaultModel: h.config.ModelsConfig().GetDefaultModel(provider),
		Models:       models,
	})
}
