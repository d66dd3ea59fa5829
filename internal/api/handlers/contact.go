package handlers

import (
	"dream-san/internal/app"
	"dream-san/internal/service/contact"
	"dream-san/pkg/validation"
	"errors"
	"net/http"
)

type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type ContactHandlers struct {
	config    *app.Config
	validator *validation.ContactRequestValidator
}

func NewContactHandlers(config *app.Config) *ContactHandlers {
	return &ContactHandlers{
		config:    config,
		validator: validation.NewContactRequestValidator(),
	}
}

// ContactHandler forwards a contact form submission by mail
func (h *ContactHandlers) ContactHandler(w http.ResponseWriter, r *http.Request) {
	var req ContactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.validator.ValidateContactRequest(req.Name, req.Email, req.Subject, req.Message); err != nil {
		sendError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	err := h.config.Contact.Send(r.Context(), contact.ContactMessage{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		if errors.Is(err, contact.ErrNotConfigured) {
			sendError(w, http.StatusServiceUnavailable, "Contact form unavailable", err)
			return
		}
		sendError(w, http.StatusBadGateway, "Error sending message", err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}
