package handlers

import (
	"crypto/subtle"
	"dream-san/internal/app"
	"dream-san/internal/auth"
	"dream-san/internal/logger"
	"dream-san/internal/repository/db"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const maxWebhookBytes = 65536

type WebhookResponse struct {
	Received  bool   `json:"received"`
	Handled   string `json:"handled,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

type GrantResponse struct {
	Success     bool   `json:"success"`
	Period      string `json:"period"`
	Subscribers int    `json:"subscribers"`
	Grant       int    `json:"grant"`
}

// BillingHandlers serves the payment webhook and the monthly grant trigger
type BillingHandlers struct {
	config *app.Config
}

func NewBillingHandlers(config *app.Config) *BillingHandlers {
	return &BillingHandlers{config: config}
}

// StripeWebhookHandler verifies the event signature and activates subscriptions on completed checkouts
func (h *BillingHandlers) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	secret := h.config.AppConfig.Stripe.WebhookSecret
	if secret == "" {
		sendError(w, http.StatusServiceUnavailable, "Payments not configured", nil)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		sendError(w, http.StatusBadRequest, "Error reading request body", err)
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logger.Log.WithError(err).Warn("Stripe webhook signature verification failed")
		sendError(w, http.StatusBadRequest, "Invalid signature", err)
		return
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		logger.Log.WithField("event_type", event.Type).Debug("Ignoring Stripe event")
		sendJSON(w, http.StatusOK, WebhookResponse{Received: true})
		return
	}

	var checkout stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &checkout); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid checkout session", err)
		return
	}

	email := checkout.CustomerEmail
	if checkout.CustomerDetails != nil && checkout.CustomerDetails.Email != "" {
		email = checkout.CustomerDetails.Email
	}

	// Checkout ids are stable across redeliveries of the event
	reference := checkout.ID
	if reference == "" {
		reference = event.ID
	}

	user, _, err := h.config.Billing.HandleCheckoutCompleted(r.Context(), email, reference)
	if err != nil {
		if errors.Is(err, db.ErrAlreadyApplied) {
			logger.Log.WithFields(logrus.Fields{
				"event_id":   event.ID,
				"session_id": checkout.ID,
			}).Info("Checkout already processed")
			sendJSON(w, http.StatusOK, WebhookResponse{Received: true, Duplicate: true})
			return
		}
		if errors.Is(err, db.ErrUserNotFound) {
			// Acknowledge so the processor stops retrying; the payment needs manual follow-up
			logger.Log.WithFields(logrus.Fields{
				"event_id":   event.ID,
				"session_id": checkout.ID,
				"email":      email,
			}).Error("Checkout completed for unknown customer")
			sendJSON(w, http.StatusOK, WebhookResponse{Received: true})
			return
		}
		logger.Log.WithError(err).Error("Error activating subscription")
		sendServiceError(w, err)
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"event_id": event.ID,
		"user_id":  user.ID,
	}).Info("Processed checkout")
	sendJSON(w, http.StatusOK, WebhookResponse{Received: true, Handled: string(event.Type)})
}

// MonthlyGrantHandler credits every subscriber; callers authenticate with the cron secret
func (h *BillingHandlers) MonthlyGrantHandler(w http.ResponseWriter, r *http.Request) {
	secret := h.config.AppConfig.Cron.Secret
	if secret == "" {
		sendError(w, http.StatusServiceUnavailable, "Cron not configured", nil)
		return
	}

	token, err := auth.BearerToken(r)
	if err != nil || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		sendError(w, http.StatusUnauthorized, "Unauthorized", err)
		return
	}

	credited, period, err := h.config.Billing.MonthlyGrant(r.Context())
	if err != nil {
		sendServiceError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, GrantResponse{
		Success:     true,
		Period:      period,
		Subscribers: credited,
		Grant:       h.config.AppConfig.Ledger.MonthlyGrant,
	})
}
