package dream

import (
	"context"
	"dream-san/internal/config"
	"dream-san/internal/logger"
	"dream-san/internal/metrics"
	"dream-san/internal/service/ledger"
	"dream-san/internal/service/llm"
	"dream-san/internal/service/session"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrEmptyPrompt  = errors.New("dream description is required")
	ErrInvalidModel = errors.New("model is not available for this provider")
)

// ImageStore persists generated images and returns their public URL
type ImageStore interface {
	Put(ctx context.Context, userID string, png []byte) (string, error)
}

// InterpretRequest contains all the parameters needed to interpret a dream
type InterpretRequest struct {
	UserID    string // Extracted from auth context
	SessionID string // Empty starts a new session
	Prompt    string
	Model     string
}

// InterpretResponse contains the interpretation and what it cost
type InterpretResponse struct {
	Reply         string
	SessionID     string
	ImageURL      string
	Model         string
	TokensCharged int
	Balance       int
}

// DreamService runs the charge, interpret, persist flow
type DreamService struct {
	ledger      *ledger.Ledger
	sessions    *session.SessionService
	interpreter llm.Interpreter
	generator   llm.ImageGenerator
	store       ImageStore
	models      *config.ModelsConfig
	timeout     time.Duration
	imagePrompt string
	metrics     *metrics.Metrics
}

// NewDreamService creates a new DreamService without illustrations
func NewDreamService(l *ledger.Ledger, sessions *session.SessionService, interpreter llm.Interpreter, cfg *config.AppConfig, m *metrics.Metrics) *DreamService {
	return &DreamService{
		ledger:      l,
		sessions:    sessions,
		interpreter: interpreter,
		models:      cfg.Models,
		timeout:     cfg.LLM.Timeout,
		imagePrompt: cfg.Images.PromptTemplate,
		metrics:     m,
	}
}

// WithImages enables illustrations for new sessions
func (s *DreamService) WithImages(generator llm.ImageGenerator, store ImageStore) *DreamService {
	s.generator = generator
	s.store = store
	return s
}

// Interpret charges the user, asks the interpreter and appends the exchange to the session.
// The charge is refunded when no interpretation could be delivered.
func (s *DreamService) Interpret(ctx context.Context, req InterpretRequest) (*InterpretResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	if err := s.validateModel(req.Model); err != nil {
		return nil, err
	}

	// Ownership is checked before anything is charged
	var history []llm.Message
	if req.SessionID != "" {
		existing, err := s.sessions.LoadOwnedSession(ctx, req.SessionID, req.UserID)
		if err != nil {
			return nil, err
		}
		for _, turn := range existing.Turns {
			history = append(history, llm.Message{Role: turn.Role, Content: turn.Content})
		}
	}

	receipt, err := s.ledger.Charge(ctx, req.UserID, prompt)
	if err != nil {
		return nil, err
	}

	interpretCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	var images <-chan string
	if req.SessionID == "" && s.generator != nil && s.store != nil {
		images = s.illustrate(interpretCtx, req.UserID, prompt)
	}

	model := req.Model
	if model == "" {
		model = s.interpreter.DefaultModel()
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":       req.UserID,
		"session_id":    req.SessionID,
		"model":         model,
		"history_turns": len(history),
	}).Debug("Prepared for interpreter call")

	started := time.Now()
	reply, err := s.interpreter.Interpret(interpretCtx, history, prompt, model)
	s.metrics.ObserveInterpretation(s.interpreter.Name(), started, err)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		s.refund(ctx, receipt, "interpretation failed")
		return nil, fmt.Errorf("interpreter error: %w", err)
	}

	var imageURL string
	if images != nil {
		imageURL = <-images
	}

	sessionID, err := s.sessions.AppendTurn(ctx, session.AppendTurnRequest{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Prompt:    prompt,
		Reply:     reply,
		ImageURL:  imageURL,
	})
	if err != nil {
		s.refund(ctx, receipt, "session write failed")
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":    req.UserID,
		"session_id": sessionID,
		"cost":       receipt.Cost,
		"has_image":  imageURL != "",
	}).Info("Dream interpreted")

	return &InterpretResponse{
		Reply:         reply,
		SessionID:     sessionID,
		ImageURL:      imageURL,
		Model:         model,
		TokensCharged: receipt.Cost,
		Balance:       receipt.BalanceAfter,
	}, nil
}

func (s *DreamService) validateModel(model string) error {
	if model == "" || s.models == nil {
		return nil
	}
	for _, m := range s.models.ModelsForProvider(s.interpreter.Name()) {
		if m.ID == model {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidModel, model)
}

func (s *DreamService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// illustrate generates and uploads the image in the background. The channel
// always receives exactly one value, empty when anything failed.
func (s *DreamService) illustrate(ctx context.Context, userID, prompt string) <-chan string {
	result := make(chan string, 1)

	go func() {
		png, err := s.generator.GenerateImage(ctx, s.buildImagePrompt(prompt))
		if err != nil {
			logger.Log.WithField("user_id", userID).WithError(err).Warn("Image generation failed, continuing without image")
			result <- ""
			return
		}

		url, err := s.store.Put(ctx, userID, png)
		if err != nil {
			logger.Log.WithField("user_id", userID).WithError(err).Warn("Image upload failed, continuing without image")
			result <- ""
			return
		}
		result <- url
	}()

	return result
}

func (s *DreamService) buildImagePrompt(prompt string) string {
	if strings.Contains(s.imagePrompt, "%s") {
		return strings.Replace(s.imagePrompt, "%s", prompt, 1)
	}
	if s.imagePrompt == "" {
		return prompt
	}
	return s.imagePrompt + " " + prompt
}

// refund is detached from request cancellation
func (s *DreamService) refund(ctx context.Context, receipt *ledger.Receipt, reason string) {
	if _, err := s.ledger.Refund(context.WithoutCancel(ctx), receipt, reason); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"user_id": receipt.UserID,
			"cost":    receipt.Cost,
		}).WithError(err).Error("Charge could not be refunded")
	}
}
