package contact

import (
	"context"
	"dream-san/internal/config"
	"dream-san/internal/logger"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

var ErrNotConfigured = errors.New("contact mail is not configured")

// ContactMessage is a message submitted through the contact form
type ContactMessage struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// sender delivers a composed message
type sender interface {
	Send(ctx context.Context, msg *mail.Msg) error
}

type smtpSender struct {
	cfg *config.MailConfig
}

func (s *smtpSender) Send(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("error creating mail client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// ContactService forwards contact form submissions by mail
type ContactService struct {
	cfg    *config.MailConfig
	sender sender
}

// NewContactService creates a ContactService that sends over SMTP
func NewContactService(cfg *config.MailConfig) *ContactService {
	return &ContactService{cfg: cfg, sender: &smtpSender{cfg: cfg}}
}

// Send mails the message to the contact address with reply-to set to the sender
func (s *ContactService) Send(ctx context.Context, message ContactMessage) error {
	if s.cfg.ContactEmail == "" || s.cfg.From == "" {
		return ErrNotConfigured
	}

	msg, err := s.compose(message)
	if err != nil {
		return err
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		logger.Log.WithField("reply_to", message.Email).WithError(err).Error("Failed to send contact mail")
		return fmt.Errorf("error sending contact mail: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"reply_to": message.Email,
		"subject":  message.Subject,
	}).Info("Contact mail sent")
	return nil
}

func (s *ContactService) compose(message ContactMessage) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(s.cfg.ContactEmail); err != nil {
		return nil, fmt.Errorf("invalid contact address: %w", err)
	}
	if err := msg.ReplyTo(message.Email); err != nil {
		return nil, fmt.Errorf("invalid reply-to address: %w", err)
	}

	msg.Subject("Dream-San Contact: " + message.Subject)
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Name: %s\nEmail: %s\nSubject: %s\n\nMessage:\n%s\n",
		message.Name, message.Email, message.Subject, message.Message,
	))
	return msg, nil
}
