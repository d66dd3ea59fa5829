package contact

import (
	"bytes"
	"context"
	"dream-san/internal/config"
	"errors"
	"strings"
	"testing"

	"github.com/wneessen/go-mail"
)

type recordingSender struct {
	sent []*mail.Msg
	err  error
}

func (r *recordingSender) Send(ctx context.Context, msg *mail.Msg) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func newTestService(recorder *recordingSender) *ContactService {
	return &ContactService{
		cfg: &config.MailConfig{
			From:         "noreply@dreamsan.app",
			ContactEmail: "hello@dreamsan.app",
		},
		sender: recorder,
	}
}

func TestSend(t *testing.T) {
	recorder := &recordingSender{}
	service := newTestService(recorder)

	err := service.Send(context.Background(), ContactMessage{
		Name:    "Visitor",
		Email:   "visitor@example.com",
		Subject: "Hello",
		Message: "I dreamt of your app",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(recorder.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(recorder.sent))
	}

	var buf bytes.Buffer
	if _, err := recorder.sent[0].WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	raw := buf.String()

	for _, want := range []string{
		"Subject: Dream-San Contact: Hello",
		"hello@dreamsan.app",
		"Reply-To: <visitor@example.com>",
		"I dreamt of your app",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSend_Errors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		service := &ContactService{cfg: &config.MailConfig{}, sender: &recordingSender{}}
		if err := service.Send(context.Background(), ContactMessage{Email: "a@b.co"}); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("Send() error = %v, want ErrNotConfigured", err)
		}
	})

	t.Run("bad reply-to", func(t *testing.T) {
		recorder := &recordingSender{}
		if err := newTestService(recorder).Send(context.Background(), ContactMessage{Email: "not an address"}); err == nil {
			t.Error("Send() error = nil, want error")
		}
		if len(recorder.sent) != 0 {
			t.Error("nothing should be sent for an invalid address")
		}
	})

	t.Run("smtp failure", func(t *testing.T) {
		recorder := &recordingSender{err: errors.New("535 authentication failed")}
		if err := newTestService(recorder).Send(context.Background(), ContactMessage{Email: "a@b.co", Subject: "s"}); err == nil {
			t.Error("Send() error = nil, want error")
		}
	})
}
