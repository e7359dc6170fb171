package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// MailDialer matches gomail.Dialer.
type MailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// ProfileReader resolves a recipient's email address.
type ProfileReader interface {
	Email(ctx context.Context, userID string) (string, error)
}

// emailSubjects maps event topics to subject lines. Topics absent from the
// map are push-only and skip email entirely.
var emailSubjects = map[string]string{
	"negotiation.proposed": "New transcription job offer",
	"negotiation.hired":    "Payment confirmed, job starting",
	"job.completed":        "Job completed",
	"negotiation.rejected": "Offer declined",
}

// EmailSink delivers a subset of events over SMTP.
type EmailSink struct {
	dialer   MailDialer
	profiles ProfileReader
	from     string
}

func NewEmailSink(dialer MailDialer, profiles ProfileReader, from string) *EmailSink {
	return &EmailSink{dialer: dialer, profiles: profiles, from: from}
}

func (s *EmailSink) Publish(ctx context.Context, userID, eventType string, payload []byte) error {
	subject, ok := emailSubjects[eventType]
	if !ok {
		return nil
	}

	to, err := s.profiles.Email(ctx, userID)
	if err != nil {
		return fmt.Errorf("notify: resolve recipient email: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", fmt.Sprintf("%s\n\nOpen the app for details.\n\nEvent data: %s\n", subject, payload))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("notify: send email: %w", err)
	}
	return nil
}
