package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
	"github.com/rs/zerolog"

	"github.com/tedxreg/registration/config"
)

type Attachment struct {
	Filename string
	Data     []byte
}

type Message struct {
	To          string
	ToName      string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Sender delivers mail through MailerSend. Without an API key it only logs.
type Sender struct {
	client *mailersend.Mailersend
	from   mailersend.From
	log    zerolog.Logger
}

func NewSender(cfg config.MailConfig, log zerolog.Logger) *Sender {
	s := &Sender{
		from: mailersend.From{Name: cfg.FromName, Email: cfg.FromEmail},
		log:  log.With().Str("component", "email").Logger(),
	}
	if cfg.APIKey != "" && cfg.FromEmail != "" {
		s.client = mailersend.NewMailersend(cfg.APIKey)
	}
	return s
}

func (s *Sender) Enabled() bool {
	return s.client != nil
}

func (s *Sender) Send(ctx context.Context, msg Message) error {
	if !s.Enabled() {
		s.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Int("attachments", len(msg.Attachments)).Msg("mail disabled, message not sent")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := s.client.Email.Send(ctx, s.build(s.client.Email.NewMessage(), msg))
	if err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("mailersend error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	s.log.Info().Str("to", msg.To).Str("message_id", res.Header.Get("X-Message-Id")).Msg("mail sent")
	return nil
}

func (s *Sender) build(m *mailersend.Message, msg Message) *mailersend.Message {
	m.SetFrom(s.from)
	m.SetRecipients([]mailersend.Recipient{{Name: msg.ToName, Email: msg.To}})
	m.SetSubject(msg.Subject)
	if strings.TrimSpace(msg.Text) != "" {
		m.SetText(msg.Text)
	}
	if strings.TrimSpace(msg.HTML) != "" {
		m.SetHTML(msg.HTML)
	}
	for _, a := range msg.Attachments {
		m.AddAttachment(mailersend.Attachment{
			Filename: a.Filename,
			Content:  base64.StdEncoding.EncodeToString(a.Data),
		})
	}
	return m
}
