package email

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/mailersend/mailersend-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tedxreg/registration/config"
)

func TestSender_DisabledLogsOnly(t *testing.T) {
	var buf bytes.Buffer
	s := NewSender(config.MailConfig{FromEmail: "noreply@tedx.in"}, zerolog.New(&buf))
	assert.False(t, s.Enabled())

	err := s.Send(context.Background(), Message{To: "a@b.c", Subject: "Your receipt"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "mail disabled")
	assert.Contains(t, buf.String(), "a@b.c")
}

func TestSender_BuildMessage(t *testing.T) {
	s := NewSender(config.MailConfig{APIKey: "key", FromName: "TEDx", FromEmail: "noreply@tedx.in"}, zerolog.Nop())
	require.True(t, s.Enabled())

	m := s.build(mailersend.NewMailersend("key").Email.NewMessage(), Message{
		To:          "asha@example.com",
		ToName:      "Asha",
		Subject:     "Your TEDx receipt",
		Text:        "Thanks",
		Attachments: []Attachment{{Filename: "receipt.pdf", Data: []byte("%PDF")}},
	})

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "asha@example.com")
	assert.Contains(t, body, "Your TEDx receipt")
	assert.Contains(t, body, "receipt.pdf")
	assert.Contains(t, body, "JVBERg==")
}
