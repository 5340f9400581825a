package email

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPProviderSendTemplate(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	p := NewSMTP(Config{Host: "mail.local", Port: 1025, From: "no-reply@merchline.local"})
	p.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.Nil(t, a)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"ops@acme.test", "hr@acme.test"}, "quota_threshold", map[string]any{
		"campaign_name":  "Onboarding 2026",
		"consumed":       90,
		"quota":          100,
		"threshold":      80,
		"threshold_type": "percent",
	})
	require.NoError(t, err)
	assert.Equal(t, "mail.local:1025", gotAddr)
	assert.Equal(t, []string{"ops@acme.test", "hr@acme.test"}, gotTo)
	assert.Contains(t, gotMsg, "To: ops@acme.test, hr@acme.test\r\n")
	assert.Contains(t, gotMsg, "Subject: Campaign Onboarding 2026 reached its quota threshold\r\n")
	assert.Contains(t, gotMsg, "<strong>90</strong> of <strong>100</strong>")
	assert.Contains(t, gotMsg, "Threshold: 80%")
}

func TestSMTPProviderRejectsEmptyRecipients(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 25})
	assert.ErrorIs(t, p.Send(context.Background(), nil, "s", "b"), ErrNoRecipients)
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, _, err := Render("missing", nil)
	assert.Error(t, err)
}
