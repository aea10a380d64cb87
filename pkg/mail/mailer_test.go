package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	from     string
	rcpts    []string
	data     bytes.Buffer
	quit     bool
	authused bool
}

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

func (c *stubClient) Mail(from string) error          { c.from = from; return nil }
func (c *stubClient) Rcpt(rcpt string) error          { c.rcpts = append(c.rcpts, rcpt); return nil }
func (c *stubClient) Data() (io.WriteCloser, error)   { return nopWriteCloser{&c.data}, nil }
func (c *stubClient) Quit() error                     { c.quit = true; return nil }
func (c *stubClient) Close() error                    { return nil }
func (c *stubClient) StartTLS(*tls.Config) error      { return nil }
func (c *stubClient) Auth(smtp.Auth) error            { c.authused = true; return nil }
func (c *stubClient) Extension(string) (bool, string) { return false, "" }

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true})
	require.ErrorContains(t, err, "host is required")

	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"})
	require.ErrorContains(t, err, "port is required")

	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, mailer)
}

func TestSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{
		To:      []string{"test@example.com"},
		Subject: "Test",
		Body:    "Hello",
	})
	require.ErrorIs(t, err, ErrSMTPDisabled)
}

func TestSendDeliversThroughTransport(t *testing.T) {
	client := &stubClient{}
	server, _ := net.Pipe()
	t.Cleanup(func() { server.Close() })

	mailer := &smtpMailer{
		cfg: SMTPSettings{
			Enabled: true,
			Host:    "smtp.example.com",
			Port:    587,
			From:    "no-reply@example.com",
		},
		dial: func(context.Context, SMTPSettings) (net.Conn, smtpClient, error) {
			return server, client, nil
		},
		auth: authenticate,
	}

	err := mailer.Send(context.Background(), Message{
		To:      []string{"alice@example.com", " alice@example.com "},
		Subject: "Welcome",
		Body:    "Hello Alice",
	})
	require.NoError(t, err)

	assert.Equal(t, "no-reply@example.com", client.from)
	assert.Equal(t, []string{"alice@example.com"}, client.rcpts)
	assert.Contains(t, client.data.String(), "Subject: Welcome")
	assert.Contains(t, client.data.String(), "\r\n\r\nHello Alice")
	assert.True(t, client.quit)
	assert.False(t, client.authused, "no credentials configured")
}

func TestSendValidatesEnvelope(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
	})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{To: []string{"   ", "\t"}})
	assert.ErrorContains(t, err, "at least one recipient")

	err = mailer.Send(context.Background(), Message{
		From: "invalid-from",
		To:   []string{"user@example.com"},
	})
	assert.ErrorContains(t, err, "invalid from address")

	err = mailer.Send(context.Background(), Message{
		To: []string{"user@example.com", "bad-address"},
	})
	assert.ErrorContains(t, err, "invalid recipient address")
}

func TestDefaultTimeoutApplied(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
		UseTLS:  true,
	})
	require.NoError(t, err)

	sm, ok := mailer.(*smtpMailer)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, sm.cfg.Timeout)
}

func TestRenderMessageSanitisesHeaders(t *testing.T) {
	content := renderMessage("from@example.com", []string{"to@example.com"}, "Subject\r\nBreak", "Body")

	assert.Contains(t, content, "From: from@example.com")
	assert.Contains(t, content, "Subject: Subject  Break")
	assert.Contains(t, content, "\r\n\r\nBody")
}

func TestDedupeAddresses(t *testing.T) {
	result := dedupeAddresses([]string{
		"alice@example.com", "bob@example.com", " alice@example.com ", "", "bob@example.com",
	})
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, result)
}
