package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSMTPClient struct {
	from    string
	rcpts   []string
	data    bytes.Buffer
	quit    bool
	authRan bool
}

func (f *fakeSMTPClient) Mail(from string) error { f.from = from; return nil }
func (f *fakeSMTPClient) Rcpt(to string) error   { f.rcpts = append(f.rcpts, to); return nil }
func (f *fakeSMTPClient) Data() (io.WriteCloser, error) {
	return nopWriteCloser{&f.data}, nil
}
func (f *fakeSMTPClient) Quit() error                     { f.quit = true; return nil }
func (f *fakeSMTPClient) Close() error                    { return nil }
func (f *fakeSMTPClient) StartTLS(*tls.Config) error      { return nil }
func (f *fakeSMTPClient) Auth(smtp.Auth) error            { f.authRan = true; return nil }
func (f *fakeSMTPClient) Extension(string) (bool, string) { return false, "" }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newFakeMailer(cfg SMTPSettings, client *fakeSMTPClient) *smtpMailer {
	return &smtpMailer{
		cfg: cfg,
		dialFn: func(context.Context, SMTPSettings) (net.Conn, smtpClient, error) {
			server, conn := net.Pipe()
			go func() { _, _ = io.Copy(io.Discard, server) }()
			return conn, client, nil
		},
	}
}

func TestSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)

	err = mailer.Send(context.Background(), Message{To: []string{"a@x.com"}})
	require.ErrorIs(t, err, ErrSMTPDisabled)
}

func TestSendWritesMessage(t *testing.T) {
	client := &fakeSMTPClient{}
	mailer := newFakeMailer(SMTPSettings{
		Enabled: true,
		Host:    "mail.example.com",
		Port:    587,
		From:    "noreply@example.com",
	}, client)

	err := mailer.Send(context.Background(), Message{
		To:      []string{"alice@example.com"},
		Subject: "Your verification code",
		Body:    "Code: 123456",
	})
	require.NoError(t, err)

	require.Equal(t, "noreply@example.com", client.from)
	require.Equal(t, []string{"alice@example.com"}, client.rcpts)
	require.Contains(t, client.data.String(), "Subject: Your verification code")
	require.Contains(t, client.data.String(), "Code: 123456")
	require.Contains(t, client.data.String(), "charset=UTF-8\r\n\r\nCode: 123456",
		"header section must end with an empty line before the body")
	require.True(t, client.quit)
	require.False(t, client.authRan, "auth must be skipped without a username")
}

func TestSendRejectsInvalidRecipient(t *testing.T) {
	client := &fakeSMTPClient{}
	mailer := newFakeMailer(SMTPSettings{
		Enabled: true,
		Host:    "mail.example.com",
		Port:    587,
		From:    "noreply@example.com",
	}, client)

	err := mailer.Send(context.Background(), Message{To: []string{"not-an-address"}})
	require.Error(t, err)
	require.Empty(t, client.rcpts)
}

func TestNewSMTPMailerValidation(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true})
	require.Error(t, err)
}
