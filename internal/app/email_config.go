package app

import "github.com/wardenhq/warden/pkg/mail"

// SMTPSettings maps the email section of the config onto the mail
// package's settings type.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	s := c.SMTP
	return mail.SMTPSettings{
		Enabled:  s.Enabled,
		Host:     s.Host,
		Port:     s.Port,
		Username: s.Username,
		Password: s.Password,
		From:     s.From,
		UseTLS:   s.UseTLS,
		Timeout:  s.Timeout,
	}
}
