package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/saudema/saudema/pkg/mail"
)

// Enabled reports whether password reset emails can be delivered.
func (c EmailConfig) Enabled() bool {
	return c.SMTP.Enabled
}

// Validate checks the SMTP block. A relay without a default sender is
// rejected because reset emails never set their own From.
func (c EmailConfig) Validate() error {
	if !c.SMTP.Enabled {
		return nil
	}
	if strings.TrimSpace(c.SMTP.From) == "" {
		return errors.New("email.smtp.from must be configured when smtp is enabled")
	}
	if err := c.SMTPSettings().Validate(); err != nil {
		return fmt.Errorf("email.smtp: %w", err)
	}
	return nil
}

// SMTPSettings maps the smtp block onto the mailer settings, trimming the
// fields operators usually paste from the SendGrid console.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	smtp := c.SMTP
	return mail.SMTPSettings{
		Enabled:  smtp.Enabled,
		Host:     strings.TrimSpace(smtp.Host),
		Port:     smtp.Port,
		Username: strings.TrimSpace(smtp.Username),
		Password: strings.TrimSpace(smtp.Password),
		From:     strings.TrimSpace(smtp.From),
		UseTLS:   smtp.UseTLS,
		Timeout:  smtp.Timeout,
	}
}
