// Package alert notifies operators when the language model backend is failing.
package alert

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/soundprediction/graphquery/pkg/config"
)

// Alerter defines an interface for sending alerts
type Alerter interface {
	Alert(subject, message string) error
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailAlerter implements Alerter using SMTP
type EmailAlerter struct {
	cfg  config.AlertConfig
	send sendFunc
}

// NewEmailAlerter creates a new email alerter
func NewEmailAlerter(cfg config.AlertConfig) *EmailAlerter {
	return &EmailAlerter{
		cfg:  cfg,
		send: smtp.SendMail,
	}
}

// New returns an EmailAlerter when alerting is enabled and configured, a NoOpAlerter otherwise.
func New(cfg config.AlertConfig) Alerter {
	if !cfg.Enabled || cfg.SMTPHost == "" || len(cfg.To) == 0 {
		return &NoOpAlerter{}
	}
	return NewEmailAlerter(cfg)
}

// Alert sends an email with the given subject and message
func (a *EmailAlerter) Alert(subject, message string) error {
	if !a.cfg.Enabled {
		return nil
	}

	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.SMTPHost)
	}

	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		a.cfg.From, strings.Join(a.cfg.To, ","), subject, message))
	addr := fmt.Sprintf("%s:%d", a.cfg.SMTPHost, a.cfg.SMTPPort)

	if err := a.send(addr, auth, a.cfg.From, a.cfg.To, msg); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}

// NoOpAlerter is a dummy alerter for when alerting is disabled
type NoOpAlerter struct{}

func (n *NoOpAlerter) Alert(subject, message string) error {
	return nil
}
