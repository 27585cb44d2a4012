package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/Pavel2201/habit-stake/internal/config"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendForfeitureNotice tells a user that a habit failed and its stake was
// forfeited
func (s *Sender) SendForfeitureNotice(to, username, habitTitle string, amount float64) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Habit Failed - Stake Forfeited"

	// Format email body
	body := fmt.Sprintf(
		"Dear %s,\n\n", username,
	)
	body += fmt.Sprintf(
		"Your habit %q has been marked as failed.\n", habitTitle,
	)
	if amount > 0 {
		body += fmt.Sprintf(
			"Your stake of %.2f has been forfeited and a payment of %.2f is now due.\n"+
				"The charge will be processed by our payment provider.\n",
			amount, amount,
		)
	}
	body += fmt.Sprintf("\nRecorded at: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	body += "\nBest regards,\nHabit Stake"
	e.Text = []byte(body)

	// Send email
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	err := e.Send(addr, auth)
	if err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
