package notification

import (
	"context"
	"fmt"
	"net/smtp"
)

// EmailNotifier sends plain-text alert mail over SMTP.
type EmailNotifier struct {
	addr string // host:port
	from string
}

func NewEmailNotifier(addr, from string) *EmailNotifier {
	return &EmailNotifier{addr: addr, from: from}
}

func (n *EmailNotifier) Send(ctx context.Context, destination, message string) error {
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		n.from, destination, message, message)
	if err := smtp.SendMail(n.addr, nil, n.from, []string{destination}, []byte(body)); err != nil {
		return fmt.Errorf("send mail to %s: %w", destination, err)
	}
	return nil
}
