package notify

import (
	"context"
	"fmt"
	"net/smtp"
)

// EmailProvider sends a notification via SMTP. No ecosystem SMTP client
// appears in the retrieval pack, so this uses net/smtp directly —
// documented as a stdlib usage in DESIGN.md.
type EmailProvider struct {
	dial func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailProvider() *EmailProvider {
	return &EmailProvider{dial: smtp.SendMail}
}

func (p *EmailProvider) Send(ctx context.Context, channel Channel, payload Payload) DeliveryResult {
	addr := channel.Config["smtpAddr"]
	from := channel.Config["from"]
	to := channel.Config["to"]
	if addr == "" || from == "" || to == "" {
		return DeliveryResult{Success: false, Attempt: 1, Error: "notify: email channel missing smtpAddr/from/to"}
	}

	subject := fmt.Sprintf("%v", payload["title"])
	body := fmt.Sprintf("%v", payload["message"])
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", from, to, subject, body))

	var auth smtp.Auth
	if user, pass := channel.Config["username"], channel.Config["password"]; user != "" {
		auth = smtp.PlainAuth("", user, pass, addrHost(addr))
	}

	// net/smtp has no context-aware API; callers bound overall notification
	// latency at the router level via the 10-second provider timeout norm.
	_ = ctx
	if err := p.dial(addr, auth, from, []string{to}, msg); err != nil {
		return DeliveryResult{Success: false, Attempt: 1, Error: err.Error()}
	}
	return DeliveryResult{Success: true, Attempt: 1}
}

func addrHost(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
