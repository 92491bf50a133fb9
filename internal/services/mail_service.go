package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
	"strings"

	"github.com/domodwyer/mailyak/v3"
)

// MailConfig holds SMTP settings.
type MailConfig struct {
	Host        string
	Port        string
	Username    string
	Password    string
	From        string
	FrontendURL string
}

// MailService emails buyers about decisions on their transactions.
type MailService struct {
	cfg  MailConfig
	send func(msg *mailyak.MailYak) error
}

// NewMailService creates a new MailService.
func NewMailService(cfg MailConfig) *MailService {
	return &MailService{
		cfg:  cfg,
		send: func(msg *mailyak.MailYak) error { return msg.Send() },
	}
}

var (
	acceptedTemplate = template.Must(template.New("accepted").Parse(`<p>Hi {{.UserName}},</p>
<p>Your payment for <b>{{.EventName}}</b> has been confirmed.</p>
<ul>
<li>Order: {{.OrderID}}</li>
<li>Date: {{.EventDate}}</li>
<li>Tickets: {{.TicketQuantity}} x {{.TicketType}}</li>
</ul>
<p><a href="{{.TicketLink}}">View your tickets</a></p>`))

	rejectedTemplate = template.Must(template.New("rejected").Parse(`<p>Hi {{.UserName}},</p>
<p>We could not confirm your payment for <b>{{.EventName}}</b>. Your tickets have been released and any points, coupon or voucher you used were restored.</p>
<p><a href="{{.RetryLink}}">Try again</a></p>`))
)

// TransactionAccepted sends the "tickets confirmed" email.
func (s *MailService) TransactionAccepted(ctx context.Context, notice TransactionNotice) error {
	body, err := render(acceptedTemplate, map[string]any{
		"UserName":       notice.BuyerName,
		"EventName":      notice.EventName,
		"OrderID":        notice.InvoiceNumber,
		"EventDate":      notice.EventDate.Format("Monday, January 2, 2006"),
		"TicketQuantity": notice.TicketQuantity,
		"TicketType":     strings.Join(notice.TicketTypes, ", "),
		"TicketLink":     fmt.Sprintf("%s/transactions/%s", s.cfg.FrontendURL, notice.TransactionID),
	})
	if err != nil {
		return err
	}
	return s.deliver(notice.BuyerEmail, fmt.Sprintf("Your tickets for %s are confirmed!", notice.EventName), body)
}

// TransactionRejected sends the "transaction update" email.
func (s *MailService) TransactionRejected(ctx context.Context, notice TransactionNotice) error {
	body, err := render(rejectedTemplate, map[string]any{
		"UserName":  notice.BuyerName,
		"EventName": notice.EventName,
		"RetryLink": fmt.Sprintf("%s/events/%s", s.cfg.FrontendURL, notice.EventSlug),
	})
	if err != nil {
		return err
	}
	return s.deliver(notice.BuyerEmail, fmt.Sprintf("Transaction update for %s", notice.EventName), body)
}

// ProofUploaded is not emailed.
func (s *MailService) ProofUploaded(ctx context.Context, notice TransactionNotice) error {
	return nil
}

func (s *MailService) deliver(to, subject, html string) error {
	if s.cfg.Host == "" {
		log.Println("[Mail] SMTP host not configured")
		return nil
	}
	if to == "" {
		return fmt.Errorf("mail: recipient address is empty")
	}

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	msg := mailyak.New(s.cfg.Host+":"+s.cfg.Port, auth)
	msg.To(to)
	msg.From(s.cfg.From)
	msg.Subject(subject)
	msg.HTML().Set(html)

	if err := s.send(msg); err != nil {
		log.Printf("[Mail] Failed to send %q to %s: %v", subject, to, err)
		return err
	}
	return nil
}

func render(tmpl *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
