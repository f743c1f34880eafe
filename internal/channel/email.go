package channel

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"

	"github.com/Rrens/mattressai-engine/internal/config"
	"github.com/Rrens/mattressai-engine/internal/domain"
)

var emailTemplate = template.Must(template.New("alert").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; color: #333;">
<h2 style="border-bottom: 2px solid #0066cc; padding-bottom: 10px;">MattressAI Lead Alert</h2>
<div style="background: #e3f2fd; padding: 15px; border-radius: 5px; margin: 20px 0;">
<p><strong>Intent Score:</strong> <span style="font-size: 20px; color: #0066cc;">{{.Payload.IntentScore}}/100</span></p>
<p><strong>Status:</strong> {{.Status}}</p>
<p><strong>Time:</strong> {{.Time}}</p>
</div>
{{- if or .Payload.LeadName .Payload.LeadEmail .Payload.LeadPhone .Payload.LeadZip}}
<div style="background: #f5f5f5; padding: 15px; border-radius: 5px; margin: 20px 0;">
<h3 style="margin-top: 0;">Contact Information</h3>
{{- if .Payload.LeadName}}<p><strong>Name:</strong> {{.Payload.LeadName}}</p>{{end}}
{{- if .Payload.LeadEmail}}<p><strong>Email:</strong> {{.Payload.LeadEmail}}</p>{{end}}
{{- if .Payload.LeadPhone}}<p><strong>Phone:</strong> {{.Payload.LeadPhone}}</p>{{end}}
{{- if .Payload.LeadZip}}<p><strong>Zip Code:</strong> {{.Payload.LeadZip}}</p>{{end}}
</div>
{{- end}}
{{- if .Payload.Summary}}
<div style="background: #fff8e1; padding: 15px; border-left: 4px solid #ffc107; margin: 20px 0;">
<h3 style="margin-top: 0;">Conversation Summary</h3>
<p>{{.Payload.Summary}}</p>
</div>
{{- end}}
{{- if .Payload.Products}}
<div style="margin: 20px 0;">
<h3>Products of Interest</h3>
{{- range .Payload.Products}}
<div style="border: 1px solid #ddd; padding: 15px; margin: 10px 0; border-radius: 5px;">
{{- if .ImageURL}}<img src="{{.ImageURL}}" alt="{{.Title}}" style="max-width: 100px; max-height: 100px;" />{{end}}
<p><strong>{{.Title}}</strong> {{if .WasClicked}}(clicked){{else}}(viewed){{end}}</p>
</div>
{{- end}}
</div>
{{- end}}
<p style="text-align: center;"><a href="{{.SessionURL}}">View Full Session in Shopify</a></p>
</div>`))

// EmailSender sends alerts through the SendGrid mail API
type EmailSender struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

// NewEmailSender creates a new SendGrid sender
func NewEmailSender(cfg config.SendGridConfig) *EmailSender {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com/v3"
	}
	return &EmailSender{
		apiKey:  cfg.APIKey,
		from:    cfg.FromEmail,
		baseURL: baseURL,
		client:  newHTTPClient(),
	}
}

func (s *EmailSender) Name() string { return domain.ChannelEmail }

type sendGridAddress struct {
	Email string `json:"email"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if s.apiKey == "" {
		return &domain.ConfigurationError{Setting: "SENDGRID_API_KEY"}
	}
	to := msg.Config.String("to")
	if to == "" {
		to = msg.Config.String("email")
	}
	if to == "" {
		return missingConfig(domain.ChannelEmail, "to")
	}

	subject := fmt.Sprintf("New %s - Intent Score: %d/100", humanize(msg.Payload.EndReason), msg.Payload.IntentScore)
	html, err := RenderEmailHTML(msg)
	if err != nil {
		return err
	}
	return s.send(ctx, to, subject, "text/html", html)
}

// SendText mails a plain text message, used by the weekly digest
func (s *EmailSender) SendText(ctx context.Context, to, subject, body string) error {
	if s.apiKey == "" {
		return &domain.ConfigurationError{Setting: "SENDGRID_API_KEY"}
	}
	return s.send(ctx, to, subject, "text/plain", body)
}

func (s *EmailSender) send(ctx context.Context, to, subject, contentType, body string) error {
	req := sendGridRequest{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: to}}}},
		From:             sendGridAddress{Email: s.from},
		Subject:          subject,
		Content:          []sendGridContent{{Type: contentType, Value: body}},
	}

	headers := map[string]string{"Authorization": "Bearer " + s.apiKey}
	return postJSON(ctx, s.client, "sendgrid", s.baseURL+"/mail/send", headers, req)
}

// RenderEmailHTML renders the alert email body with all payload values escaped
func RenderEmailHTML(msg Message) (string, error) {
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, struct {
		Payload    domain.AlertPayload
		Status     string
		Time       string
		SessionURL string
	}{
		Payload:    msg.Payload,
		Status:     humanize(msg.Payload.EndReason),
		Time:       msg.Payload.Timestamp.UTC().Format("Jan 2, 2006 15:04 MST"),
		SessionURL: sessionURL(msg.TenantID, msg.Payload.SessionID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render email: %w", err)
	}
	return buf.String(), nil
}
