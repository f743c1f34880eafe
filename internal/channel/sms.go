package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Rrens/mattressai-engine/internal/config"
	"github.com/Rrens/mattressai-engine/internal/domain"
)

const smsTitleLimit = 40

// SMSSender sends alerts through the Twilio messages API
type SMSSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
}

// NewSMSSender creates a new Twilio sender
func NewSMSSender(cfg config.TwilioConfig) *SMSSender {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.twilio.com/2010-04-01"
	}
	return &SMSSender{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.FromNumber,
		baseURL:    baseURL,
		client:     newHTTPClient(),
	}
}

func (s *SMSSender) Name() string { return domain.ChannelSMS }

func (s *SMSSender) Send(ctx context.Context, msg Message) error {
	if s.accountSID == "" || s.authToken == "" || s.from == "" {
		return &domain.ConfigurationError{Setting: "Twilio credentials"}
	}
	to := msg.Config.String("to")
	if to == "" {
		to = msg.Config.String("phone")
	}
	if to == "" {
		return missingConfig(domain.ChannelSMS, "to")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.from)
	form.Set("Body", SMSBody(msg.Payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, s.accountSID),
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create twilio request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.ExternalServiceError{Provider: "twilio", Status: resp.StatusCode, Body: readSnippet(resp)}
	}
	return nil
}

// SMSBody builds the one-line alert text: lead, phone, top product and intent
func SMSBody(p domain.AlertPayload) string {
	name := p.LeadName
	if name == "" {
		name = "Anonymous"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "MattressAI Lead: %s", name)
	if p.LeadPhone != "" {
		fmt.Fprintf(&b, " | %s", p.LeadPhone)
	}
	if len(p.Products) > 0 {
		title := []rune(p.Products[0].Title)
		if len(title) > smsTitleLimit {
			title = title[:smsTitleLimit]
		}
		fmt.Fprintf(&b, " | %s", string(title))
		if p.Products[0].WasClicked {
			b.WriteString(" (clicked)")
		}
	}
	fmt.Fprintf(&b, " | Intent: %d/100", p.IntentScore)
	return b.String()
}
