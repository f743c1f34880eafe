package channel

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/Rrens/mattressai-engine/internal/config"
	"github.com/Rrens/mattressai-engine/internal/domain"
)

const leadSource = "MattressAI"

// ErrConsentRequired is returned for CRM lead sends without shopper consent
var ErrConsentRequired = errors.New("cannot send lead without shopper consent")

// PodiumSender pushes leads into Podium. Requires consent.
type PodiumSender struct {
	baseURL string
	client  *http.Client
}

// NewPodiumSender creates a new Podium sender
func NewPodiumSender(cfg config.PodiumConfig) *PodiumSender {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.podium.com/v4"
	}
	return &PodiumSender{baseURL: baseURL, client: newHTTPClient()}
}

func (s *PodiumSender) Name() string { return domain.ChannelPodium }

type podiumLead struct {
	LocationID       string         `json:"locationId"`
	ContactFirstName string         `json:"contactFirstName"`
	ContactLastName  string         `json:"contactLastName"`
	ContactPhone     string         `json:"contactPhone,omitempty"`
	ContactEmail     string         `json:"contactEmail,omitempty"`
	Source           string         `json:"source"`
	CustomFields     map[string]any `json:"customFields,omitempty"`
}

func (s *PodiumSender) Send(ctx context.Context, msg Message) error {
	if !msg.Consent {
		return ErrConsentRequired
	}
	locationID, apiKey := msg.Config.String("locationId"), msg.Config.String("apiKey")
	if locationID == "" {
		return missingConfig(domain.ChannelPodium, "locationId")
	}
	if apiKey == "" {
		return missingConfig(domain.ChannelPodium, "apiKey")
	}

	first, last := splitName(msg.Payload.LeadName)
	lead := podiumLead{
		LocationID:       locationID,
		ContactFirstName: first,
		ContactLastName:  last,
		ContactPhone:     msg.Payload.LeadPhone,
		ContactEmail:     msg.Payload.LeadEmail,
		Source:           leadSource,
		CustomFields: map[string]any{
			"intentScore":         msg.Payload.IntentScore,
			"mattressAiSessionId": msg.Payload.SessionID,
		},
	}
	if msg.Payload.Summary != "" {
		lead.CustomFields["sessionSummary"] = msg.Payload.Summary
	}

	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	return postJSON(ctx, s.client, "podium", s.baseURL+"/leads", headers, lead)
}

// BirdeyeSender pushes leads into Birdeye as customers. Requires consent.
type BirdeyeSender struct {
	baseURL string
	client  *http.Client
}

// NewBirdeyeSender creates a new Birdeye sender
func NewBirdeyeSender(cfg config.BirdeyeConfig) *BirdeyeSender {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.birdeye.com/v2"
	}
	return &BirdeyeSender{baseURL: baseURL, client: newHTTPClient()}
}

func (s *BirdeyeSender) Name() string { return domain.ChannelBirdeye }

type birdeyeCustomer struct {
	BusinessID          string            `json:"businessId"`
	CustomerFirstName   string            `json:"customerFirstName"`
	CustomerLastName    string            `json:"customerLastName"`
	CustomerEmail       string            `json:"customerEmail,omitempty"`
	CustomerPhoneNumber string            `json:"customerPhoneNumber,omitempty"`
	Source              string            `json:"source"`
	CustomAttributes    map[string]string `json:"customAttributes,omitempty"`
}

func (s *BirdeyeSender) Send(ctx context.Context, msg Message) error {
	if !msg.Consent {
		return ErrConsentRequired
	}
	businessID, apiKey := msg.Config.String("businessId"), msg.Config.String("apiKey")
	if businessID == "" {
		return missingConfig(domain.ChannelBirdeye, "businessId")
	}
	if apiKey == "" {
		return missingConfig(domain.ChannelBirdeye, "apiKey")
	}

	first, last := splitName(msg.Payload.LeadName)
	customer := birdeyeCustomer{
		BusinessID:          businessID,
		CustomerFirstName:   first,
		CustomerLastName:    last,
		CustomerEmail:       msg.Payload.LeadEmail,
		CustomerPhoneNumber: msg.Payload.LeadPhone,
		Source:              leadSource,
		// Birdeye custom attributes must be strings
		CustomAttributes: map[string]string{
			"intentScore":         strconv.Itoa(msg.Payload.IntentScore),
			"mattressAiSessionId": msg.Payload.SessionID,
		},
	}
	if msg.Payload.Summary != "" {
		customer.CustomAttributes["sessionSummary"] = msg.Payload.Summary
	}

	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	return postJSON(ctx, s.client, "birdeye", s.baseURL+"/customers", headers, customer)
}
