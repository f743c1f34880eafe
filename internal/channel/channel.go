// Package channel delivers alert payloads to external notification services.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Rrens/mattressai-engine/internal/config"
	"github.com/Rrens/mattressai-engine/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Message is one alert handed to a Sender
type Message struct {
	TenantID string
	Type     domain.AlertType
	Config   domain.ChannelConfig
	Payload  domain.AlertPayload
	Consent  bool
}

// Sender delivers a message over one channel
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Registry maps channel names to senders
type Registry struct {
	senders map[string]Sender
	timeout time.Duration
	mu      sync.RWMutex
}

// NewRegistry creates a registry that bounds every send by timeout
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Registry{
		senders: make(map[string]Sender),
		timeout: timeout,
	}
}

// Register adds or replaces a sender
func (r *Registry) Register(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[s.Name()] = s
}

// Names returns the registered channel names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.senders))
	for name := range r.senders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Send dispatches msg to the named channel
func (r *Registry) Send(ctx context.Context, name string, msg Message) error {
	r.mu.RLock()
	sender, ok := r.senders[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown channel: %s", name)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return sender.Send(ctx, msg)
}

func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", provider, err)
	}
	return post(ctx, client, provider, url, "application/json", headers, data)
}

func post(ctx context.Context, client *http.Client, provider, url, contentType string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", provider, err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.ExternalServiceError{Provider: provider, Status: resp.StatusCode, Body: readSnippet(resp)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func readSnippet(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return string(body)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// humanize turns "lead_captured" into "lead captured"
func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

func sessionURL(tenantID, sessionID string) string {
	return fmt.Sprintf("https://%s/admin/apps/mattressai/sessions/%s", tenantID, sessionID)
}

// splitName returns first and last name, with "Unknown" for a missing first name
func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "Unknown", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func missingConfig(channel, key string) error {
	return domain.NewValidationError(channel+"."+key, "is required")
}

// NewDefaultRegistry registers every built-in channel
func NewDefaultRegistry(cfg config.ChannelsConfig) *Registry {
	r := NewRegistry(cfg.Timeout)
	r.Register(NewEmailSender(cfg.SendGrid))
	r.Register(NewSMSSender(cfg.Twilio))
	r.Register(NewSlackSender())
	r.Register(NewWebhookSender(cfg.Webhook.SigningSecret()))
	r.Register(NewPodiumSender(cfg.Podium))
	r.Register(NewBirdeyeSender(cfg.Birdeye))
	return r
}
