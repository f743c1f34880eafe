package channel

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Rrens/mattressai-engine/internal/domain"
)

// SlackSender posts Block Kit messages to an incoming webhook
type SlackSender struct {
	client *http.Client
}

// NewSlackSender creates a new Slack sender
func NewSlackSender() *SlackSender {
	return &SlackSender{client: newHTTPClient()}
}

func (s *SlackSender) Name() string { return domain.ChannelSlack }

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type      string         `json:"type"`
	Text      *slackText     `json:"text,omitempty"`
	Fields    []slackText    `json:"fields,omitempty"`
	Accessory map[string]any `json:"accessory,omitempty"`
	Elements  []any          `json:"elements,omitempty"`
}

// SlackMessage is the webhook body
type SlackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

func (s *SlackSender) Send(ctx context.Context, msg Message) error {
	url := msg.Config.String("url")
	if url == "" {
		return missingConfig(domain.ChannelSlack, "url")
	}
	return postJSON(ctx, s.client, "slack", url, nil, BuildSlackMessage(msg))
}

// PostText posts a plain message, used by the weekly digest
func (s *SlackSender) PostText(ctx context.Context, url, text string) error {
	return postJSON(ctx, s.client, "slack", url, nil, SlackMessage{Text: text})
}

// BuildSlackMessage renders the alert as Block Kit
func BuildSlackMessage(msg Message) SlackMessage {
	p := msg.Payload
	mrkdwn := func(text string) slackText { return slackText{Type: "mrkdwn", Text: text} }

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: strings.ToUpper(humanize(p.EndReason))},
		},
		{
			Type: "section",
			Fields: []slackText{
				mrkdwn(fmt.Sprintf("*Intent Score:*\n%d/100", p.IntentScore)),
				mrkdwn(fmt.Sprintf("*Time:*\n%s", p.Timestamp.UTC().Format("Jan 2, 2006 15:04 MST"))),
			},
		},
	}

	var contact []slackText
	if p.LeadName != "" {
		contact = append(contact, mrkdwn("*Name:*\n"+p.LeadName))
	}
	if p.LeadEmail != "" {
		contact = append(contact, mrkdwn("*Email:*\n"+p.LeadEmail))
	}
	if p.LeadPhone != "" {
		contact = append(contact, mrkdwn("*Phone:*\n"+p.LeadPhone))
	}
	if p.LeadZip != "" {
		contact = append(contact, mrkdwn("*Zip:*\n"+p.LeadZip))
	}
	if len(contact) > 0 {
		blocks = append(blocks, slackBlock{Type: "section", Fields: contact})
	}

	if p.Summary != "" {
		text := mrkdwn("*Summary:*\n" + p.Summary)
		blocks = append(blocks, slackBlock{Type: "section", Text: &text})
	}

	if len(p.Products) > 0 {
		heading := mrkdwn("*Products of Interest:*")
		blocks = append(blocks, slackBlock{Type: "divider"}, slackBlock{Type: "section", Text: &heading})
		for _, product := range p.Products {
			state := "Viewed by customer"
			if product.WasClicked {
				state = "Clicked by customer"
			}
			text := mrkdwn(fmt.Sprintf("*%s*\n%s", product.Title, state))
			block := slackBlock{Type: "section", Text: &text}
			if product.ImageURL != "" {
				block.Accessory = map[string]any{
					"type":      "image",
					"image_url": product.ImageURL,
					"alt_text":  product.Title,
				}
			}
			blocks = append(blocks, block)
		}
	}

	blocks = append(blocks, slackBlock{Type: "divider"}, slackBlock{
		Type: "actions",
		Elements: []any{map[string]any{
			"type":  "button",
			"text":  slackText{Type: "plain_text", Text: "View Full Session"},
			"url":   sessionURL(msg.TenantID, p.SessionID),
			"style": "primary",
		}},
	})

	return SlackMessage{Text: "Chat Session Alert", Blocks: blocks}
}
