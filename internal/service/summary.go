package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/mattressai-engine/internal/config"
	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/Rrens/mattressai-engine/internal/llm"
)

// SummaryService summarizes chat transcripts with the configured LLM provider
type SummaryService struct {
	llmRouter   *llm.Router
	messageRepo domain.MessageRepository
	window      int
	maxTokens   int
	timeout     time.Duration
}

// NewSummaryService creates a new summary service
func NewSummaryService(llmRouter *llm.Router, messageRepo domain.MessageRepository, cfg config.LLMConfig) *SummaryService {
	window := cfg.SummaryMessageWindow
	if window <= 0 {
		window = 20
	}
	maxTokens := cfg.SummaryMaxTokens
	if maxTokens <= 0 {
		maxTokens = 150
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SummaryService{
		llmRouter:   llmRouter,
		messageRepo: messageRepo,
		window:      window,
		maxTokens:   maxTokens,
		timeout:     timeout,
	}
}

// Summarize returns nil when there is nothing to summarize or no provider is configured
func (s *SummaryService) Summarize(ctx context.Context, conversationID string, consent bool) (*string, error) {
	messages, err := s.messageRepo.ListRecent(ctx, conversationID, s.window)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	provider, err := s.llmRouter.GetProvider("")
	if err != nil {
		log.Debug().Err(err).Msg("no LLM provider for summaries")
		return nil, nil
	}

	lines := make([]llm.Line, len(messages))
	for i, m := range messages {
		lines[i] = llm.Line{Role: string(m.Role), Content: m.Content}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := provider.Complete(ctx, llm.Request{
		System:    llm.SummarySystemPrompt,
		Prompt:    llm.BuildSummaryPrompt(lines, consent),
		MaxTokens: s.maxTokens,
	}, provider.DefaultModel())
	if err != nil {
		return nil, fmt.Errorf("%s summary failed: %w", provider.Name(), err)
	}

	summary := llm.CleanSummary(resp.Text)
	if summary == "" {
		return nil, nil
	}

	log.Debug().
		Str("provider", provider.Name()).
		Int("tokens", resp.TokensUsed).
		Int64("latency_ms", resp.LatencyMs).
		Msg("summary generated")
	return &summary, nil
}
