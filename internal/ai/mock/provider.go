package mock

import (
	"context"
	"log/slog"
	"time"

	"github.com/calloway-labs/cvforge/internal/ai"
)

// Provider is a mock AI provider for testing and local development
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	GenerateResponse *ai.GenerateResult
	GenerateError    error

	// Call tracking for testing
	GenerateCalls int
	LastPrompt    string
}

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Generate returns a canned improved CV
func (p *Provider) Generate(ctx context.Context, params ai.GenerateParams) (*ai.GenerateResult, error) {
	p.GenerateCalls++
	p.LastPrompt = params.Prompt

	if p.GenerateError != nil {
		return nil, p.GenerateError
	}
	if p.GenerateResponse != nil {
		return p.GenerateResponse, nil
	}

	p.logger.Debug("mock generation", "prompt_length", len(params.Prompt))

	return &ai.GenerateResult{
		Text: `PROFESSIONAL SUMMARY
Results-driven software engineer with a track record of shipping reliable backend services.

EXPERIENCE
Senior Software Engineer, Example Corp
- Led migration of a monolithic billing system to event-driven services, cutting deploy time by 70%
- Mentored four junior engineers through their first production launches

SKILLS
Go, PostgreSQL, Redis, distributed systems, technical leadership`,
		Usage: ai.UsageInfo{
			Model:        "mock",
			InputTokens:  128,
			OutputTokens: 96,
			Duration:     5 * time.Millisecond,
		},
	}, nil
}
