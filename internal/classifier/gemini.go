package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/moderabot/internal/config"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini classifies through Google's Gemini API.
type Gemini struct {
	model         string
	timeout       time.Duration
	contentConfig *genai.GenerateContentConfig
	log           *slog.Logger

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGemini creates a Gemini classifier.
func NewGemini(cfg config.ClassifierConfig, logger *slog.Logger) *Gemini {
	temperature := float32(0)
	contentConfig := &genai.GenerateContentConfig{
		Temperature:       &temperature,
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: cfg.Instruction}}},
		// Reviewed messages are often abusive and must reach the model unfiltered.
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	return &Gemini{
		model:         model,
		timeout:       cfg.Timeout,
		contentConfig: contentConfig,
		log:           logger.With("component", "gemini_classifier"),
		clients:       make(map[string]*genai.Client),
	}
}

func (g *Gemini) Classify(ctx context.Context, apiKey, text string) (Verdict, error) {
	reply, err := g.generate(ctx, apiKey, text, g.contentConfig)
	if err != nil {
		return "", err
	}

	verdict, err := ParseVerdict(reply)
	if err != nil {
		g.log.WarnContext(ctx, "Unrecognized classifier reply", "reply", truncate(reply, 64))
		return "", err
	}
	return verdict, nil
}

func (g *Gemini) Validate(ctx context.Context, apiKey string) error {
	if _, err := g.generate(ctx, apiKey, probeText, nil); err != nil {
		return fmt.Errorf("gemini api key is invalid: %w", err)
	}
	return nil
}

func (g *Gemini) generate(ctx context.Context, apiKey, text string, cfg *genai.GenerateContentConfig) (string, error) {
	if apiKey == "" {
		return "", ErrMissingAPIKey
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	client, err := g.client(timeoutCtx, apiKey)
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(timeoutCtx, g.model, genai.Text(text), cfg)
	if err != nil {
		g.log.ErrorContext(ctx, "Gemini API call failed", "error", err)
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return "", fmt.Errorf("gemini request blocked: %v", fb.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned empty content")
	}

	return resp.Text(), nil
}

func (g *Gemini) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[apiKey]; ok {
		return c, nil
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	g.clients[apiKey] = c
	return c, nil
}
