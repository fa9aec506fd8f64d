package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/edgard/moderabot/internal/config"
)

// DeepSeekBaseURL is the OpenAI-compatible endpoint used when no base URL is configured.
const DeepSeekBaseURL = "https://api.deepseek.com"

// DefaultDeepSeekModel is used when no model is configured.
const DefaultDeepSeekModel = "deepseek-chat"

// DeepSeek classifies through DeepSeek's OpenAI-compatible chat completions API.
type DeepSeek struct {
	baseURL     string
	model       string
	instruction string
	timeout     time.Duration
	httpClient  *http.Client
	log         *slog.Logger
}

// NewDeepSeek creates a DeepSeek classifier.
func NewDeepSeek(cfg config.ClassifierConfig, logger *slog.Logger) *DeepSeek {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DeepSeekBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultDeepSeekModel
	}
	return &DeepSeek{
		baseURL:     baseURL,
		model:       model,
		instruction: cfg.Instruction,
		timeout:     cfg.Timeout,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		log:         logger.With("component", "deepseek_classifier"),
	}
}

func (d *DeepSeek) Classify(ctx context.Context, apiKey, text string) (Verdict, error) {
	reply, err := d.complete(ctx, apiKey, d.instruction, text)
	if err != nil {
		return "", err
	}

	verdict, err := ParseVerdict(reply)
	if err != nil {
		d.log.WarnContext(ctx, "Unrecognized classifier reply", "reply", truncate(reply, 64))
		return "", err
	}
	return verdict, nil
}

func (d *DeepSeek) Validate(ctx context.Context, apiKey string) error {
	if _, err := d.complete(ctx, apiKey, "You are a helpful assistant.", probeText); err != nil {
		return fmt.Errorf("deepseek api key is invalid: %w", err)
	}
	return nil
}

func (d *DeepSeek) complete(ctx context.Context, apiKey, instruction, text string) (string, error) {
	if apiKey == "" {
		return "", ErrMissingAPIKey
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = d.baseURL
	clientCfg.HTTPClient = d.httpClient
	client := openai.NewClientWithConfig(clientCfg)

	startTime := time.Now()
	resp, err := client.CreateChatCompletion(timeoutCtx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		d.log.ErrorContext(ctx, "Chat completion failed", "error", err, "duration", time.Since(startTime))
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	d.log.DebugContext(ctx, "Chat completion finished",
		"duration", time.Since(startTime),
		"total_tokens", resp.Usage.TotalTokens)

	return resp.Choices[0].Message.Content, nil
}
