// Package classifier decides whether a chat message is toxic by asking an LLM
// for a one-word verdict. API keys belong to bots, so every call carries one.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/edgard/moderabot/internal/config"
)

// Verdict is the outcome of a toxicity check.
type Verdict string

const (
	VerdictToxic Verdict = "TOXIC"
	VerdictSafe  Verdict = "SAFE"
)

var (
	// ErrMissingAPIKey is returned when a bot has no classifier key configured.
	ErrMissingAPIKey = errors.New("classifier api key is not configured")
	// ErrAmbiguousVerdict is returned when the model answer is neither TOXIC nor SAFE.
	ErrAmbiguousVerdict = errors.New("classifier returned an ambiguous verdict")
)

// probeText is sent by Validate to check that a key is accepted.
const probeText = "Test message"

// Classifier is the toxicity oracle used by the moderation engine.
type Classifier interface {
	// Classify returns the verdict for text using apiKey.
	Classify(ctx context.Context, apiKey, text string) (Verdict, error)
	// Validate checks that apiKey is accepted by the provider.
	Validate(ctx context.Context, apiKey string) error
}

// New builds the classifier selected by cfg.Provider.
func New(cfg config.ClassifierConfig, logger *slog.Logger) (Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Provider {
	case "deepseek":
		return NewDeepSeek(cfg, logger), nil
	case "gemini":
		return NewGemini(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}

// ParseVerdict maps a model answer to a Verdict. Only the first word counts,
// case and surrounding punctuation are ignored. Anything else is ambiguous.
func ParseVerdict(reply string) (Verdict, error) {
	fields := strings.FieldsFunc(reply, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	})
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: empty reply", ErrAmbiguousVerdict)
	}

	switch Verdict(strings.ToUpper(fields[0])) {
	case VerdictToxic:
		return VerdictToxic, nil
	case VerdictSafe:
		return VerdictSafe, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrAmbiguousVerdict, truncate(reply, 64))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
