package classifier_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/moderabot/internal/classifier"
	"github.com/edgard/moderabot/internal/config"
)

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected classifier.Verdict
		wantErr  bool
	}{
		{name: "toxic", input: "TOXIC", expected: classifier.VerdictToxic},
		{name: "safe", input: "SAFE", expected: classifier.VerdictSafe},
		{name: "lower case", input: "toxic", expected: classifier.VerdictToxic},
		{name: "trailing punctuation", input: "Safe.", expected: classifier.VerdictSafe},
		{name: "leading whitespace", input: "\n  TOXIC\n", expected: classifier.VerdictToxic},
		{name: "explanation after verdict", input: "SAFE - just banter", expected: classifier.VerdictSafe},
		{name: "empty", input: "", wantErr: true},
		{name: "punctuation only", input: "...", wantErr: true},
		{name: "other word first", input: "Maybe TOXIC", wantErr: true},
		{name: "negated", input: "NON-TOXIC", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := classifier.ParseVerdict(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, classifier.ErrAmbiguousVerdict)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestNewSelectsProvider(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cls, err := classifier.New(config.ClassifierConfig{Provider: "deepseek", Timeout: time.Second}, logger)
	require.NoError(t, err)
	assert.IsType(t, &classifier.DeepSeek{}, cls)

	cls, err = classifier.New(config.ClassifierConfig{Provider: "gemini", Timeout: time.Second}, logger)
	require.NoError(t, err)
	assert.IsType(t, &classifier.Gemini{}, cls)

	_, err = classifier.New(config.ClassifierConfig{Provider: "other"}, logger)
	assert.Error(t, err)
}

func TestMissingAPIKey(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, provider := range []string{"deepseek", "gemini"} {
		cls, err := classifier.New(config.ClassifierConfig{Provider: provider, Timeout: time.Second}, logger)
		require.NoError(t, err)

		_, err = cls.Classify(context.Background(), "", "text")
		assert.ErrorIs(t, err, classifier.ErrMissingAPIKey, provider)
	}
}

// completionServer answers chat completions with reply and records the last request.
func completionServer(t *testing.T, reply string, status int) (*httptest.Server, *openai.ChatCompletionRequest, *string) {
	t.Helper()

	var got openai.ChatCompletionRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid key","type":"authentication_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &got, &auth
}

func TestDeepSeekClassify(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		reply    string
		status   int
		expected classifier.Verdict
		wantErr  bool
	}{
		{name: "toxic", reply: "TOXIC", status: http.StatusOK, expected: classifier.VerdictToxic},
		{name: "safe", reply: "safe", status: http.StatusOK, expected: classifier.VerdictSafe},
		{name: "ambiguous", reply: "I cannot say", status: http.StatusOK, wantErr: true},
		{name: "rejected key", status: http.StatusUnauthorized, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv, req, auth := completionServer(t, tc.reply, tc.status)

			cls := classifier.NewDeepSeek(config.ClassifierConfig{
				BaseURL:     srv.URL,
				Timeout:     5 * time.Second,
				Instruction: "Answer TOXIC or SAFE.",
			}, slog.New(slog.NewTextHandler(io.Discard, nil)))

			verdict, err := cls.Classify(context.Background(), "secret", "hello there")
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.expected, verdict)
			}

			assert.Equal(t, "Bearer secret", *auth)
			assert.Equal(t, classifier.DefaultDeepSeekModel, req.Model)
			require.Len(t, req.Messages, 2)
			assert.Equal(t, "Answer TOXIC or SAFE.", req.Messages[0].Content)
			assert.Equal(t, "hello there", req.Messages[1].Content)
		})
	}
}

func TestDeepSeekValidate(t *testing.T) {
	t.Parallel()
	srv, req, _ := completionServer(t, "Hello!", http.StatusOK)

	cls := classifier.NewDeepSeek(config.ClassifierConfig{BaseURL: srv.URL, Model: "custom", Timeout: 5 * time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, cls.Validate(context.Background(), "secret"))
	assert.Equal(t, "custom", req.Model)
	assert.Equal(t, "Test message", req.Messages[1].Content)
}
