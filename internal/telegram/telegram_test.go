package telegram_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/moderabot/internal/telegram"
)

func TestFetchUpdates(t *testing.T) {
	t.Parallel()

	var body map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":[
			{"update_id":5,"message":{"message_id":1,"date":1700000000,"chat":{"id":-100,"type":"group"},"from":{"id":7,"is_bot":false,"first_name":"A"},"text":"hi"}},
			{"update_id":6,"callback_query":{"id":"q","from":{"id":7,"is_bot":false,"first_name":"A"},"chat_instance":"c","data":"MyKPI"}}
		]}`))
	}))
	t.Cleanup(srv.Close)

	poller := telegram.NewPoller(srv.URL, 5*time.Second, 50, slog.New(slog.NewTextHandler(io.Discard, nil)))

	updates, err := poller.FetchUpdates(context.Background(), "123:abc", 5, 3*time.Second)
	require.NoError(t, err)

	assert.Equal(t, "/bot123:abc/getUpdates", path)
	assert.Equal(t, float64(5), body["offset"])
	assert.Equal(t, float64(50), body["limit"])
	assert.Equal(t, float64(3), body["timeout"])
	assert.Equal(t, []any{"message", "edited_message", "callback_query"}, body["allowed_updates"])

	require.Len(t, updates, 2)
	assert.Equal(t, int64(5), updates[0].ID)
	require.NotNil(t, updates[0].Message)
	assert.Equal(t, "hi", updates[0].Message.Text)
	require.NotNil(t, updates[1].CallbackQuery)
	assert.Equal(t, "MyKPI", updates[1].CallbackQuery.Data)
}

func TestFetchUpdatesOmitsZeroOffset(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	}))
	t.Cleanup(srv.Close)

	poller := telegram.NewPoller(srv.URL, 5*time.Second, 100, nil)
	updates, err := poller.FetchUpdates(context.Background(), "123:abc", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, updates)
	assert.NotContains(t, body, "offset")
}

func TestFetchUpdatesErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"ok":false,"error_code":401,"description":"Unauthorized"}`},
		{name: "conflict", status: http.StatusConflict, body: `{"ok":false,"error_code":409,"description":"Conflict: terminated by other getUpdates request"}`},
		{name: "not ok", status: http.StatusOK, body: `{"ok":false,"description":"odd"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(srv.Close)

			poller := telegram.NewPoller(srv.URL, 5*time.Second, 100, nil)
			_, err := poller.FetchUpdates(context.Background(), "123:abc", 1, 0)
			assert.Error(t, err)
		})
	}

	_, err := telegram.NewPoller("http://127.0.0.1", time.Second, 100, nil).FetchUpdates(context.Background(), "", 0, 0)
	assert.ErrorIs(t, err, telegram.ErrEmptyToken)
}

func TestDecodeKeyboard(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		code    string
		buttons int
		wantErr bool
	}{
		{name: "two rows", code: `{"inline_keyboard":[[{"text":"Top","callback_data":"ToxicTop"}],[{"text":"KPI","callback_data":"MyKPI"}]]}`, buttons: 2},
		{name: "not json", code: `menu`, wantErr: true},
		{name: "no buttons", code: `{"inline_keyboard":[]}`, wantErr: true},
		{name: "empty", code: ``, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			keyboard, err := telegram.DecodeKeyboard(tc.code)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, keyboard.InlineKeyboard, tc.buttons)
		})
	}
}

func TestClientsCachePerToken(t *testing.T) {
	t.Parallel()

	clients := telegram.NewClients("http://127.0.0.1", slog.New(slog.NewTextHandler(io.Discard, nil)))

	a, err := clients.Sender("123:abc")
	require.NoError(t, err)
	again, err := clients.Sender("123:abc")
	require.NoError(t, err)
	other, err := clients.Sender("456:def")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, other)

	_, err = clients.Sender("")
	assert.ErrorIs(t, err, telegram.ErrEmptyToken)
}
