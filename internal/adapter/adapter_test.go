package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harunnryd/autosend/internal/config"
	"github.com/harunnryd/autosend/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage() Message {
	return Message{
		Title:     "Draft needs review: Dana Scully",
		Summary:   "Confidence 0.42 is below 0.90",
		Fields:    []Field{{Label: "Channel", Value: "email"}, {Label: "Reason", Value: "asks <pricing>"}},
		Quote:     "How much is it?",
		Preview:   "Hi Dana, pricing starts at...",
		LinkURL:   "https://app.example.com/leads/lead-1",
		LinkLabel: "Open lead",
	}
}

func TestNullAdapter(t *testing.T) {
	a := NewNullAdapter("")
	assert.Equal(t, "null", a.Name())
	assert.NoError(t, a.Send(context.Background(), "U1", sampleMessage()))
	assert.NoError(t, a.Send(context.Background(), "", sampleMessage()))
	assert.Equal(t, int64(2), a.Dropped())
	assert.NoError(t, a.Health(context.Background()))
}

func TestSlackAdapter_PostsBlocks(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat.postMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"U_REVIEWER","ts":"1700000000.000100"}`))
	}))
	defer srv.Close()

	a := NewSlackAdapter("xoxb-test", srv.URL)
	require.NoError(t, a.Send(context.Background(), "U_REVIEWER", sampleMessage()))

	assert.Equal(t, "U_REVIEWER", form["channel"][0])
	assert.Contains(t, form["text"][0], "Draft needs review")

	var blocks []map[string]any
	require.NoError(t, json.Unmarshal([]byte(form["blocks"][0]), &blocks))
	types := make([]string, 0, len(blocks))
	for _, b := range blocks {
		types = append(types, b["type"].(string))
	}
	assert.Equal(t, []string{"header", "section", "section", "section", "section", "actions"}, types)
}

func TestSlackAdapter_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	err := NewSlackAdapter("xoxb-test", srv.URL).Send(context.Background(), "C404", sampleMessage())
	assert.ErrorContains(t, err, "channel_not_found")
}

func TestSlackAdapter_RequiresRecipient(t *testing.T) {
	err := NewSlackAdapter("xoxb-test", "http://127.0.0.1:1").Send(context.Background(), "", sampleMessage())
	assert.True(t, errors.IsCategory(err, errors.ErrInvalidInput))
}

func TestTelegramAdapter_SendsHTML(t *testing.T) {
	var sent map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/bottg-token/getMe":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Autosend","username":"autosend_bot"}}`))
		case "/bottg-token/sendMessage":
			require.NoError(t, r.ParseForm())
			sent = r.PostForm
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := NewTelegramAdapter("tg-token", srv.URL+"/bot%s/%s")
	require.NoError(t, a.Send(context.Background(), "42", sampleMessage()))

	assert.Equal(t, "42", sent["chat_id"][0])
	assert.Equal(t, "HTML", sent["parse_mode"][0])
	assert.Contains(t, sent["text"][0], "<b>Draft needs review: Dana Scully</b>")
	assert.Contains(t, sent["text"][0], "asks &lt;pricing&gt;")
	assert.Contains(t, sent["reply_markup"][0], "https://app.example.com/leads/lead-1")
}

func TestTelegramAdapter_InvalidChatID(t *testing.T) {
	err := NewTelegramAdapter("tg-token", "").Send(context.Background(), "@reviewer", sampleMessage())
	assert.True(t, errors.IsCategory(err, errors.ErrInvalidInput))
}

func TestNewOutputAdapter(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	a, err := NewOutputAdapter("null", config.AdaptersConfig{})
	require.NoError(t, err)
	assert.Equal(t, "null", a.Name())

	_, err = NewOutputAdapter("slack", config.AdaptersConfig{})
	assert.Error(t, err)

	a, err = NewOutputAdapter("slack", config.AdaptersConfig{Slack: config.SlackConfig{BotToken: "xoxb"}})
	require.NoError(t, err)
	assert.Equal(t, "slack", a.Name())

	a, err = NewOutputAdapter("telegram", config.AdaptersConfig{Telegram: config.TelegramConfig{BotToken: "t"}})
	require.NoError(t, err)
	assert.Equal(t, "telegram", a.Name())

	_, err = NewOutputAdapter("pager", config.AdaptersConfig{})
	assert.Error(t, err)
}
