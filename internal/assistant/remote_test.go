package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteProviderReply(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"  Workshops run every Thursday.  "}`))
	}))
	defer srv.Close()

	p, err := NewRemoteProvider(RemoteConfig{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "remote", p.Name())

	reply, err := p.Reply(context.Background(), ReplyRequest{
		Text:           "when are workshops?",
		UserID:         "42",
		ConversationID: "webchat:user:42",
	})
	require.NoError(t, err)
	assert.Equal(t, "Workshops run every Thursday.", reply.Text)
	assert.Equal(t, map[string]any{
		"message":        "when are workshops?",
		"userId":         "42",
		"conversationId": "webchat:user:42",
	}, got)
}

func TestRemoteProviderAnonymousSendsNullUser(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"message":"hi"}`))
	}))
	defer srv.Close()

	p, err := NewRemoteProvider(RemoteConfig{URL: srv.URL})
	require.NoError(t, err)
	_, err = p.Reply(context.Background(), ReplyRequest{Text: "hello", ConversationID: "webchat:anonymous"})
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw["userId"]))
}

func TestRemoteProviderFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  bool
	}{
		{name: "server error", status: true, handler: func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{name: "redirect status", status: true, handler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotModified)
		}},
		{name: "bad json", handler: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}},
		{name: "empty message", handler: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"message":"   "}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			p, err := NewRemoteProvider(RemoteConfig{URL: srv.URL})
			require.NoError(t, err)

			_, err = p.Reply(context.Background(), ReplyRequest{Text: "hi"})
			require.Error(t, err)
			if tt.status {
				assert.ErrorIs(t, err, ErrRemoteStatus)
			}
		})
	}
}

func TestRemoteProviderNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	p, err := NewRemoteProvider(RemoteConfig{URL: url, Timeout: time.Second})
	require.NoError(t, err)
	_, err = p.Reply(context.Background(), ReplyRequest{Text: "hi"})
	assert.Error(t, err)
}

func TestNewRemoteProviderRequiresURL(t *testing.T) {
	_, err := NewRemoteProvider(RemoteConfig{URL: "  "})
	assert.Error(t, err)
}
