package mattermost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/degentalk/progression/internal/config"
	"github.com/degentalk/progression/pkg/logger"
)

func TestClient_SendNotification(t *testing.T) {
	var received Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(&config.NotificationsConfig{WebhookURL: srv.URL, Channel: "town-square", Enabled: true}, logger.Nop())
	err := c.SendNotification(context.Background(), "alice", "level_up", "Level 2 reached", "You are now a Regular", map[string]string{"level": "2"})
	require.NoError(t, err)

	assert.Equal(t, "town-square", received.Channel)
	require.Len(t, received.Attachments, 1)
	assert.Equal(t, "Level 2 reached", received.Attachments[0].Title)
	assert.Equal(t, "#f2c744", received.Attachments[0].Color)
	require.Len(t, received.Attachments[0].Fields, 1)
	assert.Equal(t, "2", received.Attachments[0].Fields[0].Value)
}

func TestClient_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(&config.NotificationsConfig{WebhookURL: srv.URL, Enabled: true}, logger.Nop())
	err := c.SendMessage(context.Background(), &Message{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_DisabledSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(&config.NotificationsConfig{WebhookURL: srv.URL, Enabled: false}, logger.Nop())
	assert.False(t, c.Enabled())
	require.NoError(t, c.SendMessage(context.Background(), &Message{Text: "hi"}))
	assert.False(t, called)
}

func TestClient_FieldsSortedAndBodyInError(t *testing.T) {
	var received Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("unknown channel\n"))
	}))
	defer srv.Close()

	c := NewClient(&config.NotificationsConfig{WebhookURL: srv.URL, Enabled: true}, logger.Nop())
	err := c.SendNotification(context.Background(), "alice", "level_up", "Level 3", "Welcome", map[string]string{
		"level":    "3",
		"currency": "50",
		"badge":    "Regular",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel")

	require.Len(t, received.Attachments, 1)
	fields := received.Attachments[0].Fields
	require.Len(t, fields, 3)
	assert.Equal(t, []string{"badge", "currency", "level"}, []string{fields[0].Title, fields[1].Title, fields[2].Title})
}
