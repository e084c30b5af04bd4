package services

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookDisabledIsNoop(t *testing.T) {
	w := NewWebhookService()

	assert.False(t, w.IsEnabled())
	assert.NoError(t, w.SendBlockAlert("10.0.0.1", "HTTP Flood", 0.9, "flood", true))
	assert.NoError(t, w.SendSystemAlert("title", "message", ColorGreen))
}

func TestWebhookSendsEmbeds(t *testing.T) {
	var payloads []DiscordWebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var p DiscordWebhookPayload
		require.NoError(t, json.Unmarshal(body, &p))
		payloads = append(payloads, p)
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookService()
	w.SetWebhookURL(srv.URL)
	require.True(t, w.IsEnabled())

	require.NoError(t, w.SendBlockAlert("203.0.113.7", "HTTP Flood", 0.85, "flood detected", true))
	require.NoError(t, w.SendSystemAlert("NetSentry Online", "service started", ColorGreen))

	require.Len(t, payloads, 2)

	block := payloads[0]
	require.Len(t, block.Embeds, 1)
	assert.Equal(t, "NetSentry", block.Username)
	assert.Equal(t, ColorRed, block.Embeds[0].Color)
	require.NotEmpty(t, block.Embeds[0].Fields)
	assert.Equal(t, "`203.0.113.7`", block.Embeds[0].Fields[0].Value)

	sys := payloads[1]
	require.Len(t, sys.Embeds, 1)
	assert.Equal(t, "NetSentry Online", sys.Embeds[0].Title)
	assert.Equal(t, "service started", sys.Embeds[0].Description)
	assert.Equal(t, ColorGreen, sys.Embeds[0].Color)
}

func TestWebhookManualBlockColor(t *testing.T) {
	var payload DiscordWebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &payload))
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookService()
	w.SetWebhookURL(srv.URL)

	require.NoError(t, w.SendBlockAlert("10.0.0.2", "", 0.3, "operator action", false))
	require.Len(t, payload.Embeds, 1)
	assert.Equal(t, ColorOrange, payload.Embeds[0].Color)
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhookService()
	w.SetWebhookURL(srv.URL)

	assert.Error(t, w.SendSystemAlert("title", "message", ColorOrange))
}
