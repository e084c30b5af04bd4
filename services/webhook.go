package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"netsentry/system"
)

// WebhookService handles Discord webhook notifications
type WebhookService struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordEmbed represents a Discord embed object
type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

// DiscordEmbedField represents a field in a Discord embed
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordWebhookPayload represents a Discord webhook message
type DiscordWebhookPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

func NewWebhookService() *WebhookService {
	return &WebhookService{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetWebhookURL sets the Discord webhook URL
func (w *WebhookService) SetWebhookURL(url string) {
	w.webhookURL = url
	w.enabled = url != ""
}

// IsEnabled returns whether the webhook is enabled
func (w *WebhookService) IsEnabled() bool {
	return w.enabled && w.webhookURL != ""
}

// Discord color constants
const (
	ColorRed    = 0xFF0000 // Attack/Error
	ColorOrange = 0xFFAA00 // Warning/Block
	ColorGreen  = 0x00FF00 // Success
)

// SendBlockAlert notifies about a block decision.
func (w *WebhookService) SendBlockAlert(ip, attackType string, threatLevel float64, reason string, auto bool) error {
	if !w.IsEnabled() {
		return nil
	}

	mode := "Manual"
	color := ColorOrange
	if auto {
		mode = "Automatic"
		color = ColorRed
	}

	embed := DiscordEmbed{
		Title:       "🚨 IP Blocked",
		Description: fmt.Sprintf("Traffic from **%s** has been blocked", ip),
		Color:       color,
		Fields: []DiscordEmbedField{
			{Name: "Source IP", Value: fmt.Sprintf("`%s`", ip), Inline: true},
			{Name: "Attack Type", Value: orDash(attackType), Inline: true},
			{Name: "Threat Level", Value: fmt.Sprintf("%.2f", threatLevel), Inline: true},
			{Name: "Mode", Value: mode, Inline: true},
			{Name: "Reason", Value: orDash(reason), Inline: false},
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	return w.send(DiscordWebhookPayload{
		Username: "NetSentry",
		Embeds:   []DiscordEmbed{embed},
	})
}

// SendSystemAlert sends a generic titled message.
func (w *WebhookService) SendSystemAlert(title, message string, color int) error {
	if !w.IsEnabled() {
		return nil
	}

	return w.send(DiscordWebhookPayload{
		Username: "NetSentry",
		Embeds: []DiscordEmbed{{
			Title:       title,
			Description: message,
			Color:       color,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	})
}

func (w *WebhookService) send(payload DiscordWebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := w.client.Post(w.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		system.Warn("Failed to send webhook: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		system.Warn("Webhook returned status %d", resp.StatusCode)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
