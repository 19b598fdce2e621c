package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	colorCrash   = 15158332
	colorWarning = 16776960

	// Discord rejects embed descriptions above 4096 characters.
	maxDescription = 3500
)

// Notifier posts crash reports to a Discord channel webhook.
type Notifier struct {
	session *discordgo.Session
	id      string
	token   string
	limiter *rate.Limiter
	clock   clockwork.Clock
}

// NewNotifier parses a webhook URL of the form
// https://discord.com/api/webhooks/{id}/{token}. At most one report per
// minute is sent, with a burst of three.
func NewNotifier(webhookURL string, httpClient *http.Client, clock clockwork.Clock) (*Notifier, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}

	s, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("create webhook session: %w", err)
	}
	s.Client = httpClient
	s.MaxRestRetries = 0
	s.ShouldRetryOnRateLimit = false
	s.StateEnabled = false

	return &Notifier{
		session: s,
		id:      id,
		token:   token,
		limiter: rate.NewLimiter(rate.Every(time.Minute), 3),
		clock:   clock,
	}, nil
}

func parseWebhookURL(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", errors.New("webhook url must look like /api/webhooks/{id}/{token}")
}

// NotifyPanic reports a recovered panic. Delivery failures are only logged.
func (n *Notifier) NotifyPanic(ctx context.Context, err error, _ []byte) {
	n.post(ctx, "Recovered Panic", err, colorWarning)
}

// NotifyCrash reports an error that is about to stop the process.
func (n *Notifier) NotifyCrash(ctx context.Context, err error) {
	n.post(ctx, "Server Crash", err, colorCrash)
}

func (n *Notifier) post(ctx context.Context, title string, err error, color int) {
	if !n.limiter.Allow() {
		slog.WarnContext(ctx, "Webhook notification dropped by rate limit", "title", title)
		return
	}

	msg := truncate(err.Error(), maxDescription)

	params := &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       title,
			Description: "```" + msg + "```",
			Color:       color,
			Timestamp:   n.clock.Now().UTC().Format(time.RFC3339),
		}},
	}
	if _, postErr := n.session.WebhookExecute(n.id, n.token, false, params, discordgo.WithContext(ctx)); postErr != nil {
		slog.ErrorContext(ctx, "Failed to post webhook notification", "title", title, "error", postErr)
	}
}

// truncate cuts s to at most limit characters, never inside a UTF-8 sequence.
func truncate(s string, limit int) string {
	count := 0
	for i := range s {
		if count == limit {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
