package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookURL(t *testing.T) {
	tests := []struct {
		raw     string
		id      string
		token   string
		wantErr bool
	}{
		{raw: "https://discord.com/api/webhooks/123/abc-def", id: "123", token: "abc-def"},
		{raw: "https://discordapp.com/api/v10/webhooks/9/tok", id: "9", token: "tok"},
		{raw: "https://discord.com/api/webhooks/123", wantErr: true},
		{raw: "https://example.com/hooks", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			id, token, err := parseWebhookURL(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.token, token)
		})
	}
}

func newTestNotifier(t *testing.T, handler http.HandlerFunc) *Notifier {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	n, err := NewNotifier("https://discord.com/api/webhooks/123/secret", &http.Client{Transport: rewriteTransport{target: target}}, clock)
	require.NoError(t, err)
	return n
}

func TestNotifier_PostsEmbed(t *testing.T) {
	var got struct {
		Embeds []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Color       int    `json:"color"`
			Timestamp   string `json:"timestamp"`
		} `json:"embeds"`
	}
	var path string
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	n.NotifyCrash(context.Background(), errors.New("listen tcp :3000: address already in use"))

	assert.Equal(t, "/api/v9/webhooks/123/secret", path)
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Server Crash", got.Embeds[0].Title)
	assert.Contains(t, got.Embeds[0].Description, "address already in use")
	assert.Equal(t, colorCrash, got.Embeds[0].Color)
	assert.Equal(t, "2026-03-01T12:00:00Z", got.Embeds[0].Timestamp)
}

func TestNotifier_RateLimited(t *testing.T) {
	var hits atomic.Int32
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	for range 10 {
		n.NotifyPanic(context.Background(), errors.New("boom"), nil)
	}

	assert.Equal(t, int32(3), hits.Load())
}

func TestNotifier_DeliveryFailureIsSwallowed(t *testing.T) {
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	assert.NotPanics(t, func() {
		n.NotifyCrash(context.Background(), errors.New("boom"))
	})
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short", "boom", 10, "boom"},
		{"exact", "boom", 4, "boom"},
		{"ascii", "address in use", 7, "address..."},
		{"multibyte", "héllo wörld", 7, "héllo w..."},
		{"emoji", "💥💥💥", 2, "💥💥..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.limit))
		})
	}
}

func TestNotifier_LongMultibyteErrorStaysValidUTF8(t *testing.T) {
	var got struct {
		Embeds []struct {
			Description string `json:"description"`
		} `json:"embeds"`
	}
	n := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	// The leading ASCII byte shifts every é so byte offset maxDescription
	// falls inside one.
	n.NotifyCrash(context.Background(), errors.New("x"+strings.Repeat("é", 4000)))

	require.Len(t, got.Embeds, 1)
	desc := got.Embeds[0].Description
	assert.NotContains(t, desc, string(utf8.RuneError))
	assert.Equal(t, maxDescription+len("``````..."), utf8.RuneCountInString(desc))
}
