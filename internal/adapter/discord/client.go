package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sony/gobreaker"
	"github.com/twistedx/killfeed/internal/adapter/metrics"
	"github.com/twistedx/killfeed/internal/domain"
	"github.com/twistedx/killfeed/internal/platform/version"
	"golang.org/x/sync/singleflight"
)

const (
	breakerName = "discord"

	// Discord caps the guild listing page size at 200.
	guildPageSize = 200
)

var ErrNotFound = errors.New("discord resource not found")

// Client performs Discord REST lookups with either the caller's OAuth access
// token or the bot credential. It satisfies permission.UserDirectory and
// permission.BotDirectory.
type Client struct {
	httpClient *http.Client
	bot        *discordgo.Session
	breaker    *gobreaker.CircuitBreaker
	botGuilds  singleflight.Group
}

// NewClient creates a Discord client. An empty botToken leaves the bot-side
// lookups unconfigured; they then fail with domain.ErrBotNotConfigured.
// breakerMetrics may be nil.
func NewClient(botToken string, httpClient *http.Client, breakerMetrics *metrics.BreakerMetrics) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	c := &Client{
		httpClient: httpClient,
		breaker:    newBreaker(breakerMetrics),
	}

	if botToken != "" {
		bot, err := c.session("Bot " + botToken)
		if err != nil {
			return nil, err
		}
		c.bot = bot
	}
	return c, nil
}

// newBreaker opens after five consecutive failures and lets a trial call through after 30s.
// Client errors (4xx) are answers, not outages, so they never trip it.
func newBreaker(breakerMetrics *metrics.BreakerMetrics) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"component", name,
				"from", from.String(),
				"to", to.String(),
			)
			if breakerMetrics != nil {
				breakerMetrics.SetState(name, to.String(), stateToFloat(to))
			}
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func (c *Client) session(token string) (*discordgo.Session, error) {
	s, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Client = c.httpClient
	s.UserAgent = version.UserAgent()
	s.StateEnabled = false
	s.MaxRestRetries = 0
	s.ShouldRetryOnRateLimit = false
	return s, nil
}

// CurrentUser fetches the identity behind an OAuth access token.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (domain.Identity, error) {
	s, err := c.session("Bearer " + accessToken)
	if err != nil {
		return domain.Identity{}, err
	}

	user, err := execute(c, "fetch current user", func() (*discordgo.User, error) {
		return s.User("@me", discordgo.WithContext(ctx))
	})
	if err != nil {
		return domain.Identity{}, err
	}
	return toIdentity(user), nil
}

func (c *Client) UserGuilds(ctx context.Context, accessToken string) ([]domain.Guild, error) {
	s, err := c.session("Bearer " + accessToken)
	if err != nil {
		return nil, err
	}
	return c.listGuilds(ctx, s, "fetch user guilds")
}

func (c *Client) UserMember(ctx context.Context, accessToken, guildID string) (*domain.Member, error) {
	s, err := c.session("Bearer " + accessToken)
	if err != nil {
		return nil, err
	}

	member, err := execute(c, "fetch user member", func() (*discordgo.Member, error) {
		return s.UserGuildMember(guildID, discordgo.WithContext(ctx))
	})
	if errors.Is(err, ErrNotFound) {
		return nil, domain.ErrNotInServer
	}
	if err != nil {
		return nil, err
	}
	return toMember(member), nil
}

// BotGuilds lists the guilds the bot belongs to. Concurrent logins share one
// in-flight listing.
func (c *Client) BotGuilds(ctx context.Context) ([]domain.Guild, error) {
	if c.bot == nil {
		return nil, domain.ErrBotNotConfigured
	}

	v, err, _ := c.botGuilds.Do("bot-guilds", func() (any, error) {
		return c.listGuilds(ctx, c.bot, "fetch bot guilds")
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Guild), nil
}

func (c *Client) GuildMember(ctx context.Context, guildID, userID string) (*domain.Member, error) {
	if c.bot == nil {
		return nil, domain.ErrBotNotConfigured
	}

	member, err := execute(c, "fetch guild member", func() (*discordgo.Member, error) {
		return c.bot.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	})
	if err != nil {
		return nil, err
	}
	return toMember(member), nil
}

func (c *Client) Guild(ctx context.Context, guildID string) (*domain.GuildInfo, error) {
	if c.bot == nil {
		return nil, domain.ErrBotNotConfigured
	}

	guild, err := execute(c, "fetch guild", func() (*discordgo.Guild, error) {
		return c.bot.Guild(guildID, discordgo.WithContext(ctx))
	})
	if err != nil {
		return nil, err
	}
	return toGuildInfo(guild), nil
}

// VerifyBot checks the bot credential by fetching the bot's own user.
func (c *Client) VerifyBot(ctx context.Context) (domain.Identity, error) {
	if c.bot == nil {
		return domain.Identity{}, domain.ErrBotNotConfigured
	}

	user, err := execute(c, "fetch bot user", func() (*discordgo.User, error) {
		return c.bot.User("@me", discordgo.WithContext(ctx))
	})
	if err != nil {
		return domain.Identity{}, err
	}
	return toIdentity(user), nil
}

func (c *Client) listGuilds(ctx context.Context, s *discordgo.Session, op string) ([]domain.Guild, error) {
	var guilds []domain.Guild
	after := ""
	for {
		page, err := execute(c, op, func() ([]*discordgo.UserGuild, error) {
			return s.UserGuilds(guildPageSize, "", after, false, discordgo.WithContext(ctx))
		})
		if err != nil {
			return nil, err
		}
		for _, g := range page {
			guilds = append(guilds, domain.Guild{
				ID:          g.ID,
				Name:        g.Name,
				Owner:       g.Owner,
				Permissions: g.Permissions,
			})
		}
		if len(page) < guildPageSize {
			return guilds, nil
		}
		after = page[len(page)-1].ID
	}
}

// execute runs one REST call through the breaker and normalises its error.
func execute[T any](c *Client, op string, call func() (T, error)) (T, error) {
	var zero T

	v, err := c.breaker.Execute(func() (any, error) {
		return call()
	})
	if err != nil {
		return zero, classify(op, err)
	}
	return v.(T), nil
}

func classify(op string, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%s: %w: %w", op, domain.ErrProviderUnavailable, err)
	case statusCode(err) == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case isClientError(err):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrProviderUnavailable, err)
	}
}

func statusCode(err error) int {
	if restErr, ok := errors.AsType[*discordgo.RESTError](err); ok && restErr.Response != nil {
		return restErr.Response.StatusCode
	}
	return 0
}

func isClientError(err error) bool {
	code := statusCode(err)
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

func toIdentity(u *discordgo.User) domain.Identity {
	return domain.Identity{
		ID:            u.ID,
		Username:      u.Username,
		Discriminator: u.Discriminator,
		Avatar:        u.Avatar,
	}
}

func toMember(m *discordgo.Member) *domain.Member {
	member := &domain.Member{
		Roles:       m.Roles,
		Permissions: m.Permissions,
	}
	if m.User != nil {
		member.UserID = m.User.ID
	}
	return member
}

func toGuildInfo(g *discordgo.Guild) *domain.GuildInfo {
	info := &domain.GuildInfo{
		ID:      g.ID,
		Name:    g.Name,
		OwnerID: g.OwnerID,
		Roles:   make([]domain.Role, 0, len(g.Roles)),
	}
	for _, r := range g.Roles {
		info.Roles = append(info.Roles, domain.Role{ID: r.ID, Permissions: r.Permissions})
	}
	return info
}
