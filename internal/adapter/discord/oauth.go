package discord

import (
	"context"
	"fmt"
	"net/http"

	"github.com/twistedx/killfeed/internal/domain"
	"golang.org/x/oauth2"
)

// Endpoint is Discord's OAuth2 endpoint. Discord expects client credentials in
// the form body.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/oauth2/authorize",
	TokenURL:  "https://discord.com/api/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

const (
	ScopeIdentify         = "identify"
	ScopeGuilds           = "guilds"
	ScopeGuildMembersRead = "guilds.members.read"
)

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Endpoint defaults to the Discord endpoint when zero.
	Endpoint oauth2.Endpoint
}

// OAuthClient runs the authorization code flow against Discord.
type OAuthClient struct {
	config     *oauth2.Config
	httpClient *http.Client
}

func NewOAuthClient(cfg OAuthConfig, httpClient *http.Client) *OAuthClient {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = Endpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &OAuthClient{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       cfg.Scopes,
		},
		httpClient: httpClient,
	}
}

// AuthCodeURL returns the authorize URL the browser is redirected to.
func (c *OAuthClient) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for an access token.
func (c *OAuthClient) Exchange(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrTokenExchange, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", domain.ErrTokenExchange)
	}
	return token.AccessToken, nil
}
