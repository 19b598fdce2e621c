package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/centrifugal/centrifuge"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/twistedx/killfeed/internal/adapter/discord"
	"github.com/twistedx/killfeed/internal/adapter/filestore"
	"github.com/twistedx/killfeed/internal/adapter/httpserver"
	"github.com/twistedx/killfeed/internal/adapter/memory"
	"github.com/twistedx/killfeed/internal/adapter/metrics"
	"github.com/twistedx/killfeed/internal/adapter/redis"
	"github.com/twistedx/killfeed/internal/adapter/websocket"
	"github.com/twistedx/killfeed/internal/app"
	"github.com/twistedx/killfeed/internal/domain"
	"github.com/twistedx/killfeed/internal/overlay"
	"github.com/twistedx/killfeed/internal/permission"
	"github.com/twistedx/killfeed/internal/platform/config"
	"github.com/twistedx/killfeed/internal/platform/logging"
	"github.com/twistedx/killfeed/internal/platform/version"
	"github.com/twistedx/killfeed/internal/realtime"
	"github.com/twistedx/killfeed/web"
)

const shutdownTimeout = 10 * time.Second

type metricSet struct {
	registry *prometheus.Registry
	breaker  *metrics.BreakerMetrics
	redis    *metrics.RedisMetrics
	commands *metrics.CommandMetrics
	sessions *metrics.SessionMetrics
	ws       *metrics.WebSocketMetrics
	http     *metrics.HTTPMetrics
}

func setupMetrics() metricSet {
	reg := metrics.NewRegistry()
	return metricSet{
		registry: reg,
		breaker:  metrics.NewBreakerMetrics(reg),
		redis:    metrics.NewRedisMetrics(reg),
		commands: metrics.NewCommandMetrics(reg),
		sessions: metrics.NewSessionMetrics(reg),
		ws:       metrics.NewWebSocketMetrics(reg),
		http:     metrics.NewHTTPMetrics(reg),
	}
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// fatal logs err, reports it to the crash webhook when one is configured and exits.
func fatal(notifier *discord.Notifier, msg string, err error) {
	slog.Error(msg, "error", err)
	if notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		notifier.NotifyCrash(ctx, fmt.Errorf("%s: %w", msg, err))
		cancel()
	}
	os.Exit(1)
}

func setupNotifier(cfg *config.Config, clock clockwork.Clock) *discord.Notifier {
	if cfg.DiscordWebhookURL == "" {
		return nil
	}
	n, err := discord.NewNotifier(cfg.DiscordWebhookURL, nil, clock)
	if err != nil {
		slog.Warn("Crash webhook disabled", "error", err)
		return nil
	}
	return n
}

func setupRedis(cfg *config.Config, m metricSet, notifier *discord.Notifier) *goredis.Client {
	if !cfg.UsesRedis() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, m.redis, m.breaker)
	if err != nil {
		fatal(notifier, "Failed to connect to Redis", err)
	}
	return client
}

type sessionStore struct {
	repo    domain.SessionRepository
	evictor app.Evictor
	check   httpserver.HealthCheck
}

func setupSessions(cfg *config.Config, clock clockwork.Clock, rdb *goredis.Client, notifier *discord.Notifier) sessionStore {
	policy := domain.SessionPolicy{TTL: cfg.SessionTTL, Rolling: cfg.SessionRolling}

	switch cfg.SessionBackend {
	case config.BackendRedis:
		return sessionStore{
			repo:  redis.NewSessionRepo(rdb, clock, policy),
			check: httpserver.HealthCheck{Name: "sessions", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		}
	case config.BackendMemory:
		repo := memory.NewSessionRepo(clock, policy)
		return sessionStore{repo: repo, evictor: repo}
	default:
		repo, err := filestore.NewSessionRepo(cfg.SessionDir, clock, policy)
		if err != nil {
			fatal(notifier, "Failed to open session directory", err)
		}
		return sessionStore{
			repo:    repo,
			evictor: repo,
			check:   httpserver.HealthCheck{Name: "sessions", Check: repo.Ping},
		}
	}
}

func setupConfigRepo(cfg *config.Config, rdb *goredis.Client, notifier *discord.Notifier) (domain.ConfigRepository, httpserver.HealthCheck) {
	if cfg.ConfigBackend == config.BackendRedis {
		return redis.NewConfigRepo(rdb), httpserver.HealthCheck{
			Name:  "overlay_config",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}
	}

	repo, err := filestore.NewConfigRepo(cfg.DataDir)
	if err != nil {
		fatal(notifier, "Failed to open data directory", err)
	}
	return repo, httpserver.HealthCheck{Name: "overlay_config", Check: repo.Ping}
}

func setupDiscord(cfg *config.Config, m metricSet, notifier *discord.Notifier) (*discord.OAuthClient, *discord.Client) {
	scopes := []string{discord.ScopeIdentify, discord.ScopeGuilds}
	if cfg.PermissionMode == config.PermissionModeRoles {
		scopes = append(scopes, discord.ScopeGuildMembersRead)
	}

	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	oauthClient := discord.NewOAuthClient(discord.OAuthConfig{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURL:  cfg.DiscordRedirectURI,
		Scopes:       scopes,
	}, httpClient)

	client, err := discord.NewClient(cfg.DiscordBotToken, httpClient, m.breaker)
	if err != nil {
		fatal(notifier, "Failed to create Discord client", err)
	}
	return oauthClient, client
}

func setupResolver(cfg *config.Config, client *discord.Client) app.PermissionResolver {
	if cfg.PermissionMode == config.PermissionModeRoles {
		var bot permission.BotDirectory
		if cfg.DiscordBotToken != "" {
			bot = client
		}
		return permission.NewRoleListResolver(client, bot, cfg.DiscordServerID, permission.RolePolicy{
			AdminRoleIDs:     cfg.AdminRoleIDs,
			ModeratorRoleIDs: cfg.ModeratorRoleIDs,
		})
	}
	return permission.NewGuildScanResolver(client, client)
}

// verifyBot checks the bot credential once at startup. Problems are only
// reported; guild-scan logins will fail with bot_not_configured until fixed.
func verifyBot(cfg *config.Config, client *discord.Client) {
	if cfg.DiscordBotToken == "" {
		slog.Warn("DISCORD_BOT_TOKEN not set, bot features disabled")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ProviderTimeout)
	defer cancel()

	bot, err := client.VerifyBot(ctx)
	if err != nil {
		slog.Warn("Bot token verification failed", "error", err)
		return
	}
	slog.Info("Bot verified", "bot", bot.Tag(), "bot_id", bot.ID)
}

func logDiscordConfig(cfg *config.Config) {
	slog.Info("Discord configuration",
		"client_id_set", cfg.DiscordClientID != "",
		"client_secret_set", cfg.DiscordClientSecret != "",
		"redirect_uri", cfg.DiscordRedirectURI,
		"server_id", cfg.DiscordServerID,
		"permission_mode", cfg.PermissionMode,
		"access_mode", cfg.AccessMode,
		"admin_roles", len(cfg.AdminRoleIDs),
		"moderator_roles", len(cfg.ModeratorRoleIDs),
	)
}

func runGracefulShutdown(srv *httpserver.Server, node *centrifuge.Node, stopReaper func(), rdb *goredis.Client) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("Shutdown signal received, cleaning up...", "signal", sig.String())

		// A second signal or a stuck shutdown forces the exit.
		go func() {
			select {
			case <-sigChan:
			case <-time.After(shutdownTimeout + time.Second):
			}
			slog.Error("Forced shutdown")
			os.Exit(1)
		}()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := node.Shutdown(shutdownCtx); err != nil {
			slog.Error("Realtime node shutdown error", "error", err)
		}
		stopReaper()
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				slog.Error("Failed to close Redis client", "error", err)
			}
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())
	logDiscordConfig(cfg)

	notifier := setupNotifier(cfg, clock)
	m := setupMetrics()

	rdb := setupRedis(cfg, m, notifier)
	sessions := setupSessions(cfg, clock, rdb, notifier)
	configRepo, configCheck := setupConfigRepo(cfg, rdb, notifier)

	oauthClient, discordClient := setupDiscord(cfg, m, notifier)
	verifyBot(cfg, discordClient)

	appSvc := app.NewService(oauthClient, discordClient, setupResolver(cfg, discordClient), sessions.repo, m.commands, m.sessions, cfg.ProviderTimeout)

	stopReaper := func() {}
	if sessions.evictor != nil {
		stopReaper = app.StartSessionReaper(clock, cfg.SessionReapInterval, sessions.evictor, m.sessions)
	}

	// Realtime: overlay store, hub and the centrifuge node carrying it.
	store := overlay.NewStore(context.Background(), configRepo)

	nodeCfg := websocket.NodeConfig{LogLevel: cfg.LogLevel, MaxConnections: cfg.MaxWebSocketConnections}
	node, err := websocket.NewNode(nodeCfg)
	if err != nil {
		fatal(notifier, "Failed to create realtime node", err)
	}
	hub := realtime.NewHub(store, websocket.NewPublisher(node, m.ws), m.commands, clock, realtime.AccessMode(cfg.AccessMode))
	websocket.Attach(node, hub, nodeCfg, m.ws)
	if err := node.Run(); err != nil {
		fatal(notifier, "Failed to start realtime node", err)
	}

	checks := []httpserver.HealthCheck{configCheck}
	if sessions.check.Check != nil {
		checks = append([]httpserver.HealthCheck{sessions.check}, checks...)
	}

	var panicNotifier httpserver.PanicNotifier
	if notifier != nil {
		panicNotifier = notifier
	}

	// The websocket handler resolves principals through the server's cookie
	// sessions, so it is bound after the server exists.
	var wsHandler http.Handler
	srv, err := httpserver.NewServer(cfg, httpserver.Deps{
		App:     appSvc,
		Stats:   hub,
		Overlay: store,
		WebsocketHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wsHandler.ServeHTTP(w, r)
		}),
		MetricsHandler: metrics.Handler(m.registry),
		HTTPMetrics:    m.http,
		Notifier:       panicNotifier,
		Pages:          web.Public(),
		HealthChecks:   checks,
		Clock:          clock,
	})
	if err != nil {
		fatal(notifier, "Failed to create server", err)
	}
	checkOrigin := websocket.NewCheckOrigin([]string{cfg.AppURL}, cfg.IsDevelopment())
	wsHandler = websocket.NewHandler(node, srv, checkOrigin)

	done := runGracefulShutdown(srv, node, stopReaper, rdb)

	if err := srv.Start(context.Background()); err != nil {
		fatal(notifier, "Server error", err)
	}

	<-done
	slog.Info("Server stopped")
}
