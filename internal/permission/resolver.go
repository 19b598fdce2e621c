package permission

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twistedx/killfeed/internal/domain"
	"golang.org/x/sync/errgroup"
)

const guildLookupConcurrency = 4

// UserDirectory performs lookups with the caller's OAuth access token.
type UserDirectory interface {
	UserGuilds(ctx context.Context, accessToken string) ([]domain.Guild, error)
	// UserMember returns domain.ErrNotInServer when the caller is not a member.
	UserMember(ctx context.Context, accessToken, guildID string) (*domain.Member, error)
}

// BotDirectory performs lookups with the bot credential.
type BotDirectory interface {
	BotGuilds(ctx context.Context) ([]domain.Guild, error)
	GuildMember(ctx context.Context, guildID, userID string) (*domain.Member, error)
	Guild(ctx context.Context, guildID string) (*domain.GuildInfo, error)
}

// GuildScanResolver grants the most permissive level the caller holds in any
// guild shared with the bot.
type GuildScanResolver struct {
	users UserDirectory
	bot   BotDirectory
}

func NewGuildScanResolver(users UserDirectory, bot BotDirectory) *GuildScanResolver {
	return &GuildScanResolver{users: users, bot: bot}
}

func (r *GuildScanResolver) Resolve(ctx context.Context, accessToken, userID string) (domain.Resolution, error) {
	var botGuilds, userGuilds []domain.Guild

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		botGuilds, err = r.bot.BotGuilds(gctx)
		if err != nil {
			return fmt.Errorf("fetch bot guilds: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		userGuilds, err = r.users.UserGuilds(gctx, accessToken)
		if err != nil {
			return fmt.Errorf("fetch user guilds: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Resolution{}, err
	}

	if len(botGuilds) == 0 {
		return domain.Resolution{}, domain.ErrBotNotConfigured
	}

	botGuildIDs := make(map[string]struct{}, len(botGuilds))
	for _, guild := range botGuilds {
		botGuildIDs[guild.ID] = struct{}{}
	}

	var shared []domain.Guild
	for _, guild := range userGuilds {
		if _, ok := botGuildIDs[guild.ID]; ok {
			shared = append(shared, guild)
		}
	}
	if len(shared) == 0 {
		return domain.Resolution{}, domain.ErrNoSharedGuild
	}

	levels := make([]domain.AuthLevel, len(shared))
	lookups, lctx := errgroup.WithContext(ctx)
	lookups.SetLimit(guildLookupConcurrency)
	for i, guild := range shared {
		lookups.Go(func() error {
			levels[i] = r.guildLevel(lctx, guild, userID)
			return nil
		})
	}
	_ = lookups.Wait()

	res := domain.Resolution{Guilds: make([]domain.GuildPermission, 0, len(shared))}
	for i, guild := range shared {
		res.Level = domain.Max(res.Level, levels[i])
		res.Guilds = append(res.Guilds, domain.GuildPermission{
			GuildID:     guild.ID,
			GuildName:   guild.Name,
			IsAdmin:     levels[i].IsAdmin(),
			IsModerator: levels[i].IsModerator(),
		})
	}
	return res, nil
}

// guildLevel decodes the user-guild bits and corroborates them with the bot's
// view of the member. Corroboration failures only cost the extra bits.
func (r *GuildScanResolver) guildLevel(ctx context.Context, guild domain.Guild, userID string) domain.AuthLevel {
	if guild.Owner {
		return domain.LevelAdmin
	}

	bits := guild.Permissions
	memberBits, err := r.memberPermissions(ctx, guild.ID, userID)
	if err != nil {
		slog.WarnContext(ctx, "Member permission lookup failed", "guild_id", guild.ID, "user_id", userID, "error", err)
	}
	return LevelFromPermissions(bits | memberBits)
}

func (r *GuildScanResolver) memberPermissions(ctx context.Context, guildID, userID string) (int64, error) {
	member, err := r.bot.GuildMember(ctx, guildID, userID)
	if err != nil {
		return 0, fmt.Errorf("fetch member: %w", err)
	}
	if member.Permissions != 0 {
		return member.Permissions, nil
	}

	guild, err := r.bot.Guild(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("fetch guild: %w", err)
	}
	if guild.OwnerID == userID {
		return PermAdministrator, nil
	}
	return rolePermissions(guild, member), nil
}

// RoleListResolver grants levels from role allow-lists in one configured server.
type RoleListResolver struct {
	users    UserDirectory
	bot      BotDirectory
	serverID string
	policy   RolePolicy
}

// NewRoleListResolver creates a role allow-list resolver. bot may be nil, in
// which case the owner fallback is skipped.
func NewRoleListResolver(users UserDirectory, bot BotDirectory, serverID string, policy RolePolicy) *RoleListResolver {
	return &RoleListResolver{users: users, bot: bot, serverID: serverID, policy: policy}
}

func (r *RoleListResolver) Resolve(ctx context.Context, accessToken, userID string) (domain.Resolution, error) {
	member, err := r.users.UserMember(ctx, accessToken, r.serverID)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("fetch server member: %w", err)
	}

	level := LevelFromRoles(member.Roles, r.policy)
	guildName := ""

	if r.bot != nil {
		guild, err := r.bot.Guild(ctx, r.serverID)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "Guild owner lookup failed", "guild_id", r.serverID, "error", err)
		default:
			guildName = guild.Name
			if guild.OwnerID == userID {
				level = domain.LevelAdmin
			}
		}
	}

	return domain.Resolution{
		Level: level,
		Guilds: []domain.GuildPermission{{
			GuildID:     r.serverID,
			GuildName:   guildName,
			IsAdmin:     level.IsAdmin(),
			IsModerator: level.IsModerator(),
		}},
	}, nil
}
