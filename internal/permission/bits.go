package permission

import (
	"slices"

	"github.com/twistedx/killfeed/internal/domain"
)

// Discord permission bits that grant control panel access.
const (
	PermKickMembers     int64 = 1 << 1
	PermBanMembers      int64 = 1 << 2
	PermAdministrator   int64 = 1 << 3
	PermManageGuild     int64 = 1 << 5
	PermManageRoles     int64 = 1 << 28
	PermModerateMembers int64 = 1 << 40
)

const moderatorMask = PermManageGuild | PermManageRoles | PermKickMembers | PermBanMembers | PermModerateMembers

// LevelFromPermissions decodes a guild permission bitmask.
func LevelFromPermissions(bits int64) domain.AuthLevel {
	switch {
	case bits&PermAdministrator != 0:
		return domain.LevelAdmin
	case bits&moderatorMask != 0:
		return domain.LevelModerator
	default:
		return domain.LevelNone
	}
}

// RolePolicy lists the role IDs that grant each level in the configured server.
type RolePolicy struct {
	AdminRoleIDs     []string
	ModeratorRoleIDs []string
}

// LevelFromRoles decodes a member's role IDs against the allow-lists.
func LevelFromRoles(roles []string, policy RolePolicy) domain.AuthLevel {
	level := domain.LevelNone
	for _, role := range roles {
		if slices.Contains(policy.AdminRoleIDs, role) {
			return domain.LevelAdmin
		}
		if slices.Contains(policy.ModeratorRoleIDs, role) {
			level = domain.LevelModerator
		}
	}
	return level
}

// rolePermissions folds the @everyone role and the member's roles into one
// bitmask. The @everyone role shares its ID with the guild.
func rolePermissions(guild *domain.GuildInfo, member *domain.Member) int64 {
	var bits int64
	for _, role := range guild.Roles {
		if role.ID == guild.ID || slices.Contains(member.Roles, role.ID) {
			bits |= role.Permissions
		}
	}
	return bits
}
