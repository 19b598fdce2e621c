package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twistedx/killfeed/internal/domain"
)

func TestLevelFromPermissions(t *testing.T) {
	tests := []struct {
		name string
		bits int64
		want domain.AuthLevel
	}{
		{"no bits", 0, domain.LevelNone},
		{"send messages only", 1 << 11, domain.LevelNone},
		{"administrator", PermAdministrator, domain.LevelAdmin},
		{"administrator with others", PermAdministrator | PermKickMembers, domain.LevelAdmin},
		{"manage guild", PermManageGuild, domain.LevelModerator},
		{"manage roles", PermManageRoles, domain.LevelModerator},
		{"kick members", PermKickMembers, domain.LevelModerator},
		{"ban members", PermBanMembers, domain.LevelModerator},
		{"moderate members", PermModerateMembers, domain.LevelModerator},
		{"manage emojis is not enough", 1 << 30, domain.LevelNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LevelFromPermissions(tt.bits))
		})
	}
}

func TestLevelFromRoles(t *testing.T) {
	policy := RolePolicy{
		AdminRoleIDs:     []string{"a1", "a2"},
		ModeratorRoleIDs: []string{"m1"},
	}

	tests := []struct {
		name  string
		roles []string
		want  domain.AuthLevel
	}{
		{"no roles", nil, domain.LevelNone},
		{"unrelated roles", []string{"x", "y"}, domain.LevelNone},
		{"moderator role", []string{"x", "m1"}, domain.LevelModerator},
		{"admin role", []string{"a2"}, domain.LevelAdmin},
		{"admin and moderator roles", []string{"m1", "a1"}, domain.LevelAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LevelFromRoles(tt.roles, policy))
		})
	}
}

func TestRolePermissions_IncludesEveryoneRole(t *testing.T) {
	guild := &domain.GuildInfo{
		ID: "g1",
		Roles: []domain.Role{
			{ID: "g1", Permissions: PermKickMembers},
			{ID: "r1", Permissions: PermManageGuild},
			{ID: "r2", Permissions: PermAdministrator},
		},
	}
	member := &domain.Member{UserID: "u1", Roles: []string{"r1"}}

	bits := rolePermissions(guild, member)

	assert.Equal(t, PermKickMembers|PermManageGuild, bits)
}
