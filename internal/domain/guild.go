package domain

// Guild is a guild summary as listed by the identity provider. Permissions is
// the caller's computed permission bitmask in that guild.
type Guild struct {
	ID          string
	Name        string
	Owner       bool
	Permissions int64
}

// Member is a guild member record.
type Member struct {
	UserID      string
	Roles       []string
	Permissions int64
}

// Role is a guild role with its permission bitmask.
type Role struct {
	ID          string
	Permissions int64
}

// GuildInfo is the full guild record, fetched with the bot credential.
type GuildInfo struct {
	ID      string
	Name    string
	OwnerID string
	Roles   []Role
}

// GuildPermission summarises the caller's level in one shared guild.
type GuildPermission struct {
	GuildID     string `json:"guildId"`
	GuildName   string `json:"guildName"`
	IsAdmin     bool   `json:"isAdmin"`
	IsModerator bool   `json:"isModerator"`
}

// Resolution is the outcome of a permission check.
type Resolution struct {
	Level  AuthLevel
	Guilds []GuildPermission
}
