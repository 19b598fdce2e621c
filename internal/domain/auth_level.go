package domain

import "strings"

// AuthLevel is the authorization tier of a session or realtime connection.
// Levels are ordered: Admin implies Moderator.
type AuthLevel int

const (
	LevelNone AuthLevel = iota
	LevelModerator
	LevelAdmin
)

func (l AuthLevel) String() string {
	switch l {
	case LevelModerator:
		return "moderator"
	case LevelAdmin:
		return "admin"
	default:
		return "none"
	}
}

// ParseAuthLevel converts a string to an AuthLevel, defaulting to none.
func ParseAuthLevel(s string) AuthLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "moderator":
		return LevelModerator
	case "admin":
		return LevelAdmin
	default:
		return LevelNone
	}
}

// LevelFromFlags folds the isAdmin/isModerator pair into a level.
func LevelFromFlags(isAdmin, isModerator bool) AuthLevel {
	switch {
	case isAdmin:
		return LevelAdmin
	case isModerator:
		return LevelModerator
	default:
		return LevelNone
	}
}

func (l AuthLevel) IsAdmin() bool     { return l >= LevelAdmin }
func (l AuthLevel) IsModerator() bool { return l >= LevelModerator }

// AtLeast reports whether l satisfies the minimum level.
func (l AuthLevel) AtLeast(min AuthLevel) bool { return l >= min }

// Max returns the more permissive of two levels.
func Max(a, b AuthLevel) AuthLevel {
	if a > b {
		return a
	}
	return b
}
