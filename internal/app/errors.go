package app

import (
	"errors"

	"github.com/twistedx/killfeed/internal/domain"
)

var (
	ErrPermissionCheck = errors.New("permission check failed")
	ErrSessionSave     = errors.New("session save failed")
)

// LoginErrorCode maps a Login error to the code shown on the landing page.
func LoginErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCode):
		return "no_code"
	case errors.Is(err, domain.ErrTokenExchange):
		return "token_failed"
	case errors.Is(err, domain.ErrNotInServer), errors.Is(err, domain.ErrNoSharedGuild):
		return "not_in_server"
	case errors.Is(err, domain.ErrBotNotConfigured):
		return "bot_not_configured"
	case errors.Is(err, domain.ErrInsufficientPermissions):
		return "insufficient_permissions"
	case errors.Is(err, ErrSessionSave):
		return "session_save_failed"
	case errors.Is(err, ErrPermissionCheck):
		return "permission_check_failed"
	default:
		return "auth_failed"
	}
}
