package domain

import "errors"

// Login failures. Each one maps to a user-facing redirect code.
var (
	ErrProviderUnavailable     = errors.New("identity provider unavailable")
	ErrTokenExchange           = errors.New("oauth token exchange failed")
	ErrNoSharedGuild           = errors.New("no guild shared with bot")
	ErrNotInServer             = errors.New("user is not a member of the configured server")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrBotNotConfigured        = errors.New("bot credential not configured")
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrConfigNotFound  = errors.New("overlay config not found")
)

// Realtime command failures. None of these are reported back to the client.
var (
	ErrUnauthorized   = errors.New("command not permitted for connection")
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidPayload = errors.New("invalid command payload")
	ErrUnknownConn    = errors.New("unknown connection")
)
