// Package discord talks to the Discord API: the OAuth2 code exchange, the
// REST lookups used to resolve a caller's guild permissions and the crash
// report webhook.
//
// Every REST lookup goes through a single circuit breaker. Calls are never
// retried; a failing Discord surfaces as domain.ErrProviderUnavailable.
package discord
