// Package app provides the application service layer.
//
// Orchestrates the login use case (code exchange, identity fetch, permission
// resolution, session creation), session lookup and logout, and the background
// reaper that evicts expired sessions. Depends on interfaces, not on the
// Discord or storage adapters.
package app
