// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (errors.go, identity.go, session.go,
// overlay.go, etc.) with shared types and cross-cutting interfaces. Only small,
// pure helpers live here; implementations sit in adapters and services.
// Keeping the contracts here prevents circular imports between adapters.
package domain
