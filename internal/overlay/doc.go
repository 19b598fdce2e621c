// Package overlay holds the authoritative overlay state (counters, message and
// configuration) and applies realtime commands to it.
//
// Every command goes through a single dispatch table that names its minimum
// AuthLevel, so authorization is checked in one place. The store never
// publishes anything itself; callers broadcast the returned Result.
package overlay
