// Package realtime tracks connected clients and their tiers, routes commands to
// the overlay store and fans accepted changes out to every connection.
//
// The hub is transport agnostic. Connections are reached through the Conn
// interface and broadcasts go through a Publisher, so the centrifuge adapter
// and tests can plug in their own implementations.
package realtime
