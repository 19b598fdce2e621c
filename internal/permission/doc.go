// Package permission decides a caller's AuthLevel from their Discord guild
// permissions or role memberships.
//
// The bitmask and role decoders are pure. The two resolvers combine them with
// read-only lookups against the identity provider.
package permission
