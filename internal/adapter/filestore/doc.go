// Package filestore persists sessions and the overlay configuration as JSON
// documents on the local filesystem.
//
// Writes go to a temporary file in the target directory followed by a rename,
// so readers never observe a partially written document.
package filestore
