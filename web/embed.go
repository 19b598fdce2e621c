// Package web holds the browser pages served by the HTTP gateway.
package web

import (
	"embed"
	"io/fs"
)

//go:embed public
var files embed.FS

// Public returns the page tree rooted at public/.
func Public() fs.FS {
	sub, err := fs.Sub(files, "public")
	if err != nil {
		panic(err) // the directory is embedded above
	}
	return sub
}
