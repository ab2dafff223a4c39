// Package web embeds the HTML templates and static assets into the binary,
// so the server runs from any working directory.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates static
var files embed.FS

// Templates returns the page templates, rooted at the templates directory.
func Templates() fs.FS {
	return sub("templates")
}

// Static returns the static assets, rooted at the static directory.
func Static() fs.FS {
	return sub("static")
}

func sub(dir string) fs.FS {
	f, err := fs.Sub(files, dir)
	if err != nil {
		// Only possible for an invalid path, which these constants are not.
		panic(err)
	}
	return f
}
