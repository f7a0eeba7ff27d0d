package web

import (
	"embed"
	"io/fs"
)

//go:embed templates static
var assets embed.FS

// EmbeddedTemplates returns the compiled-in template tree.
func EmbeddedTemplates() fs.FS {
	sub, err := fs.Sub(assets, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Static returns the compiled-in CSS and JS.
func Static() fs.FS {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
