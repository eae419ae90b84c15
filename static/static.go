// Package static holds the default page and templates compiled into the
// binary. They are used unless --static-dir or --template-dir is set.
package static

import (
	"embed"
	"io/fs"

	"github.com/replicate/go/must"
)

//go:embed index.html
var public embed.FS

//go:embed templates
var templates embed.FS

// Files serves the public static tree. Templates are not part of it.
func Files() fs.FS {
	return public
}

// Templates holds the page templates.
func Templates() fs.FS {
	return must.Get(fs.Sub(templates, "templates"))
}
