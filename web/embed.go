// Package web embeds the HTML templates and static assets into the binary.
package web

import "embed"

// Templates holds layouts, partials and pages.
//
//go:embed templates/layouts/*.html templates/partials/*.html templates/pages/*.html
var Templates embed.FS

// Static holds the assets served under /static/.
//
//go:embed static
var Static embed.FS
