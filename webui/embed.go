// Package webui exposes the embedded dashboard.
// It lives at the module root so go:embed can reach the sibling web/ directory.
package webui

import "embed"

// FS holds web/index.html (placeholder page) and web/dist (production build).
//
//go:embed web
var FS embed.FS
