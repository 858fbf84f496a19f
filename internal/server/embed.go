package server

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/raspterm/webui"
)

// uiFS picks web/dist when a production build was embedded, else the
// web/ placeholder.
func uiFS() fs.FS {
	dist, err := fs.Sub(webui.FS, "web/dist")
	if err == nil {
		if entries, _ := fs.ReadDir(dist, "."); len(entries) > 0 {
			return dist
		}
	}
	root, err := fs.Sub(webui.FS, "web")
	if err != nil {
		panic("embed: web sub-fs failed: " + err.Error())
	}
	return root
}

// RegisterStaticFiles mounts the embedded dashboard as the NoRoute handler.
// Existing files are served as-is; any other path gets index.html so the
// client-side router can take over. Unknown /api and /ws paths stay 404.
func RegisterStaticFiles(r *gin.Engine) {
	static := uiFS()
	files := http.FileServer(http.FS(static))

	r.NoRoute(func(c *gin.Context) {
		p := c.Request.URL.Path
		if p == "/ws" || strings.HasPrefix(p, "/api/") || p == "/api" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}

		name := strings.TrimPrefix(path.Clean(p), "/")
		if name != "" && name != "index.html" {
			if st, err := fs.Stat(static, name); err == nil && !st.IsDir() {
				files.ServeHTTP(c.Writer, c.Request)
				return
			}
		}

		index, err := fs.ReadFile(static, "index.html")
		if err != nil {
			c.String(http.StatusNotFound, "UI not found. Run 'make ui' to build the dashboard.")
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", index)
	})
}
