package app

import (
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/salesdesk/salesdesk/web"
)

// Slim container images ship without /etc/mime.types.
var staticTypes = map[string]string{
	".css":   "text/css; charset=utf-8",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".woff2": "font/woff2",
}

func init() {
	for ext, typ := range staticTypes {
		if mime.TypeByExtension(ext) != "" {
			continue
		}
		if err := mime.AddExtensionType(ext, typ); err != nil {
			slog.Default().Warn("register mime type", slog.String("ext", ext), slog.Any("error", err))
		}
	}
}

// mountStatic serves the embedded assets under /static/. Directory listings
// are not served.
func mountStatic(r chi.Router, logger *slog.Logger, maxAge time.Duration) {
	sub, err := fs.Sub(web.Static, "static")
	if err != nil {
		logger.Error("create static sub filesystem", slog.Any("error", err))
		return
	}
	files := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	cacheControl := fmt.Sprintf("public, max-age=%d", int(maxAge/time.Second))
	r.Handle("/static/*", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.HasSuffix(req.URL.Path, "/") {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Cache-Control", cacheControl)
		files.ServeHTTP(w, req)
	}))
}
