package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// fallbackShell is served when no built frontend is configured.
const fallbackShell = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>TubeShelf</title>
</head>
<body>
<div id="root"></div>
<noscript>TubeShelf needs JavaScript enabled.</noscript>
</body>
</html>
`

// Page serves the single-page app shell. Routing and auth redirects have
// already been applied by the page guard.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	if dir := strings.TrimSpace(h.StaticDir); dir != "" {
		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err == nil {
			http.ServeFile(w, r, index)
			return
		}
		h.log.Warn().Str("staticDir", dir).Msg("index.html missing, serving fallback shell")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(fallbackShell))
}

// Assets serves built frontend files, or 404 when none are configured.
func (h *Handler) Assets() http.Handler {
	dir := strings.TrimSpace(h.StaticDir)
	if dir == "" {
		return http.NotFoundHandler()
	}
	return http.StripPrefix("/assets/", http.FileServer(http.Dir(filepath.Join(dir, "assets"))))
}
