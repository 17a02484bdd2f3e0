package web

import (
	"net/http"
	"path/filepath"
)

// dashboardFile is resolved relative to the server's working directory.
var dashboardFile = filepath.Join("web", "dashboard.html")

// ServeDashboard serves the dashboard page. The page is plain HTML that
// talks to the JSON API and the event stream, served from disk so it can
// be changed without rebuilding the server.
func ServeDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")

	http.ServeFile(w, r, dashboardFile)
}
