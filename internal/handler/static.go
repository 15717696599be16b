package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Paths owned by the server itself; they never fall back to the UI.
var reservedPaths = []string{"ws", "health", "metrics", "dev", "sessions"}

// SPAHandler serves the linking UI: existing files as-is, anything else
// as index.html so client-side routes survive a reload.
type SPAHandler struct {
	staticDir string
	prefix    string
	indexFile string
}

func NewSPAHandler(staticDir, prefix string) *SPAHandler {
	return &SPAHandler{
		staticDir: staticDir,
		prefix:    strings.TrimSuffix(prefix, "/"),
		indexFile: "index.html",
	}
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, h.prefix)
	path = strings.TrimPrefix(path, "/")

	first, _, _ := strings.Cut(path, "/")
	for _, reserved := range reservedPaths {
		if first == reserved {
			http.NotFound(w, r)
			return
		}
	}

	// Clean against a rooted path so ".." cannot leave staticDir.
	filePath := filepath.Join(h.staticDir, filepath.FromSlash(filepath.Clean("/"+path)))

	info, err := os.Stat(filePath)
	if err == nil && !info.IsDir() {
		http.ServeFile(w, r, filePath)
		return
	}

	indexPath := filepath.Join(h.staticDir, h.indexFile)
	if _, err := os.Stat(indexPath); err != nil {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, indexPath)
}

func StaticFileServer(staticDir, prefix string) http.Handler {
	return NewSPAHandler(staticDir, prefix)
}
