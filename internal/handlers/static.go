package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"hls-ingest/internal/filesystem"
	"hls-ingest/internal/logging"
)

var staticContentTypes = map[string]string{
	".m3u8": "application/vnd.apple.mpegurl",
	".ts":   "video/mp2t",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// ServeVideos serves playlists and segments below the videos root. Mount it
// behind http.StripPrefix("/videos/", ...).
func (h *Handlers) ServeVideos() http.Handler {
	return h.staticFiles(h.videosDir)
}

// ServeThumbnails serves thumbnails below the thumbnails root. Mount it
// behind http.StripPrefix("/thumbnails/", ...).
func (h *Handlers) ServeThumbnails() http.Handler {
	return h.staticFiles(h.thumbnailsDir)
}

// staticFiles serves regular files under root. Directories, hidden files and
// unknown extensions are reported as 404.
func (h *Handlers) staticFiles(root string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		rel := path.Clean("/" + r.URL.Path)
		if rel == "/" || strings.Contains(rel, "/.") {
			http.NotFound(w, r)
			return
		}

		contentType, ok := staticContentTypes[strings.ToLower(path.Ext(rel))]
		if !ok {
			http.NotFound(w, r)
			return
		}

		fullPath := filepath.Join(root, filepath.FromSlash(rel))
		info, err := filesystem.StatWithRetry(fullPath, h.retry)
		if err != nil || !info.Mode().IsRegular() {
			http.NotFound(w, r)
			return
		}

		file, err := os.Open(fullPath)
		if err != nil {
			logging.Warn("Failed to open %s: %v", fullPath, err)
			http.NotFound(w, r)
			return
		}
		defer func() {
			if err := file.Close(); err != nil {
				logging.Warn("failed to close %s: %v", fullPath, err)
			}
		}()

		w.Header().Set("Content-Type", contentType)
		if strings.HasSuffix(rel, ".m3u8") {
			w.Header().Set("Cache-Control", "no-cache")
		} else {
			w.Header().Set("Cache-Control", "public, max-age=86400")
		}
		http.ServeContent(w, r, info.Name(), info.ModTime(), file)
	})
}
