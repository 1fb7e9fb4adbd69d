package server

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// uiHandler serves the built UI from dir. Paths that match no file fall back
// to index.html so client-side routes survive a reload.
func uiHandler(dir string) (http.Handler, bool) {
	if dir == "" {
		return nil, false
	}
	root := os.DirFS(dir)
	if _, err := fs.Stat(root, "index.html"); err != nil {
		return nil, false
	}

	files := http.FileServerFS(root)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if strings.HasPrefix(name, "api/") {
			http.NotFound(w, r)
			return
		}
		if name != "" {
			if _, err := fs.Stat(root, name); err != nil {
				http.ServeFileFS(w, r, root, "index.html")
				return
			}
		}
		files.ServeHTTP(w, r)
	}), true
}
