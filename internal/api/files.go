package api

import (
	"net/http"
	"path"
	"strings"
)

// FileServer serves locally stored photos under /files/. Directory listings
// are not exposed.
func FileServer(dir string) http.Handler {
	fs := http.StripPrefix("/files/", http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") || path.Ext(r.URL.Path) == "" {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
