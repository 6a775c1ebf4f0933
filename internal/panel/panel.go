package panel

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path"
)

//go:embed web/*
var content embed.FS

// Handler serves the status page from dir, or from the embedded copy when
// dir is empty or not a directory. Paths that do not name a file get
// index.html.
func Handler(dir string) http.Handler {
	assets := assetFS(dir)
	files := http.FileServer(assets)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		if name := path.Clean("/" + r.URL.Path); name != "/" && !exists(assets, name) {
			r.URL.Path = "/"
		}
		files.ServeHTTP(w, r)
	})
}

func assetFS(dir string) http.FileSystem {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return http.Dir(dir)
		}
	}
	web, err := fs.Sub(content, "web")
	if err != nil {
		// Only reachable if the embed directive above changes.
		panic("panel: embedded assets missing: " + err.Error())
	}
	return http.FS(web)
}

func exists(assets http.FileSystem, name string) bool {
	f, err := assets.Open(name)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
