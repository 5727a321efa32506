package api

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

//go:embed assets
var assetFiles embed.FS

// embeddedFiles exposes regular files of an fs.FS to static.Serve.
// Directories never match so listings are not served.
type embeddedFiles struct {
	http.FileSystem
	files fs.FS
}

var _ static.ServeFileSystem = embeddedFiles{}

func newEmbeddedFiles(fsys fs.FS, dir string) embeddedFiles {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return embeddedFiles{FileSystem: http.FS(sub), files: sub}
}

func (e embeddedFiles) Exists(prefix, path string) bool {
	p, ok := strings.CutPrefix(path, prefix)
	if !ok {
		return false
	}
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return false
	}
	info, err := fs.Stat(e.files, p)
	return err == nil && !info.IsDir()
}

// ServeAssets serves the embedded static files (favicon.ico) under urlPrefix
// for GET and HEAD and passes every other request on.
func ServeAssets(urlPrefix string) gin.HandlerFunc {
	files := newEmbeddedFiles(assetFiles, "assets")
	serve := static.Serve(urlPrefix, files)
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Next()
			return
		}
		if !files.Exists(urlPrefix, c.Request.URL.Path) {
			c.Next()
			return
		}
		c.Header("Cache-Control", "public, max-age=86400")
		serve(c)
	}
}
