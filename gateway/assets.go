package gateway

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/c360/frontgate/errors"
)

// AssetServer serves the compiled frontend bundle from the manifest's
// frontend directory. Requests never escape the root: paths are normalized
// first and anything still containing a parent segment is rejected.
type AssetServer struct {
	root string
}

// NewAssetServer creates an asset server rooted at dir.
func NewAssetServer(dir string) (*AssetServer, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "AssetServer", "NewAssetServer",
			fmt.Sprintf("resolve frontend dir %s: %v", dir, err))
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "AssetServer", "NewAssetServer",
			fmt.Sprintf("frontend dir %s is not a directory", abs))
	}
	return &AssetServer{root: abs}, nil
}

// Resolve maps a request path to an absolute file path under the root.
// Returns ErrNotFound for traversal attempts and missing files.
func (a *AssetServer) Resolve(requestPath string) (string, error) {
	cleaned := path.Clean("/" + requestPath)
	if strings.Contains(cleaned, "..") {
		return "", errors.WrapInvalid(errors.ErrNotFound, "AssetServer", "Resolve",
			fmt.Sprintf("path %s", requestPath))
	}
	if cleaned == "/" {
		cleaned = "/index.html"
	}

	full := filepath.Join(a.root, filepath.FromSlash(cleaned))
	// Join cleans again; a crafted path must still land inside the root.
	if full != a.root && !strings.HasPrefix(full, a.root+string(filepath.Separator)) {
		return "", errors.WrapInvalid(errors.ErrNotFound, "AssetServer", "Resolve",
			fmt.Sprintf("path %s escapes asset root", requestPath))
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return "", errors.WrapInvalid(errors.ErrNotFound, "AssetServer", "Resolve",
			fmt.Sprintf("asset %s", cleaned))
	}
	return full, nil
}

// ServeHTTP serves the requested asset. Extension-less GET and HEAD paths
// that match no file fall back to index.html so client-side routes resolve;
// API paths and paths with an extension 404 when the file is missing.
func (a *AssetServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	full, err := a.Resolve(r.URL.Path)
	if err != nil {
		if a.spaFallback(r) {
			if index, ierr := a.Resolve("/index.html"); ierr == nil {
				a.serveFile(w, index)
				return
			}
		}
		http.NotFound(w, r)
		return
	}
	a.serveFile(w, full)
}

// spaFallback reports whether a missing asset may be answered with the
// index page. Only idempotent reads of extension-less, non-API paths
// qualify.
func (a *AssetServer) spaFallback(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	return path.Ext(r.URL.Path) == ""
}

func (a *AssetServer) serveFile(w http.ResponseWriter, full string) {
	data, err := os.ReadFile(full)
	if err != nil {
		http.Error(w, "asset unreadable", http.StatusInternalServerError)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(full))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}

// Root returns the absolute asset root directory.
func (a *AssetServer) Root() string {
	return a.root
}
