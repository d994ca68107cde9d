package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

var errOutsideRoot = errors.New("path escapes output root")

// resolveInRoot maps a client-supplied path onto the output root. The path may
// be relative to the root, or carry the root itself as a prefix the way
// start-scan reports basePath. The result always lies inside root.
func resolveInRoot(root, req string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	p := filepath.Clean(filepath.FromSlash(req))
	sep := string(filepath.Separator)
	switch {
	case filepath.IsAbs(p):
		if p != absRoot && !strings.HasPrefix(p, absRoot+sep) {
			p = strings.TrimLeft(p, sep)
		} else {
			p, _ = filepath.Rel(absRoot, p)
		}
	default:
		if rel := filepath.Clean(root); p == rel || strings.HasPrefix(p, rel+sep) {
			p = strings.TrimPrefix(strings.TrimPrefix(p, rel), sep)
		}
	}
	full := filepath.Join(absRoot, p)
	rel, err := filepath.Rel(absRoot, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+sep) {
		return "", errOutsideRoot
	}
	return full, nil
}

type listResp struct {
	Path    string   `json:"path"`
	Folders []string `json:"folders"`
	Files   []string `json:"files"`
}

type fileResp struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (r *Router) resolve(c *gin.Context, missing string) (string, string, bool) {
	req := c.Query("path")
	if req == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: missing})
		return "", "", false
	}
	full, err := resolveInRoot(r.sup.Config().OutputRoot, req)
	if err != nil {
		writeJSON(c, http.StatusForbidden, errorResp{Error: "Access Denied"})
		return "", "", false
	}
	return req, full, true
}

func (r *Router) handleListDirectory(c *gin.Context) {
	req, dir, ok := r.resolve(c, "Path parameter is required")
	if !ok {
		return
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "Path not found"})
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	resp := listResp{Path: req, Folders: []string{}, Files: []string{}}
	for _, e := range entries {
		fi, err := os.Stat(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		switch {
		case fi.IsDir():
			resp.Folders = append(resp.Folders, e.Name())
		case fi.Mode().IsRegular():
			resp.Files = append(resp.Files, e.Name())
		}
	}
	sort.Strings(resp.Folders)
	sort.Strings(resp.Files)
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleGetFile(c *gin.Context) {
	req, path, ok := r.resolve(c, "File path is required")
	if !ok {
		return
	}
	if fi, err := os.Stat(path); err != nil || !fi.Mode().IsRegular() {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "File not found"})
		return
	}
	// #nosec G304 -- path is confined to the output root by resolveInRoot
	data, err := os.ReadFile(path)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, fileResp{Path: req, Content: strings.ToValidUTF8(string(data), "")})
}

func (r *Router) handleGetImage(c *gin.Context) {
	_, path, ok := r.resolve(c, "File path is required")
	if !ok {
		return
	}
	if fi, err := os.Stat(path); err != nil || !fi.Mode().IsRegular() {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "File not found"})
		return
	}
	c.File(path)
}
