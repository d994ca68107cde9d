package server

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestResolveInRoot(t *testing.T) {
	root := t.TempDir()
	inside := map[string]string{
		"example.com":                               filepath.Join(root, "example.com"),
		"example.com/sub/file.txt":                  filepath.Join(root, "example.com", "sub", "file.txt"),
		filepath.Join(root, "example.com"):          filepath.Join(root, "example.com"),
		"/etc/passwd":                               filepath.Join(root, "etc", "passwd"),
		"a/../b":                                    filepath.Join(root, "b"),
		filepath.Join(root, "example.com", "x.png"): filepath.Join(root, "example.com", "x.png"),
	}
	for in, want := range inside {
		got, err := resolveInRoot(root, in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"..", "../x", "a/../../x", "../../etc/passwd"} {
		_, err := resolveInRoot(root, bad)
		assert.ErrorIs(t, err, errOutsideRoot, bad)
	}
}

func TestResolveInRoot_RelativeRootPrefix(t *testing.T) {
	t.Chdir(t.TempDir())
	abs, err := filepath.Abs("Recon")
	require.NoError(t, err)

	got, err := resolveInRoot("Recon", "Recon/example.com")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(abs, "example.com"), got)

	got, err = resolveInRoot("Recon", "example.com")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(abs, "example.com"), got)
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeJSON(c, 201, map[string]any{"a": 1}) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	if rec.Code != 201 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type: %s", ct)
	}
}

func TestStartEventStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/s", func(c *gin.Context) { startEventStream(c) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/s", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)
}
