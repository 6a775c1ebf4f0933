package panel

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandler_Embedded(t *testing.T) {
	handler := Handler("")

	tests := []struct {
		path string
		want string
	}{
		{"/", "<!DOCTYPE html>"},
		{"/panel.js", "/api/v1/devices"},
		{"/panel.css", ".card"},
		{"/devices/lapin", "<!DOCTYPE html>"},
		{"/nonexistent", "<!DOCTYPE html>"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(t, handler, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("GET %s: got status %d, want 200", tt.path, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("GET %s: body does not contain %q", tt.path, tt.want)
			}
			if got := w.Header().Get("Cache-Control"); got != "no-cache, must-revalidate" {
				t.Errorf("GET %s: Cache-Control = %q", tt.path, got)
			}
		})
	}
}

func TestHandler_FilesystemMode(t *testing.T) {
	dir := t.TempDir()
	index := `<!DOCTYPE html><html><body>filesystem panel</body></html>`
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(index), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "test.js"), []byte("console.log('test')"), 0o644); err != nil {
		t.Fatal(err)
	}

	handler := Handler(dir)

	if w := get(t, handler, "/"); !strings.Contains(w.Body.String(), "filesystem panel") {
		t.Errorf("GET /: expected filesystem content, got %q", w.Body.String())
	}
	if w := get(t, handler, "/test.js"); w.Code != http.StatusOK {
		t.Errorf("GET /test.js: got status %d, want 200", w.Code)
	}
	if w := get(t, handler, "/deep/route"); !strings.Contains(w.Body.String(), "filesystem panel") {
		t.Error("fallback did not serve filesystem index.html")
	}
}

func TestHandler_InvalidDirFallsBackToEmbed(t *testing.T) {
	handler := Handler("/nonexistent/dir/that/does/not/exist")

	w := get(t, handler, "/")
	if w.Code != http.StatusOK {
		t.Errorf("GET /: got status %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Karotz Bridge") {
		t.Error("invalid dir did not fall back to embedded index.html")
	}
}
