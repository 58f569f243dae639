package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wolfman30/club-portal-assistant/pkg/logging"
)

func TestSetupMetricsExposesAssistantMetrics(t *testing.T) {
	handler, m := setupMetrics()
	if handler == nil || m == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	m.ObserveTurn("rules", "greeting")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "clubportal_assistant_turns_total") {
		t.Fatalf("expected turn counter to be exported")
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("expected runtime collectors to be exported")
	}
}

func TestLoadWidgetJS(t *testing.T) {
	logger := logging.New("error")
	if got := loadWidgetJS("", logger); got != nil {
		t.Fatalf("expected nil bundle for empty path")
	}
	if got := loadWidgetJS(filepath.Join(t.TempDir(), "missing.js"), logger); got != nil {
		t.Fatalf("expected nil bundle for missing file")
	}

	path := filepath.Join(t.TempDir(), "widget.js")
	if err := os.WriteFile(path, []byte("console.log('chat')"), 0o600); err != nil {
		t.Fatalf("write widget: %v", err)
	}
	if got := string(loadWidgetJS(path, logger)); got != "console.log('chat')" {
		t.Fatalf("unexpected bundle %q", got)
	}
}
