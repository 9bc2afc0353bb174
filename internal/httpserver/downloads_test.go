package httpserver

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"templatestore/internal/domain"
	"templatestore/internal/service/download"
)

func TestDownload_StreamsFile(t *testing.T) {
	env := newTestEnv()
	env.downloads.dl = &download.Download{
		File: domain.ProductFile{ID: "f1", FileName: "pitch deck.key", ContentType: "application/x-iwork-keynote-sffkey", SizeBytes: 5},
		Body: io.NopCloser(strings.NewReader("hello")),
	}

	rec := serve(env.router(t), http.MethodGet, "/downloads?token=abc", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="pitch deck.key"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "5" {
		t.Fatalf("unexpected length %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/x-iwork-keynote-sffkey" {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestDownload_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		code   int
		body   string
	}{
		{"missing token", "/downloads", nil, http.StatusBadRequest, "missing download token"},
		{"unknown token", "/downloads?token=x", domain.ErrNotFound, http.StatusNotFound, "not found"},
		{"expired", "/downloads?token=x", domain.ErrExpired, http.StatusNotFound, "download link expired"},
		{"limit", "/downloads?token=x", domain.ErrLimitExceeded, http.StatusForbidden, "download limit exceeded"},
		{"missing file", "/downloads?token=x", domain.ErrFileMissing, http.StatusNotFound, "file not available"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.downloads.err = tt.err

			rec := serve(env.router(t), http.MethodGet, tt.target, "")
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Fatalf("unexpected body %q", rec.Body.String())
			}
		})
	}
}
