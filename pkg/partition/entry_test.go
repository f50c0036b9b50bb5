package partition

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestResponseToEntry(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       io.NopCloser(strings.NewReader("<html>")),
	}

	entry, err := ResponseToEntry(resp)
	if err != nil {
		t.Fatalf("ResponseToEntry failed: %v", err)
	}

	if string(entry.Body) != "<html>" {
		t.Errorf("Body = %q, want %q", entry.Body, "<html>")
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", entry.StatusCode)
	}
	if entry.StoredAt.IsZero() {
		t.Error("StoredAt not set")
	}

	// Caller must still be able to read the body.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("re-read body: %v", err)
	}
	if string(body) != "<html>" {
		t.Errorf("restored body = %q, want %q", body, "<html>")
	}
}

func TestResponseToEntryNil(t *testing.T) {
	if _, err := ResponseToEntry(nil); err == nil {
		t.Error("expected error for nil response")
	}
}

func TestEntryResponse(t *testing.T) {
	entry := testEntry("payload")
	req := httptest.NewRequest(http.MethodGet, "https://app.example/x", nil)

	// Each materialized response must have an independent body.
	for i := 0; i < 2; i++ {
		resp := entry.Response(req)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if string(body) != "payload" {
			t.Errorf("body = %q, want %q", body, "payload")
		}
		if resp.ContentLength != int64(len("payload")) {
			t.Errorf("ContentLength = %d", resp.ContentLength)
		}
		if resp.Request != req {
			t.Error("response not linked to request")
		}
	}
}
