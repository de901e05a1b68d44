package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/menta2k/ocr-overlay/pkg/types"
)

// pngHeader is enough for content sniffing to report image/png
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/api", 5*time.Second)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient("", 0)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.baseURL != DefaultBaseURL {
		t.Errorf("Expected base URL %s, got %s", DefaultBaseURL, c.baseURL)
	}

	if _, err := NewClient("not a url", 0); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestExtract(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/upload-ocr" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Missing form file: %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "scan.png" {
			t.Errorf("Expected filename scan.png, got %s", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("Expected part content type image/png, got %s", ct)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"abc123","filename":"scan.png","extracted_text":"Hello world","confidence":87.6,"timestamp":"2024-05-01T10:20:30.123456"}`)
	})

	res, err := c.Extract(context.Background(), "scan.png", pngHeader)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	want := types.ExtractionResult{
		ArtifactID:        "abc123",
		Filename:          "scan.png",
		ExtractedText:     "Hello world",
		ConfidencePercent: 87.6,
		Timestamp:         time.Date(2024, 5, 1, 10, 20, 30, 123456000, time.UTC),
	}
	if diff := cmp.Diff(want, *res); diff != "" {
		t.Errorf("Result mismatch (-want +got):\n%s", diff)
	}
	if res.RoundedConfidence() != 88 {
		t.Errorf("Expected rounded confidence 88, got %d", res.RoundedConfidence())
	}
}

func TestExtractNullConfidence(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"x","filename":"a.png","extracted_text":"","confidence":null}`)
	})

	res, err := c.Extract(context.Background(), "a.png", pngHeader)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if res.ConfidencePercent != 0 {
		t.Errorf("Expected confidence 0, got %f", res.ConfidencePercent)
	}
}

func TestExtractServerError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"detail":"Only image files are supported"}`)
	})

	_, err := c.Extract(context.Background(), "a.png", pngHeader)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusBadRequest || se.Detail != "Only image files are supported" {
		t.Errorf("Unexpected status error %+v", se)
	}
	if !errors.Is(err, types.ErrNetwork) {
		t.Error("Expected StatusError to match ErrNetwork")
	}
}

func TestMalformedReplies(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `<html>proxy error</html>`)
	})

	if _, err := c.Extract(context.Background(), "a.png", pngHeader); !errors.Is(err, types.ErrNetwork) {
		t.Errorf("Extract: expected ErrNetwork, got %v", err)
	}
	if _, err := c.ListResults(context.Background()); !errors.Is(err, types.ErrNetwork) {
		t.Errorf("ListResults: expected ErrNetwork, got %v", err)
	}
}

func TestExtractUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := NewClient(url, time.Second)
	if _, err := c.Extract(context.Background(), "a.png", pngHeader); !errors.Is(err, types.ErrNetwork) {
		t.Errorf("Expected ErrNetwork, got %v", err)
	}
}

func TestRender(t *testing.T) {
	var got types.RenderRequest
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/edit-image" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected JSON body, got %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Bad body: %v", err)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition", "attachment; filename=edited_scan.png")
		w.Write(pngHeader)
	})

	req := types.RenderRequest{
		FileID: "abc123",
		Edits: []types.TextEdit{
			{Text: "one", X: 1, Y: 2, FontSize: 24, FontColor: "#000000"},
			{Text: "two", X: 3, Y: 4, FontSize: 30, FontColor: "#ff0000"},
		},
	}
	img, err := c.Render(context.Background(), req)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	defer img.Body.Close()

	if diff := cmp.Diff(req, got); diff != "" {
		t.Errorf("Request mismatch (-sent +received):\n%s", diff)
	}
	if img.Filename != "edited_scan.png" {
		t.Errorf("Expected edited_scan.png, got %q", img.Filename)
	}
	data, _ := io.ReadAll(img.Body)
	if string(data) != string(pngHeader) {
		t.Error("Payload mismatch")
	}
}

func TestRenderWireFormat(t *testing.T) {
	var raw map[string]any
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	})

	img, err := c.Render(context.Background(), types.RenderRequest{
		FileID: "f",
		Edits:  []types.TextEdit{{Text: "t", X: 5, Y: 6, FontSize: 12, FontColor: "#abcdef"}},
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	img.Body.Close()

	want := map[string]any{
		"file_id": "f",
		"edits": []any{map[string]any{
			"text": "t", "x": 5.0, "y": 6.0, "font_size": 12.0, "font_color": "#abcdef",
		}},
	}
	if diff := cmp.Diff(want, raw); diff != "" {
		t.Errorf("Wire format mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"detail":"Failed to edit image"}`)
		}},
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"detail":"Image not found"}`)
		}},
		{"json instead of image", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{}`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, tt.handler)
			_, err := c.Render(context.Background(), types.RenderRequest{FileID: "x"})
			if !errors.Is(err, types.ErrNetwork) {
				t.Errorf("Expected ErrNetwork, got %v", err)
			}
		})
	}
}

func TestFetchImage(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/image/abc123" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	})

	data, err := c.FetchImage(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("FetchImage failed: %v", err)
	}
	if string(data) != string(pngHeader) {
		t.Error("Payload mismatch")
	}
}

func TestListResults(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ocr-results" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		io.WriteString(w, `[{"id":"a","filename":"a.png","extracted_text":"x","confidence":50},{"id":"b","filename":"b.png","extracted_text":"y","confidence":null}]`)
	})

	results, err := c.ListResults(context.Background())
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(results) != 2 || results[0].ArtifactID != "a" || results[1].ArtifactID != "b" {
		t.Errorf("Unexpected results %+v", results)
	}
	if results[0].ConfidencePercent != 50 || results[1].ConfidencePercent != 0 {
		t.Errorf("Unexpected confidences %+v", results)
	}
}

func TestParseTimestamp(t *testing.T) {
	if ts := parseTimestamp("2024-05-01T10:20:30Z"); ts.IsZero() {
		t.Error("Expected RFC 3339 timestamp to parse")
	}
	if ts := parseTimestamp("garbage"); !ts.IsZero() {
		t.Error("Expected zero time for garbage")
	}
}
