package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/ocr-overlay/pkg/types"
)

func TestNewClient(t *testing.T) {
	if _, err := NewClient("http://localhost:11434/api/chat", "llava"); err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := NewClient("localhost", "llava"); err == nil {
		t.Error("Expected error for URL without scheme")
	}
	if _, err := NewClient("http://localhost:11434", ""); err == nil {
		t.Error("Expected error for missing model")
	}
}

func TestRecognize(t *testing.T) {
	var got api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"llava","message":{"role":"assistant","content":"`+
			"```json\\n{\\\"text\\\": \\\"Invoice 42\\\", \\\"confidence\\\": 0.9,}\\n```"+
			`"},"done":true}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "llava")
	if err != nil {
		t.Fatal(err)
	}

	rec, err := c.Recognize(context.Background(), []byte("image-bytes"))
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if rec.Text != "Invoice 42" {
		t.Errorf("Expected text %q, got %q", "Invoice 42", rec.Text)
	}
	if rec.Confidence != 90 {
		t.Errorf("Expected confidence 90, got %f", rec.Confidence)
	}

	if got.Model != "llava" {
		t.Errorf("Expected model llava, got %s", got.Model)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Images) != 1 {
		t.Fatalf("Expected one message with one image, got %+v", got.Messages)
	}
	if string(got.Messages[0].Images[0]) != "image-bytes" {
		t.Error("Image bytes were not forwarded")
	}
}

func TestRecognizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"model not found"}`)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "missing")
	if _, err := c.Recognize(context.Background(), []byte("x")); !errors.Is(err, types.ErrNetwork) {
		t.Errorf("Expected ErrNetwork, got %v", err)
	}
}

func TestParseRecognition(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want types.Recognition
	}{
		{"plain json", `{"text":"Hello","confidence":87}`, types.Recognition{Text: "Hello", Confidence: 87}},
		{"fenced", "```json\n{\"text\":\"Hi\",\"confidence\":55.5}\n```", types.Recognition{Text: "Hi", Confidence: 55.5}},
		{"fraction", `{"text":"a","confidence":0.5}`, types.Recognition{Text: "a", Confidence: 50}},
		{"string confidence", `{"text":"a","confidence":"75%"}`, types.Recognition{Text: "a", Confidence: 75}},
		{"over range", `{"text":"a","confidence":140}`, types.Recognition{Text: "a", Confidence: 100}},
		{"missing confidence", `{"text":"a"}`, types.Recognition{Text: "a"}},
		{"comment and trailing comma", "{\n// model note\n\"text\": \"b\",\n\"confidence\": 60,\n}", types.Recognition{Text: "b", Confidence: 60}},
		{"url in text", `{"text":"see https://example.com","confidence":80}`, types.Recognition{Text: "see https://example.com", Confidence: 80}},
		{"not json", "Just the words on the sign", types.Recognition{Text: "Just the words on the sign"}},
		{"broken json", `{"text": "unterminated`, types.Recognition{Text: `{"text": "unterminated`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseRecognition(tt.raw)
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
