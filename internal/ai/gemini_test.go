package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func geminiTestProvider(url string) *GeminiProvider {
	return &GeminiProvider{
		BaseURL:     url,
		APIKey:      "test-key",
		Model:       "gemini-2.0-flash",
		Temperature: 0.7,
		MaxTokens:   512,
		Client:      http.DefaultClient,
	}
}

func TestGeminiRespond_ParsesReplyAndUsage(t *testing.T) {
	var captured geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "models/gemini-2.0-flash:generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("api key not passed: %s", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": "the answer"}},
					"role":  "model",
				},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{
				"promptTokenCount":     33,
				"candidatesTokenCount": 12,
				"totalTokenCount":      45,
			},
		})
	}))
	defer srv.Close()

	p := geminiTestProvider(srv.URL)
	reply, err := p.Respond(context.Background(), []Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "question"},
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply.Text != "the answer" {
		t.Fatalf("unexpected text: %q", reply.Text)
	}
	if reply.PromptTokens != 33 || reply.CompletionTokens != 12 {
		t.Fatalf("unexpected usage: %+v", reply)
	}

	if len(captured.Contents) != 3 {
		t.Fatalf("sent %d contents, want 3", len(captured.Contents))
	}
	// assistant turns go out under the "model" role
	if captured.Contents[1].Role != "model" {
		t.Fatalf("assistant role mapped to %q, want model", captured.Contents[1].Role)
	}
	if captured.GenerationConfig.MaxOutputTokens != 512 {
		t.Fatalf("generation config not forwarded: %+v", captured.GenerationConfig)
	}
}

func TestGeminiRespond_RetriesOn503(t *testing.T) {
	if testing.Short() {
		t.Skip("backoff sleeps in this test")
	}
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "model overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{"text": "ok"}}},
			}},
		})
	}))
	defer srv.Close()

	p := geminiTestProvider(srv.URL)
	reply, err := p.Respond(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply.Text != "ok" {
		t.Fatalf("unexpected text: %q", reply.Text)
	}
	if calls != 2 {
		t.Fatalf("made %d calls, want 2", calls)
	}
}

func TestGeminiRespond_DoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":{"message":"invalid request"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := geminiTestProvider(srv.URL)
	_, err := p.Respond(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("made %d calls, want 1 (400 is not retriable)", calls)
	}
}

func TestGeminiRespond_RequiresAPIKey(t *testing.T) {
	p := geminiTestProvider("http://unused")
	p.APIKey = ""
	if _, err := p.Respond(context.Background(), []Message{{Role: "user", Content: "hi"}}); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func TestGeminiRespond_EmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	p := geminiTestProvider(srv.URL)
	if _, err := p.Respond(context.Background(), []Message{{Role: "user", Content: "hi"}}); err == nil {
		t.Fatalf("expected error for empty candidates")
	}
}
