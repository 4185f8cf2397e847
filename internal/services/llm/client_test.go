package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lectern/internal/config"
	"lectern/internal/services"
)

func testClient(t *testing.T, serverURL string, opts ...Option) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.LLM.APIKey = "test"
	cfg.LLM.BaseURL = serverURL
	cfg.LLM.Model = "demo-model"
	return NewClient(&cfg, opts...)
}

func completionBody(content string) map[string]any {
	return map[string]any{
		"id":    "cmpl-1",
		"model": "demo-model",
		"choices": []any{
			map[string]any{
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     12,
			"completion_tokens": 4,
		},
	}
}

func TestCompleteJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test" {
			t.Fatalf("unexpected auth header %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(completionBody(`{"ok":true}`)); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := testClient(t, server.URL, WithRetryAttempts(1))
	completion, err := client.CompleteJSON(context.Background(), Request{
		System: "You emit JSON.",
		User:   "Respond with {\"ok\":true}",
	})
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if completion.Content != `{"ok":true}` {
		t.Fatalf("content = %q", completion.Content)
	}
	if completion.PromptTokens != 12 || completion.CompletionTokens != 4 {
		t.Fatalf("usage = %d/%d", completion.PromptTokens, completion.CompletionTokens)
	}
	if completion.Duration <= 0 {
		t.Fatal("duration should be positive")
	}
}

func TestCompleteJSONRetriesServerErrors(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		if requests == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "overloaded"}})
			return
		}
		_ = json.NewEncoder(w).Encode(completionBody(`{"ok":true}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, WithRetryAttempts(2))
	if _, err := client.CompleteJSON(context.Background(), Request{System: "s", User: "u"}); err != nil {
		t.Fatalf("CompleteJSON after retry: %v", err)
	}
	if requests != 2 {
		t.Fatalf("requests = %d, want 2", requests)
	}
}

func TestCompleteJSONDoesNotRetryClientErrors(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad prompt"}})
	}))
	defer server.Close()

	client := testClient(t, server.URL, WithRetryAttempts(3))
	if _, err := client.CompleteJSON(context.Background(), Request{System: "s", User: "u"}); err == nil {
		t.Fatal("expected error for http 400")
	}
	if requests != 1 {
		t.Fatalf("requests = %d, want 1 (no retry on 400)", requests)
	}
}

func TestCompleteJSONValidatesInput(t *testing.T) {
	client := testClient(t, "http://127.0.0.1:0")
	if _, err := client.CompleteJSON(context.Background(), Request{User: "u"}); err == nil {
		t.Fatal("missing system prompt should error")
	}
	if _, err := client.CompleteJSON(context.Background(), Request{System: "s"}); err == nil {
		t.Fatal("missing user prompt should error")
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []any{map[string]any{"id": "demo-model", "object": "model"}},
		})
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestHealthCheckFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "bad key"}})
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check failure")
	}
}

func TestHealthCheckClassifiesTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := testClient(t, server.URL, WithRetryAttempts(1))
	err := client.HealthCheck(ctx)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout classification, got %v", err)
	}
}

func TestDecodeJSON(t *testing.T) {
	type reply struct {
		OK bool `json:"ok"`
	}

	cases := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"direct", `{"ok":true}`, false},
		{"fenced", "```json\n{\"ok\":true}\n```", false},
		{"fence without language", "```\n{\"ok\":true}\n```", false},
		{"prose wrapped", "Here you go: {\"ok\":true} hope that helps", false},
		{"empty", "   ", true},
		{"not json", "certainly!", true},
	}
	for _, tc := range cases {
		var out reply
		err := DecodeJSON(tc.content, &out)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if !out.OK {
			t.Errorf("%s: decoded ok=false", tc.name)
		}
	}
}

func TestDecodeJSONArray(t *testing.T) {
	var out []int
	if err := DecodeJSON("The list is [1,2,3] as requested.", &out); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if len(out) != 3 || out[2] != 3 {
		t.Fatalf("decoded %v", out)
	}
}
