package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ScriptForge/internal/llm"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestGeneratePrefersRequestModel(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header: %s", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "VALID"}},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{APIKey: "sk-test", BaseURL: server.URL, Model: "fallback-model"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	resp, err := client.Generate(context.Background(), llm.Request{Model: "work", Prompt: "check"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "VALID" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if captured["model"] != "work" {
		t.Fatalf("request model not honored: %+v", captured)
	}
	if captured["temperature"] != 0.6 || captured["max_tokens"] != float64(512) {
		t.Fatalf("unexpected sampling parameters: %+v", captured)
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	client, _ := NewClient(Config{APIKey: "sk-test", BaseURL: server.URL})
	if _, err := client.Generate(context.Background(), llm.Request{Prompt: "x"}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}
