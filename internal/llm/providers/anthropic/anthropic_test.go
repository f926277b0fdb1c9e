package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Corphon/LifeBranches/internal/llm"
)

func TestInitializeRequiresKey(t *testing.T) {
	if _, err := llm.GetProvider(Name, map[string]string{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestCompleteText(t *testing.T) {
	var got struct {
		Model    string        `json:"model"`
		System   string        `json:"system"`
		Messages []llm.Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" || r.Header.Get("X-Api-Key") != "k" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"stop_reason":"end_turn","content":[{"type":"text","text":"Ada lost her job."}],"usage":{"input_tokens":12,"output_tokens":5}}`))
	}))
	defer srv.Close()

	p, err := llm.GetProvider(Name, map[string]string{"api_key": "k", "base_url": srv.URL, "default_model": "m1"})
	if err != nil {
		t.Fatalf("GetProvider: %v", err)
	}

	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{
		SystemPrompt: "narrate",
		Messages:     []llm.Message{{Role: "user", Content: "earlier"}, {Role: "assistant", Content: "ok"}},
		Prompt:       "layoff",
	})
	if err != nil {
		t.Fatalf("CompleteText: %v", err)
	}
	if resp.Text != "Ada lost her job." || resp.TokensUsed != 17 || resp.ModelName != "m1" {
		t.Errorf("resp = %+v", resp)
	}
	if got.Model != "m1" || got.System != "narrate" || len(got.Messages) != 3 || got.Messages[2].Content != "layoff" {
		t.Errorf("request = %+v", got)
	}
}

func TestCompleteTextAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := llm.GetProvider(Name, map[string]string{"api_key": "k", "base_url": srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "x"}); err == nil {
		t.Fatal("expected error on 503")
	}
}
