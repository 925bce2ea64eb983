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

	"github.com/tw20th/kangaroo-post-sub000/internal/config"
	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
)

func completionHandler(t *testing.T, content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		if len(req.Messages) == 2 && !strings.Contains(req.Messages[1].Content, "stroller rental") {
			t.Errorf("prompt does not mention the keyword: %q", req.Messages[1].Content)
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func newTestClient(url string) *ChatGPTClient {
	c := NewChatGPTClient(config.ChatGPTConfig{
		Endpoint: url,
		Model:    "test-model",
		APIKey:   "key",
	})
	c.now = func() time.Time { return time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC) }
	return c
}

var choice = domain.TopicChoice{ID: "t1", Keyword: "stroller rental", Intent: domain.IntentService}

func TestGenerate(t *testing.T) {
	t.Parallel()

	html := "```html\n<h1>Stroller rental made easy</h1><h2>Prices</h2><p>Rent by the week.</p><h2>Delivery</h2><p>Free in town.</p>\n```"
	server := httptest.NewServer(completionHandler(t, html))
	defer server.Close()

	draft, err := newTestClient(server.URL).Generate(context.Background(), "s1", choice)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	if draft.Title != "Stroller rental made easy" {
		t.Fatalf("unexpected title: %q", draft.Title)
	}
	if len(draft.Headings) != 2 || draft.Headings[0] != "Prices" || draft.Headings[1] != "Delivery" {
		t.Fatalf("unexpected headings: %v", draft.Headings)
	}
	if draft.WordCount != 13 {
		t.Fatalf("unexpected word count: %d", draft.WordCount)
	}
	if draft.ID == "" || draft.TopicID != "t1" || draft.SiteID != "s1" || draft.Intent != domain.IntentService {
		t.Fatalf("unexpected draft metadata: %+v", draft)
	}
	if strings.Contains(draft.HTML, "```") {
		t.Fatalf("code fence not stripped: %q", draft.HTML)
	}
}

func TestGenerateEmptyDraft(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(completionHandler(t, "   "))
	defer server.Close()

	_, err := newTestClient(server.URL).Generate(context.Background(), "s1", choice)
	if !errors.Is(err, ErrEmptyDraft) {
		t.Fatalf("expected ErrEmptyDraft, got %v", err)
	}
}

func TestGenerateErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Generate(context.Background(), "s1", choice)
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestGenerateMisconfigured(t *testing.T) {
	t.Parallel()

	c := NewChatGPTClient(config.ChatGPTConfig{Endpoint: "http://localhost"})
	if _, err := c.Generate(context.Background(), "s1", choice); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestParseDraftFallsBackToKeywordTitle(t *testing.T) {
	t.Parallel()

	draft, err := parseDraft("<p>Only a paragraph here.</p>", "crib rental")
	if err != nil {
		t.Fatalf("parseDraft: %v", err)
	}
	if draft.Title != "crib rental" {
		t.Fatalf("expected keyword title, got %q", draft.Title)
	}
	if draft.WordCount != 4 {
		t.Fatalf("unexpected word count %d", draft.WordCount)
	}
}
