package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tw20th/kangaroo-post-sub000/internal/config"
	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
	"github.com/tw20th/kangaroo-post-sub000/internal/ports"
)

// ErrEmptyDraft is returned when the model answers without usable article text.
var ErrEmptyDraft = errors.New("generated draft is empty")

// ChatGPTClient implements ports.ContentGenerator backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
	limiter      *rate.Limiter
	now          func() time.Time
}

var _ ports.ContentGenerator = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig) *ChatGPTClient {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
}

// Generate asks the model for an HTML article about the picked topic.
func (c *ChatGPTClient) Generate(ctx context.Context, siteID string, choice domain.TopicChoice) (domain.ContentDraft, error) {
	if c == nil {
		return domain.ContentDraft{}, fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return domain.ContentDraft{}, fmt.Errorf("chatgpt client misconfigured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return domain.ContentDraft{}, fmt.Errorf("wait for rate limit: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": safePrompt(c.systemPrompt)},
			{"role": "user", "content": userPrompt(choice)},
		},
	})
	if err != nil {
		return domain.ContentDraft{}, fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ContentDraft{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ContentDraft{}, fmt.Errorf("generate draft: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.ContentDraft{}, fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return domain.ContentDraft{}, fmt.Errorf("decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return domain.ContentDraft{}, ErrEmptyDraft
	}

	draft, err := parseDraft(completion.Choices[0].Message.Content, choice.Keyword)
	if err != nil {
		return domain.ContentDraft{}, err
	}

	draft.ID = uuid.NewString()
	draft.SiteID = siteID
	draft.TopicID = choice.ID
	draft.Intent = choice.Intent
	draft.Keyword = choice.Keyword
	draft.CreatedAt = c.now().UTC()
	return draft, nil
}

// parseDraft extracts title, section headings and word count from the model's HTML.
func parseDraft(content, fallbackTitle string) (domain.ContentDraft, error) {
	html := stripFence(content)
	if html == "" {
		return domain.ContentDraft{}, ErrEmptyDraft
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.ContentDraft{}, fmt.Errorf("parse draft: %w", err)
	}

	words := countWords(doc.Find("body"))
	if words == 0 {
		return domain.ContentDraft{}, ErrEmptyDraft
	}

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		title = fallbackTitle
	}

	var headings []string
	doc.Find("h2").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			headings = append(headings, text)
		}
	})

	return domain.ContentDraft{
		Title:     title,
		Headings:  headings,
		HTML:      html,
		WordCount: words,
	}, nil
}

// countWords walks text nodes; Selection.Text joins siblings without separators.
func countWords(sel *goquery.Selection) int {
	n := 0
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			n += len(strings.Fields(s.Text()))
			return
		}
		n += countWords(s)
	})
	return n
}

// stripFence removes a surrounding markdown code fence.
func stripFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		content = content[nl+1:]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

func userPrompt(choice domain.TopicChoice) string {
	var kind string
	switch choice.Intent {
	case domain.IntentService:
		kind = "a service introduction page"
	case domain.IntentCompare:
		kind = "a comparison page of the main offers"
	case domain.IntentGuide:
		kind = "a practical guide that addresses the reader's pain point"
	case domain.IntentDiscover:
		kind = "a discovery column that widens the reader's options"
	default:
		kind = "an article"
	}
	return fmt.Sprintf("Write %s about %q. Answer with HTML only: one <h1> title, <h2> section headings and <p> paragraphs.", kind, choice.Keyword)
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are an editor writing helpful, accurate articles for a comparison blog."
	}
	return prompt
}
