package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Environment variables consumed by the LLM extraction strategy. The core
// engine never reads these; only this pluggable collaborator does.
const (
	llmAPIKeyEnv  = "CRAWLAI_LLM_API_KEY"
	llmBaseURLEnv = "CRAWLAI_LLM_BASE_URL"
	llmModelEnv   = "CRAWLAI_LLM_MODEL"

	defaultLLMBaseURL = "https://api.groq.com/openai/v1"
	defaultLLMModel   = "qwen-2.5-32b"
)

const llmSystemPrompt = "You are a precise technical documentation extractor. " +
	"Return only the main textual content of the page, with navigation, " +
	"advertising, and boilerplate removed. Preserve paragraph breaks."

// LLMExtractor delegates main-content isolation to an OpenAI-compatible chat
// completion API.
type LLMExtractor struct {
	apiKey        string
	baseURL       string
	model         string
	maxHTMLBytes  int
	minTextLength int
	includeHTML   bool
	clock         Clock
	httpClient    *http.Client
}

// NewLLMExtractor builds the LLM strategy from environment variables.
func NewLLMExtractor(maxHTMLBytes, minTextLength int, includeHTML bool, clock Clock) (*LLMExtractor, error) {
	apiKey := os.Getenv(llmAPIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s must be set for the llm strategy", llmAPIKeyEnv)
	}
	baseURL := os.Getenv(llmBaseURLEnv)
	if baseURL == "" {
		baseURL = defaultLLMBaseURL
	}
	model := os.Getenv(llmModelEnv)
	if model == "" {
		model = defaultLLMModel
	}
	if maxHTMLBytes <= 0 {
		maxHTMLBytes = 4000
	}
	return &LLMExtractor{
		apiKey:        apiKey,
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		model:         model,
		maxHTMLBytes:  maxHTMLBytes,
		minTextLength: minTextLength,
		includeHTML:   includeHTML,
		clock:         clock,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Strategy implements Extractor.
func (e *LLMExtractor) Strategy() string { return StrategyLLM }

// Extract implements Extractor.
func (e *LLMExtractor) Extract(ctx context.Context, page Page) (PageRecord, error) {
	html := page.Body
	if len(html) > e.maxHTMLBytes {
		html = html[:e.maxHTMLBytes]
	}

	text, err := e.complete(ctx, page.baseURL(), string(html))
	if err != nil {
		return PageRecord{}, fmt.Errorf("llm extraction: %w", err)
	}
	text = strings.TrimSpace(text)
	if len(text) < e.minTextLength {
		return PageRecord{}, ErrExtractionEmpty
	}

	title, category := "", (*string)(nil)
	if doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(page.Body)); docErr == nil {
		title, category = docMetadata(doc)
	}
	return assembleRecord(page, title, category, text, e.Strategy(), e.includeHTML, e.clock), nil
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (e *LLMExtractor) complete(ctx context.Context, pageURL, html string) (string, error) {
	prompt := fmt.Sprintf("Extract the main content from %s:\n\nHTML:\n%s", pageURL, html)
	body, err := json.Marshal(map[string]any{
		"model": e.model,
		"messages": []map[string]string{
			{"role": "system", "content": llmSystemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
		"max_tokens":  1024,
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call chat api: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("chat api %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat api returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
