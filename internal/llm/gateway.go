package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const gatewayAPIURL = "https://llm-gateway.assemblyai.com/v1/chat/completions"

// detection chunks are processed concurrently, but not unboundedly so.
const maxParallelChunks = 4

// GatewayClient implements the Client interface against the AssemblyAI LLM
// gateway, which speaks the chat completions wire format.
type GatewayClient struct {
	apiKey         string
	model          string
	baseURL        string
	detectTimeout  time.Duration
	summaryTimeout time.Duration
	httpClient     *http.Client
	logger         *log.Logger
}

// GatewayConfig holds configuration for the gateway client.
type GatewayConfig struct {
	APIKey         string
	Model          string        // e.g., "claude-sonnet-4-5-20250929"
	BaseURL        string        // defaults to the production gateway
	DetectTimeout  time.Duration // per detection call, default 5s
	SummaryTimeout time.Duration // per summary call, default 30s
	Logger         *log.Logger
}

// NewGatewayClient creates a new LLM gateway client.
func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = gatewayAPIURL
	}
	detectTimeout := cfg.DetectTimeout
	if detectTimeout == 0 {
		detectTimeout = 5 * time.Second
	}
	summaryTimeout := cfg.SummaryTimeout
	if summaryTimeout == 0 {
		summaryTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &GatewayClient{
		apiKey:         cfg.APIKey,
		model:          model,
		baseURL:        baseURL,
		detectTimeout:  detectTimeout,
		summaryTimeout: summaryTimeout,
		httpClient:     &http.Client{},
		logger:         logger,
	}
}

// chatRequest represents a chat completion request.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse represents a chat completion response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete sends one chat completion request and returns the raw content of
// the first choice.
func (c *GatewayClient) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.1,
		MaxTokens:   maxTokens,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("LLM gateway error: %s - %s", resp.Status, string(respBody))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// stripFences removes a markdown code fence the model sometimes wraps JSON in.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// DetectScriptures finds citations in one transcript segment.
func (c *GatewayClient) DetectScriptures(ctx context.Context, transcript string) ([]DetectedScripture, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.detectTimeout)
	defer cancel()

	content, err := c.complete(ctx, fmt.Sprintf(detectionPrompt, transcript), 1000)
	if err != nil {
		return nil, err
	}

	content = stripFences(content)
	var out []DetectedScripture
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("failed to parse detection result: %w (content: %s)", err, content)
	}
	return out, nil
}

// DetectScripturesFromChunks runs detection over chunks in parallel. Results
// are merged in chunk order with duplicate citations dropped, so the output
// is deterministic regardless of which chunk finished first. A chunk whose
// call fails is logged and skipped rather than failing the whole batch.
func (c *GatewayClient) DetectScripturesFromChunks(ctx context.Context, chunks []string) ([]DetectedScripture, error) {
	results := make([][]DetectedScripture, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelChunks)
	for i, chunk := range chunks {
		g.Go(func() error {
			found, err := c.DetectScriptures(ctx, chunk)
			if err != nil {
				c.logger.Printf("llm: chunk %d detection failed: %v", i, err)
				return nil
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []DetectedScripture
	seen := make(map[string]bool)
	for _, found := range results {
		for _, d := range found {
			key := fmt.Sprintf("%s|%d|%d|%d", d.Book, d.Chapter, d.Verse, d.EndVerse)
			if !seen[key] {
				seen[key] = true
				out = append(out, d)
			}
		}
	}
	return out, nil
}

// Summarize produces a short prose summary of a session transcript.
func (c *GatewayClient) Summarize(ctx context.Context, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.summaryTimeout)
	defer cancel()

	content, err := c.complete(ctx, fmt.Sprintf(summaryPrompt, transcript), 500)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}
