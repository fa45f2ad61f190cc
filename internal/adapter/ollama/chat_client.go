package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lorekeeper/internal/domain"
)

const keepAliveSeconds = 600

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string                 `json:"model"`
	Messages  []chatMessage          `json:"messages"`
	Stream    bool                   `json:"stream"`
	KeepAlive int                    `json:"keep_alive"`
	Format    string                 `json:"format,omitempty"`
	Options   map[string]interface{} `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// ChatClient sends chat requests to Ollama's chat endpoint.
type ChatClient struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

func NewChatClient(baseURL, model string, client *http.Client) *ChatClient {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &ChatClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  client,
	}
}

func (c *ChatClient) buildRequest(messages []domain.Message, opts domain.ChatOptions, stream bool) chatRequest {
	msgs := make([]chatMessage, len(messages))
	for i, m := range messages {
		msgs[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	req := chatRequest{
		Model:     c.Model,
		Messages:  msgs,
		Stream:    stream,
		KeepAlive: keepAliveSeconds,
		Format:    opts.Format,
		Options: map[string]interface{}{
			"temperature": opts.Temperature,
		},
	}
	if opts.MaxTokens > 0 {
		req.Options["num_predict"] = opts.MaxTokens
	}
	return req
}

func (c *ChatClient) post(ctx context.Context, reqBody chatRequest) (*http.Response, error) {
	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

func (c *ChatClient) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	resp, err := c.post(ctx, c.buildRequest(messages, opts, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}

	return &domain.ChatResponse{
		Content: strings.TrimSpace(chatResp.Message.Content),
		Done:    chatResp.Done,
		Usage: &domain.TokenUsage{
			PromptTokens:     chatResp.PromptEvalCount,
			CompletionTokens: chatResp.EvalCount,
		},
	}, nil
}

// ChatStream issues a streaming chat request. Ollama streams newline
// delimited JSON objects; each becomes one StreamChunk, the last carrying
// Done and the usage counters.
func (c *ChatClient) ChatStream(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (<-chan domain.StreamChunk, <-chan error, error) {
	resp, err := c.post(ctx, c.buildRequest(messages, opts, true))
	if err != nil {
		return nil, nil, err
	}

	chunks := make(chan domain.StreamChunk, 8)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var chatResp chatResponse
			if err := json.Unmarshal(line, &chatResp); err != nil {
				errs <- fmt.Errorf("failed to decode stream line: %w", err)
				return
			}

			chunk := domain.StreamChunk{
				Content: chatResp.Message.Content,
				Done:    chatResp.Done,
			}
			if chatResp.Done {
				chunk.Usage = &domain.TokenUsage{
					PromptTokens:     chatResp.PromptEvalCount,
					CompletionTokens: chatResp.EvalCount,
				}
			}

			select {
			case <-ctx.Done():
				return
			case chunks <- chunk:
			}
			if chatResp.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("stream read failed: %w", err)
		}
	}()

	return chunks, errs, nil
}

func (c *ChatClient) Version() string {
	return c.Model
}

var _ domain.LLMClient = (*ChatClient)(nil)
