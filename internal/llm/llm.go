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

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyReply is returned when the model responds successfully but no
// text could be extracted from any supported response shape.
var ErrEmptyReply = errors.New("model returned an empty reply")

const defaultBaseURL = "https://api.openai.com/v1"

// Reply is the extracted outcome of one model invocation.
type Reply struct {
	Text string
	// Truncated is set when the upstream reports the output was cut off
	// (status "incomplete" with reason max_output_tokens). The caller can
	// offer a "continue" affordance based on this instead of scanning the
	// reply text for marker phrases.
	Truncated bool
}

// Client talks to the OpenAI Files and Responses APIs. File uploads go
// through the go-openai SDK; the Responses endpoint is called directly
// since the SDK does not cover it.
type Client struct {
	api        *openai.Client
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
}

// NewClient creates a client for the given API key and model. baseURL is
// optional and exists so tests can point the client at a fake server.
func NewClient(apiKey, model, baseURL string) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL

	return &Client{
		api:        openai.NewClientWithConfig(cfg),
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		maxTokens:  900,
	}
}

// Upload registers one document with the remote file store and returns its
// opaque handle. The caller owns timeouts via ctx.
func (c *Client) Upload(ctx context.Context, name, mime string, data []byte) (string, error) {
	f, err := c.api.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    name,
		Bytes:   data,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return "", fmt.Errorf("file store rejected %s: %w", name, err)
	}
	if f.ID == "" {
		return "", fmt.Errorf("file store returned no id for %s", name)
	}
	return f.ID, nil
}

// Respond performs a single model invocation. Every handle in handles is
// attached as document context, so previously uploaded files stay in scope
// on every turn even though the backend keeps no session state.
func (c *Client) Respond(ctx context.Context, message string, handles []string, lang string) (*Reply, error) {
	var content []map[string]interface{}
	for _, id := range handles {
		content = append(content, map[string]interface{}{
			"type":    "input_file",
			"file_id": id,
		})
	}
	content = append(content, map[string]interface{}{
		"type": "input_text",
		"text": message,
	})

	reqBody, _ := json.Marshal(map[string]interface{}{
		"model":             c.model,
		"instructions":      SystemPrompt(lang, len(handles) > 0),
		"max_output_tokens": c.maxTokens,
		"input": []map[string]interface{}{
			{"role": "user", "content": content},
		},
	})

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/responses", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build responses request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai api error: %d - %s", resp.StatusCode, string(bodyBytes))
	}

	var parsed responsesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("openai json decode error: %w", err)
	}

	text, err := extractReply(&parsed)
	if err != nil {
		return nil, err
	}

	return &Reply{
		Text:      text,
		Truncated: parsed.truncated(),
	}, nil
}

// responsesResponse covers the two shapes the Responses API is known to
// return text in: a flat output_text convenience field, or a list of
// output items carrying content blocks.
type responsesResponse struct {
	Status            string `json:"status"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	OutputText string `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

func (r *responsesResponse) truncated() bool {
	return r.Status == "incomplete" &&
		r.IncompleteDetails != nil &&
		r.IncompleteDetails.Reason == "max_output_tokens"
}

// extractReply picks the first non-empty plain-text payload across either
// response shape. An empty result is an error, never a successful reply.
func extractReply(r *responsesResponse) (string, error) {
	if strings.TrimSpace(r.OutputText) != "" {
		return r.OutputText, nil
	}
	for _, item := range r.Output {
		if item.Type != "" && item.Type != "message" {
			continue
		}
		for _, block := range item.Content {
			if block.Type != "" && block.Type != "output_text" && block.Type != "text" {
				continue
			}
			if strings.TrimSpace(block.Text) != "" {
				return block.Text, nil
			}
		}
	}
	return "", ErrEmptyReply
}
