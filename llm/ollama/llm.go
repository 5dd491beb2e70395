package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"nutrilog"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

type options struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumCtx        int     `json:"num_ctx,omitempty"`
}

type Client struct {
	endpoint   string
	model      string
	httpClient nutrilog.HTTPClient
	options    options
}

type ClientOpts struct {
	BaseEndpoint string
	ModelID      string
	HTTPClient   nutrilog.HTTPClient
}

func NewClient(opts ClientOpts) (*Client, error) {
	if strings.TrimSpace(opts.BaseEndpoint) == "" {
		return nil, fmt.Errorf("missing ollama endpoint")
	}
	if strings.TrimSpace(opts.ModelID) == "" {
		return nil, fmt.Errorf("missing ollama model")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Client{
		model:      opts.ModelID,
		httpClient: opts.HTTPClient,
		endpoint:   strings.TrimSuffix(opts.BaseEndpoint, "/") + "/api/chat",
		options: options{
			Temperature:   0.1,
			TopP:          0.9,
			RepeatPenalty: 1.05,
			NumCtx:        4096,
		},
	}, nil
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is a single-turn request whose answer must match Format.
type Prompt struct {
	System string
	User   string
	Format *jsonschema.Schema
}

type wireResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

type wireRequest struct {
	Model    string             `json:"model"`
	Messages []Message          `json:"messages"`
	Format   *jsonschema.Schema `json:"format,omitempty"`
	Stream   bool               `json:"stream"`
	Options  options            `json:"options,omitempty"`
}

// Invoke sends the prompt to the Ollama chat API with structured output
// enabled and returns the message content verbatim.
func (c *Client) Invoke(ctx context.Context, prompt Prompt) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "model", c.model, "input_len", len(prompt.User))

	reqBody := wireRequest{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Format:  prompt.Format,
		Stream:  false,
		Options: c.options,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(reqBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("LLM_CLIENT: %s: %s", resp.Status, string(body))
	}

	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return "", fmt.Errorf("LLM_CLIENT: decode chat response: %w", err)
	}

	return wr.Message.Content, nil
}
