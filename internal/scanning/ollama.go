package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Ollama implements the Extractor interface using a local Ollama server.
// Recommended vision models: qwen2.5vl, llava:1.6, llama3.2-vision.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	retry   RetryPolicy
}

// NewOllama creates a new Ollama Extractor instance
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: baseURL,
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second, // vision models are slow on CPU
		},
		retry: DefaultRetryPolicy,
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

// Extract reads the line items of a page image
func (o *Ollama) Extract(ctx context.Context, image []byte) (*Extraction, error) {
	text, usage, err := o.chat(ctx, "extract", image, extractionPrompt)
	if err != nil {
		return nil, err
	}

	data, err := parseExtraction(text)
	if err != nil {
		return nil, err
	}
	data.TokenUsage = usage
	return data, nil
}

// Correct asks the model to re-examine a page that did not reconcile
func (o *Ollama) Correct(ctx context.Context, image []byte, feedback Feedback) (*CorrectionSet, error) {
	text, usage, err := o.chat(ctx, "correct", image, correctionPrompt(feedback))
	if err != nil {
		return nil, err
	}

	set, err := parseCorrections(text)
	if err != nil {
		return nil, err
	}
	set.TokenUsage = usage
	return set, nil
}

func (o *Ollama) chat(ctx context.Context, op string, image []byte, prompt string) (string, TokenUsage, error) {
	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: "json",
		Options: map[string]any{
			"temperature": 0,
		},
		Messages: []ollamaMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt, Images: []string{base64.StdEncoding.EncodeToString(image)}},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", TokenUsage{}, fmt.Errorf("marshaling request: %w", err)
	}

	var (
		text  string
		usage TokenUsage
	)
	err = o.retry.do(ctx, op, func(ctx context.Context) error {
		url := fmt.Sprintf("%s/api/chat", o.baseURL)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			return fmt.Errorf("calling ollama API: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return &statusError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		var chatResp ollamaChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
			return malformed(op, fmt.Errorf("decoding response: %w", err))
		}

		usage = usage.Add(TokenUsage{
			InputTokens:  chatResp.PromptEvalCount,
			OutputTokens: chatResp.EvalCount,
			TotalTokens:  chatResp.PromptEvalCount + chatResp.EvalCount,
		})
		if chatResp.Message.Content == "" {
			return &ExtractionError{Op: op, Category: CategoryEmpty, Retryable: true, Err: fmt.Errorf("no response from ollama")}
		}
		text = chatResp.Message.Content
		return nil
	})
	if err != nil {
		return "", usage, err
	}
	return text, usage, nil
}

// SetRetryPolicy replaces the policy used for transient provider failures
func (o *Ollama) SetRetryPolicy(p RetryPolicy) {
	o.retry = p
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
