package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	retry  RetryPolicy
}

// NewGemini creates a new Gemini Extractor instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	return &Gemini{
		client: client,
		model:  model,
		retry:  DefaultRetryPolicy,
	}, nil
}

// Extract reads the line items of a page image
func (g *Gemini) Extract(ctx context.Context, image []byte) (*Extraction, error) {
	text, usage, err := g.generate(ctx, "extract", image, extractionPrompt)
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

// Correct asks Gemini to re-examine a page that did not reconcile
func (g *Gemini) Correct(ctx context.Context, image []byte, feedback Feedback) (*CorrectionSet, error) {
	text, usage, err := g.generate(ctx, "correct", image, correctionPrompt(feedback))
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

// generate sends the page image and prompt, retrying transient failures
func (g *Gemini) generate(ctx context.Context, op string, image []byte, prompt string) (string, TokenUsage, error) {
	// Pages are always PNG after conversion
	parts := []genai.Part{
		genai.ImageData("png", image),
		genai.Text(prompt),
	}

	var (
		text  string
		usage TokenUsage
	)
	err := g.retry.do(ctx, op, func(ctx context.Context) error {
		resp, err := g.model.GenerateContent(ctx, parts...)
		if err != nil {
			return fmt.Errorf("generating content: %w", err)
		}

		if resp.UsageMetadata != nil {
			usage = usage.Add(TokenUsage{
				InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
				OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
			})
		}

		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return &ExtractionError{Op: op, Category: CategoryEmpty, Retryable: true, Err: fmt.Errorf("no response from gemini")}
		}

		var responseText strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				responseText.WriteString(string(t))
			}
		}
		text = responseText.String()
		return nil
	})
	if err != nil {
		return "", usage, err
	}
	return text, usage, nil
}

// SetRetryPolicy replaces the policy used for transient provider failures
func (g *Gemini) SetRetryPolicy(p RetryPolicy) {
	g.retry = p
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
