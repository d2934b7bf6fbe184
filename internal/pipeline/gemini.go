package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/statement-converter/internal/logger"
	"github.com/dvloznov/statement-converter/internal/metrics"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey string
	Model  string
	// RequestsPerMinute caps outgoing calls; zero or less disables the cap.
	RequestsPerMinute int
	Metrics           *metrics.Metrics
}

// GeminiClient implements ModelClient with the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// NewGeminiClient creates a client for the Gemini developer API.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("NewGeminiClient: API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClient: create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModelName
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		limiter: limiter,
		metrics: cfg.Metrics,
	}, nil
}

// GenerateJSON sends the prompt and images in one request with JSON output
// constrained to req.Schema and returns the response text.
func (c *GeminiClient) GenerateJSON(ctx context.Context, req ModelRequest) (string, error) {
	log := logger.FromContext(ctx)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("GenerateJSON: rate limiter: %w", err)
		}
	}

	parts := make([]*genai.Part, 0, len(req.Images)+1)
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: jsonMIMEType,
		ResponseSchema:   req.Schema,
	}

	log.Debug().
		Str("kind", req.Kind).
		Str("model", c.model).
		Int("images", len(req.Images)).
		Msg("Calling model")

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	c.metrics.ObserveModelCall(req.Kind, start, err)
	if err != nil {
		return "", fmt.Errorf("GenerateJSON: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("GenerateJSON: empty response from model")
	}

	if resp.UsageMetadata != nil {
		log.Debug().
			Str("kind", req.Kind).
			Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount).
			Int32("output_tokens", resp.UsageMetadata.CandidatesTokenCount).
			Dur("latency", time.Since(start)).
			Msg("Model call finished")
	}

	return text, nil
}
