package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/inboxkit/email-enricher/internal/core"
)

// GeminiClient is an implementation of the LLMClient interface using Google Gemini
type GeminiClient struct {
	apiKey      string
	modelName   string
	maxTokens   int
	temperature float32
	topP        float32
	logger      *zap.Logger
}

// NewGeminiClient creates a new Gemini client. The configured API key is
// a fallback; a credential on the request takes precedence.
func NewGeminiClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	logger *zap.Logger,
) *GeminiClient {
	return &GeminiClient{
		apiKey:      apiKey,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		topP:        topP,
		logger:      logger,
	}
}

// Generate sends the prompt to Gemini and returns the raw response text.
// The SDK client is constructed per call because the credential can
// change between requests.
func (c *GeminiClient) Generate(ctx context.Context, req core.GenerateRequest) (string, error) {
	apiKey := c.apiKey
	if req.Credential != "" {
		apiKey = req.Credential
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return "", c.mapError(err)
	}
	defer client.Close()

	model := client.GenerativeModel(c.modelName)
	model.SetTemperature(c.temperature)
	model.SetTopP(c.topP)
	model.SetMaxOutputTokens(int32(c.maxTokens))
	if req.JSONResponse {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", c.mapError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &core.ProviderError{Provider: "gemini", Err: fmt.Errorf("empty response")}
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}

	c.logger.Debug("Gemini generation finished", zap.String("model", c.modelName))

	return b.String(), nil
}

// mapError folds Gemini SDK failures onto the pipeline error taxonomy.
func (c *GeminiClient) mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.ErrProviderTimeout
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", core.ErrRateLimited, apiErr.Message)
	}

	return &core.ProviderError{Provider: "gemini", Err: err}
}
