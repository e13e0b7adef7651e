// Package anthropic implements the vision.Analyzer contract using the
// Anthropic messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/siteguardhq/siteguard/internal/domain"
	"github.com/siteguardhq/siteguard/internal/vision"
)

const (
	// APIBaseURL is the base URL for the Anthropic API
	APIBaseURL = "https://api.anthropic.com/v1/messages"

	// APIVersion is the Anthropic API version
	APIVersion = "2023-06-01"

	// DefaultModel is the default Claude model to use
	DefaultModel = "claude-3-5-sonnet-20241022"
)

// Config contains configuration for the Anthropic provider
type Config struct {
	APIKey         string
	Model          string
	ProviderConfig vision.ProviderConfig
}

// Provider implements vision.Analyzer against Anthropic's Claude API.
//
// The provider is stateless between calls. Each call is bounded by the
// configured request timeout and retried once, immediately, on transient
// failure.
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Anthropic analysis provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = vision.DefaultRequestTimeout
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// Analyze sends the photograph to Claude and normalizes the returned
// violations into domain types.
func (p *Provider) Analyze(ctx context.Context, params vision.AnalyzeParams) ([]domain.Violation, error) {
	if err := vision.ValidateImage(params.ImageData, params.ContentType); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.ProviderConfig.RequestTimeout)
	defer cancel()

	body, err := p.buildRequestBody(params)
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}

	resp, err := p.execute(ctx, body)
	if err != nil && vision.IsTransient(err) {
		p.logger.Info("retrying analysis after transient failure", "error", err)
		resp, err = p.execute(ctx, body)
	}
	if err != nil {
		return nil, err
	}

	text := resp.textContent()
	if text == "" {
		return nil, fmt.Errorf("%w: no text content in response", vision.ErrAnalysisMalformed)
	}

	raw, err := vision.ExtractJSONArray(text)
	if err != nil {
		return nil, err
	}

	violations := vision.Normalize(raw, p.logger)
	p.logger.Info("image analysis completed",
		"model", p.config.Model,
		"violations", len(violations),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return violations, nil
}

// buildRequestBody builds the JSON body for an analysis request.
func (p *Provider) buildRequestBody(params vision.AnalyzeParams) ([]byte, error) {
	imageB64 := base64.StdEncoding.EncodeToString(params.ImageData)

	reqBody := apiRequest{
		Model:     p.config.Model,
		MaxTokens: 4096,
		Messages: []apiMessage{
			{
				Role: "user",
				Content: []apiContent{
					{
						Type: "image",
						Source: &apiImageSource{
							Type:      "base64",
							MediaType: params.ContentType,
							Data:      imageB64,
						},
					},
					{
						Type: "text",
						Text: buildAnalysisPrompt(params.Context),
					},
				},
			},
		},
	}

	return json.Marshal(reqBody)
}

// execute performs a single HTTP round trip.
func (p *Provider) execute(ctx context.Context, body []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, APIBaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", APIVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", vision.ErrAnalysisTimeout, err)
		}
		// Other network errors are transient
		return nil, fmt.Errorf("%w: %v", vision.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.mapHTTPError(resp.StatusCode, respBytes)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %v", vision.ErrAnalysisMalformed, err)
	}
	return &apiResp, nil
}

// mapHTTPError maps HTTP status codes to vision errors.
func (p *Provider) mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized:
		return vision.ErrUnauthorized
	case http.StatusTooManyRequests:
		return vision.ErrRateLimit
	case http.StatusRequestTimeout:
		return vision.ErrAnalysisTimeout
	case http.StatusBadRequest:
		if errResp.Error.Type == "invalid_request_error" {
			return vision.ErrInvalidImage
		}
		return fmt.Errorf("bad request: %s", errResp.Error.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return vision.ErrUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// =============================================================================
// API wire types
// =============================================================================

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Source *apiImageSource `json:"source,omitempty"`
}

type apiImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type apiResponse struct {
	Content []apiResponseContent `json:"content"`
	Usage   apiUsage             `json:"usage"`
}

type apiResponseContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r *apiResponse) textContent() string {
	for _, content := range r.Content {
		if content.Type == "text" {
			return content.Text
		}
	}
	return ""
}

var _ vision.Analyzer = (*Provider)(nil)
