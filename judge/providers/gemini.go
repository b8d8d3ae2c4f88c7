// Package providers registers judgment service transport implementations.
// Import for side effects:
//
//	import _ "github.com/rubricguard/rubricguard/judge/providers"
package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rubricguard/rubricguard/judge"
)

// GeminiProvider implements the Google Generative Language API.
type GeminiProvider struct{}

func init() {
	judge.RegisterProvider(&GeminiProvider{})
}

// Name returns the provider identifier.
func (g *GeminiProvider) Name() string {
	return "gemini"
}

// BuildURL constructs the generateContent endpoint for the model.
func (g *GeminiProvider) BuildURL(baseURL, model string) string {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if strings.HasSuffix(baseURL, ":generateContent") {
		return baseURL
	}

	return fmt.Sprintf("%s/models/%s:generateContent", baseURL, model)
}

// SetHeaders adds Gemini authentication headers.
func (g *GeminiProvider) SetHeaders(req *http.Request) {
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		req.Header.Set("x-goog-api-key", apiKey)
	}
}

// geminiRequest is the Generative Language API request format.
type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

// BuildRequestBody creates the Gemini request body. The response MIME type
// is pinned to JSON so the model returns a bare judgment object.
func (g *GeminiProvider) BuildRequestBody(model, prompt string, temperature *float64) ([]byte, error) {
	req := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      temperature,
			ResponseMimeType: "application/json",
		},
	}
	return json.Marshal(req)
}

// geminiResponse is the Generative Language API response format.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// ParseResponse extracts the generated text from a Gemini response.
func (g *GeminiProvider) ParseResponse(body []byte) (string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshal Gemini response: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("Gemini response contains no candidates")
	}

	return resp.Candidates[0].Content.Parts[0].Text, nil
}
