package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"artisora/internal/domain/entity"
	"artisora/pkg/errors"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel = "gemini-1.5-flash"
)

// Gemini asks the Generative Language API for a reply in the artisan's voice.
// Callers treat any error as a signal to fall back to canned text; a failed
// generation must never surface to the user.
type Gemini struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewGemini(apiKey string) *Gemini {
	return &Gemini{
		apiKey:     apiKey,
		model:      defaultGeminiModel,
		baseURL:    geminiBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
	Config   *geminiConfig   `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Reply(ctx context.Context, conv *entity.Conversation, last *entity.Message) (string, error) {
	prompt := fmt.Sprintf(`You are %s, an artisan selling handcrafted goods. A buyer is asking about one of your products.

Product: %s
Category: %s
Description: %s
Materials: %s
Price: %.2f
Location: %s

The buyer wrote: %q

Reply in one or two warm, helpful sentences as the artisan. Plain text only.`,
		conv.CounterpartyName,
		conv.ProductName,
		conv.Product.Category,
		conv.Product.Description,
		conv.Product.Materials,
		conv.Product.Price,
		conv.Product.Location,
		last.Content,
	)

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		Config:   &geminiConfig{Temperature: 0.7, MaxOutputTokens: 200},
	})
	if err != nil {
		return "", errors.Internal("Failed to build generation request", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", errors.Internal("Failed to build generation request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", errors.Internal("Generation request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", errors.Internal(fmt.Sprintf("Generation request returned %d: %s", resp.StatusCode, raw), nil)
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errors.Internal("Failed to parse generation response", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.Internal("Generation response had no candidates", nil)
	}

	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
