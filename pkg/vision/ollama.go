package vision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	apperrors "github.com/menta2k/wine-sommelier/internal/errors"
)

// OllamaBackend sends images to an Ollama server through its chat API
type OllamaBackend struct {
	client *api.Client
	model  string
}

// NewOllamaBackend creates a backend for serverURL, ignoring OLLAMA_HOST
func NewOllamaBackend(serverURL, model string) (*OllamaBackend, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", serverURL)
	}

	// Drop any path such as /api/chat
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &OllamaBackend{
		client: api.NewClient(baseURL, http.DefaultClient),
		model:  model,
	}, nil
}

func (b *OllamaBackend) Name() string {
	return "ollama"
}

func (b *OllamaBackend) Chat(ctx context.Context, prompt string, image []byte) (string, error) {
	streamFalse := false
	req := &api.ChatRequest{
		Model: b.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(image)},
			},
		},
		Stream: &streamFalse,
	}

	// Options tuned for the MiniCPM-V family, which rambles at default temperature
	modelLower := strings.ToLower(b.model)
	if strings.Contains(modelLower, "minicpm-v") {
		req.Options = map[string]any{
			"temperature": 0.7,
			"top_p":       0.8,
			"num_ctx":     4096,
		}
	}

	var content strings.Builder
	err := b.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return "", apperrors.NewHTTPError(statusErr.StatusCode, firstNonEmpty(statusErr.ErrorMessage, statusErr.Status))
		}
		return "", fmt.Errorf("ollama chat error: %w", err)
	}

	return content.String(), nil
}
