// Package vision analyzes images by talking to a vision model directly,
// without the analysis backend in between.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/wine-sommelier/internal/config"
	apperrors "github.com/menta2k/wine-sommelier/internal/errors"
	"github.com/menta2k/wine-sommelier/internal/logger"
	"github.com/menta2k/wine-sommelier/pkg/analysis"
	"github.com/menta2k/wine-sommelier/pkg/types"
)

// Mode selects the prompt and how the answer is read
type Mode string

const (
	// ModeDescribe asks for free text
	ModeDescribe Mode = "describe"
	// ModeSommelier asks for the recommendation JSON
	ModeSommelier Mode = "sommelier"
)

// DescribePrompt asks for a plain description of the image
const DescribePrompt = `Please describe what you see in this image. Be detailed and specific about any text, objects, or content visible.`

// SommelierPrompt asks the model for the recommendation body shape
const SommelierPrompt = `You are an expert sommelier looking at a photo of a wine bottle, label or wine menu.

Return JSON only:
{
  "valid": true,
  "wines": [
    {
      "wineries": ["string"],
      "name": "string",
      "year": "string or null",
      "varietal": "string",
      "region": "string or null",
      "recommendation": {
        "rating": 0,
        "match_score": 0,
        "tasting_notes": "string",
        "food_pairing": "string",
        "why_recommended": "string",
        "price_estimate": "string or null"
      }
    }
  ],
  "message": "string"
}

RULES
- If the image shows no wine bottle, label or wine list, return {"valid": false, "wines": [], "message": "<why>"}.
- If it is a wine image but no specific wine can be read, return {"valid": true, "wines": []}.
- rating and match_score are numbers from 0 to 100.
- List at most 10 wines, best match first.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Backend sends one prompt and image to a model and returns its text
type Backend interface {
	Name() string
	Chat(ctx context.Context, prompt string, image []byte) (string, error)
}

// Describer adapts a model backend to the analysis.Analyzer contract
type Describer struct {
	backend Backend
	mode    Mode
	timeout time.Duration
}

var _ analysis.Analyzer = (*Describer)(nil)

// NewDescriber creates a describer; a zero timeout uses the analysis ceiling
func NewDescriber(backend Backend, mode Mode, timeout time.Duration) *Describer {
	if mode == "" {
		mode = ModeDescribe
	}
	if timeout <= 0 {
		timeout = config.AnalysisTimeout
	}
	return &Describer{backend: backend, mode: mode, timeout: timeout}
}

// Analyze requires the inline base64 representation
func (d *Describer) Analyze(ctx context.Context, req types.AnalysisRequest) types.Result {
	if err := req.Validate(); err != nil {
		return types.InvalidResult(apperrors.NewInvalidInput(err.Error()))
	}
	if req.ImageBase64 == "" {
		return types.InvalidResult(apperrors.NewInvalidInput("vision backends need an inline image"))
	}

	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return types.InvalidResult(apperrors.NewInvalidInput("image is not valid base64"))
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	prompt := DescribePrompt
	if d.mode == ModeSommelier {
		prompt = SommelierPrompt
	}

	log := logger.WithFields(logrus.Fields{
		"backend": d.backend.Name(),
		"mode":    string(d.mode),
	})

	start := time.Now()
	text, err := d.backend.Chat(ctx, prompt, image)
	log = log.WithField("duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		log.WithError(err).Warn("Vision request failed")
		return types.ErrorResult(classify(err))
	}

	result := d.interpret(text)
	log.WithField("result", result.Kind.String()).Info("Vision analysis completed")
	return result
}

func (d *Describer) interpret(text string) types.Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.InvalidResult(apperrors.NewEmptyResult(analysis.DefaultDescriptionReason))
	}
	if d.mode != ModeSommelier {
		return types.DescriptionResult(text)
	}

	raw := sanitizeModelJSON(text)
	if !strings.HasPrefix(raw, "{") {
		// Model ignored the format; show what it said
		return types.DescriptionResult(text)
	}

	var resp analysis.WineListResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return types.DescriptionResult(text)
	}
	return analysis.WineListOutcome(resp)
}

func classify(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTransportFailure("vision model timed out", err)
	}
	return apperrors.NewTransportFailure("could not reach vision model", err)
}

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments and trailing commas, and
// keeps only the outermost object
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewBackend builds a backend from configuration
func NewBackend(cfg config.VisionConfig) (Backend, error) {
	switch cfg.Backend {
	case "ollama":
		b, err := NewOllamaBackend(cfg.URL, cfg.Model)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "chat-completions":
		return NewChatCompletionsBackend(cfg.URL, cfg.Model, cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported vision backend: %q", cfg.Backend)
	}
}
