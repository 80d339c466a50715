// Package analysis sends one captured image to the analysis backend and maps
// every outcome, including transport failures, to a types.Result.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/wine-sommelier/internal/config"
	apperrors "github.com/menta2k/wine-sommelier/internal/errors"
	"github.com/menta2k/wine-sommelier/internal/logger"
	"github.com/menta2k/wine-sommelier/pkg/types"
	"github.com/menta2k/wine-sommelier/pkg/upload"
)

// RequestIDHeader carries a per-call id for correlating backend logs
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes bounds how much of a response is read
const maxBodyBytes = 10 << 20

// Analyzer turns one request into a Result. It never returns an error:
// failures are Result variants.
type Analyzer interface {
	Analyze(ctx context.Context, req types.AnalysisRequest) types.Result
}

// Client talks to one backend profile over HTTP
type Client struct {
	baseURL      string
	profile      Profile
	httpClient   *http.Client
	timeout      time.Duration
	probeTimeout time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the analysis ceiling
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithProbeTimeout sets the connectivity probe ceiling
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) { c.probeTimeout = d }
}

// NewClient creates a client for baseURL using the given profile
func NewClient(baseURL string, profile Profile, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if profile.Decode == nil || profile.Path == "" {
		return nil, fmt.Errorf("profile %q is incomplete", profile.Name)
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		profile:      profile,
		httpClient:   &http.Client{},
		timeout:      config.AnalysisTimeout,
		probeTimeout: config.ProbeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Profile returns the endpoint profile the client uses
func (c *Client) Profile() Profile {
	return c.profile
}

// Analyze performs exactly one POST; nothing is retried
func (c *Client) Analyze(ctx context.Context, req types.AnalysisRequest) types.Result {
	if err := req.Validate(); err != nil {
		return types.InvalidResult(apperrors.NewInvalidInput(err.Error()))
	}
	if got := shapeOf(req); got != c.profile.Shape {
		return types.InvalidResult(apperrors.NewInvalidInput(
			fmt.Sprintf("profile %s expects a %s request, got %s", c.profile.Name, c.profile.Shape, got)))
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contentType, body, err := upload.Body(req)
	if err != nil {
		return types.InvalidResult(apperrors.NewInvalidInput(err.Error()))
	}

	requestID := uuid.NewString()
	log := logger.WithFields(logrus.Fields{
		"profile":    c.profile.Name,
		"request_id": requestID,
	})

	start := time.Now()
	status, respBody, err := c.sendRequest(ctx, c.profile.Path, contentType, body, requestID)
	duration := time.Since(start)

	if err != nil {
		log.WithError(err).WithField("duration_ms", duration.Milliseconds()).Warn("Analysis request failed")
		return types.ErrorResult(apperrors.NewTransportFailure(transportMessage(err), err))
	}

	log = log.WithFields(logrus.Fields{"status": status, "duration_ms": duration.Milliseconds()})

	if status < 200 || status > 299 {
		log.Warn("Analysis backend returned an error status")
		return types.ErrorResult(apperrors.NewHTTPError(status, errorMessage(status, respBody)))
	}

	result, ok := c.profile.Decode(respBody)
	if !ok {
		log.Warn("Analysis backend returned a malformed body")
		return types.ErrorResult(apperrors.NewTransportFailure("malformed response from analysis service", nil))
	}

	log.WithField("result", result.Kind.String()).Info("Analysis completed")
	return result
}

// Probe checks that the backend is reachable with a GET /health
func (c *Client) Probe(ctx context.Context) error {
	if c.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.probeTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return apperrors.NewTransportFailure("failed to create request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewTransportFailure(transportMessage(err), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.NewHTTPError(resp.StatusCode, fmt.Sprintf("health check returned status %d", resp.StatusCode))
	}
	return nil
}

func (c *Client) sendRequest(ctx context.Context, endpoint, contentType string, body []byte, requestID string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

func shapeOf(req types.AnalysisRequest) upload.Shape {
	if req.Image != nil {
		return upload.Multipart
	}
	return upload.InlineBase64
}

func transportMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "analysis service timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "analysis request canceled"
	}
	return "could not reach analysis service"
}

func errorMessage(status int, body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if msg := firstNonEmpty(payload.Error, payload.Message); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("analysis service returned status %d", status)
}
