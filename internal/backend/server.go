// Package backend is a development stand-in for the analysis service. It
// serves the three endpoint shapes with canned data and never looks at the
// uploaded pixels.
package backend

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/wine-sommelier/internal/logger"
	"github.com/menta2k/wine-sommelier/pkg/analysis"
	"github.com/menta2k/wine-sommelier/pkg/types"
	"github.com/menta2k/wine-sommelier/pkg/upload"
)

// Scenario selects the canned answer of the recommendation endpoint
type Scenario string

const (
	ScenarioWines   Scenario = "wines"
	ScenarioEmpty   Scenario = "empty"
	ScenarioInvalid Scenario = "invalid"
	ScenarioError   Scenario = "error"
)

// MockDescription is returned by both description endpoints
const MockDescription = "A bottle of red wine with a cream label reading Opus One, Napa Valley, 2018."

// Options configures the mock server
type Options struct {
	Scenario Scenario
	// Delay is applied before every analysis answer
	Delay time.Duration
	// MaxUploadBytes bounds the multipart form size
	MaxUploadBytes int64
}

// MockWines returns the canned recommendation set
func MockWines() []types.Wine {
	year := "2018"
	region := "Napa Valley"
	price := "$125"
	return []types.Wine{
		{
			Wineries: []string{"Opus One"},
			Name:     "Opus One 2018",
			Year:     &year,
			Varietal: "Cabernet Sauvignon, Merlot Blend",
			Region:   &region,
			Recommendation: types.Recommendation{
				Rating:         90,
				MatchScore:     85,
				TastingNotes:   "Blackcurrant, cassis and violet with fine-grained tannins and a long cedar finish.",
				FoodPairing:    "Grilled ribeye, lamb chops or aged hard cheeses.",
				WhyRecommended: "A benchmark Napa blend with structure to age and polish to drink now.",
				PriceEstimate:  &price,
			},
		},
	}
}

// NewRouter builds the gin engine serving the mock endpoints
func NewRouter(opts Options) *gin.Engine {
	if opts.Scenario == "" {
		opts.Scenario = ScenarioWines
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	h := &handler{opts: opts}
	r.GET("/health", healthCheck)
	r.POST(analysis.WineImage.Path, h.analyzeWineImage)
	r.POST(analysis.ImageFile.Path, h.analyzeImageFile)
	r.POST(analysis.InlineImage.Path, h.analyzeInlineImage)

	return r
}

type handler struct {
	opts Options
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "wine-app-backend"})
}

func (h *handler) analyzeWineImage(c *gin.Context) {
	if !h.readUpload(c) {
		return
	}
	if !h.wait(c) {
		return
	}

	switch h.opts.Scenario {
	case ScenarioEmpty:
		c.JSON(http.StatusOK, analysis.WineListResponse{Valid: true, Wines: []types.Wine{}})
	case ScenarioInvalid:
		c.JSON(http.StatusOK, analysis.WineListResponse{
			Valid:   false,
			Message: "This does not look like a wine bottle or wine menu.",
		})
	case ScenarioError:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis pipeline unavailable"})
	default:
		c.JSON(http.StatusOK, analysis.WineListResponse{Valid: true, Wines: MockWines()})
	}
}

func (h *handler) analyzeImageFile(c *gin.Context) {
	if !h.readUpload(c) {
		return
	}
	if !h.wait(c) {
		return
	}
	h.describe(c)
}

func (h *handler) analyzeInlineImage(c *gin.Context) {
	var req struct {
		Image string `json:"image" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, analysis.DescriptionResponse{Error: "No image provided"})
		return
	}
	if _, err := base64.StdEncoding.DecodeString(req.Image); err != nil {
		c.JSON(http.StatusBadRequest, analysis.DescriptionResponse{Error: "Image is not valid base64"})
		return
	}
	if !h.wait(c) {
		return
	}
	h.describe(c)
}

func (h *handler) describe(c *gin.Context) {
	switch h.opts.Scenario {
	case ScenarioInvalid:
		c.JSON(http.StatusOK, analysis.DescriptionResponse{Error: "No description received from AI"})
	case ScenarioError:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis pipeline unavailable"})
	default:
		c.JSON(http.StatusOK, analysis.DescriptionResponse{Success: true, Description: MockDescription})
	}
}

// readUpload checks the single "image" file field and answers 400 when it is missing
func (h *handler) readUpload(c *gin.Context) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)

	file, err := c.FormFile(upload.FieldName)
	if err != nil {
		logger.WithError(err).Debug("Upload without image field")
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided"})
		return false
	}

	logger.WithFields(logrus.Fields{
		"filename": file.Filename,
		"size":     file.Size,
		"type":     file.Header.Get("Content-Type"),
	}).Debug("Received upload")
	return true
}

// wait applies the configured delay; false means the client went away
func (h *handler) wait(c *gin.Context) bool {
	if h.opts.Delay <= 0 {
		return true
	}
	select {
	case <-time.After(h.opts.Delay):
		return true
	case <-c.Request.Context().Done():
		return false
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"request_id":  c.GetHeader(analysis.RequestIDHeader),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("Handled request")
	}
}
