package types

import (
	"errors"
	"time"

	apperrors "github.com/menta2k/wine-sommelier/internal/errors"
)

// MimeType is an image content type accepted by the analysis backends
type MimeType string

const (
	MimeJPEG MimeType = "image/jpeg"
	MimePNG  MimeType = "image/png"
	MimeGIF  MimeType = "image/gif"
	MimeBMP  MimeType = "image/bmp"
	MimeWebP MimeType = "image/webp"
)

// MimeTypeForExtension maps a normalized extension to its mime type, defaulting to jpeg
func MimeTypeForExtension(ext string) MimeType {
	switch ext {
	case "png":
		return MimePNG
	case "gif":
		return MimeGIF
	case "bmp":
		return MimeBMP
	case "webp":
		return MimeWebP
	default:
		return MimeJPEG
	}
}

// CapturedImage is a locally addressable image produced by a camera shutter or picker.
// It is never mutated after capture.
type CapturedImage struct {
	ID         string    `json:"id"`
	LocalURI   string    `json:"local_uri"`
	MimeType   MimeType  `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// AnalysisRequest carries exactly one image representation
type AnalysisRequest struct {
	Image       *CapturedImage `json:"-"`
	ImageBase64 string         `json:"image,omitempty"`
}

// Validate checks that exactly one representation is populated
func (r AnalysisRequest) Validate() error {
	hasRef := r.Image != nil
	hasInline := r.ImageBase64 != ""
	switch {
	case hasRef && hasInline:
		return errors.New("analysis request carries both a file reference and inline data")
	case !hasRef && !hasInline:
		return errors.New("analysis request carries no image")
	}
	return nil
}

// Recommendation holds the sommelier scores and notes for one wine
type Recommendation struct {
	Rating         float64 `json:"rating"`
	MatchScore     float64 `json:"match_score"`
	TastingNotes   string  `json:"tasting_notes"`
	FoodPairing    string  `json:"food_pairing"`
	WhyRecommended string  `json:"why_recommended"`
	PriceEstimate  *string `json:"price_estimate"`
}

// Wine is one recommendation produced by the backend
type Wine struct {
	Wineries       []string       `json:"wineries"`
	Name           string         `json:"name"`
	Year           *string        `json:"year"`
	Varietal       string         `json:"varietal"`
	Region         *string        `json:"region"`
	Recommendation Recommendation `json:"recommendation"`
}

// ResultKind tags which payload of a Result is populated
type ResultKind int

const (
	KindDescription ResultKind = iota + 1
	KindWineList
	KindInvalid
	KindError
)

func (k ResultKind) String() string {
	switch k {
	case KindDescription:
		return "description"
	case KindWineList:
		return "wine_list"
	case KindInvalid:
		return "invalid"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the outcome of one analysis call
type Result struct {
	Kind        ResultKind          `json:"kind"`
	Description string              `json:"description,omitempty"`
	Wines       []Wine              `json:"wines,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	Message     string              `json:"message,omitempty"`
	Failure     apperrors.Kind      `json:"failure,omitempty"`
	StatusCode  int                 `json:"status_code,omitempty"`
	Err         *apperrors.AppError `json:"-"`
}

// DescriptionResult wraps free-text output
func DescriptionResult(text string) Result {
	return Result{Kind: KindDescription, Description: text}
}

// WineListResult wraps a non-empty recommendation list
func WineListResult(wines []Wine) Result {
	return Result{Kind: KindWineList, Wines: wines}
}

// InvalidResult wraps a semantic rejection (InvalidInput or EmptyResult)
func InvalidResult(err *apperrors.AppError) Result {
	return Result{Kind: KindInvalid, Reason: err.Message, Failure: err.Kind, Err: err}
}

// ErrorResult wraps a transport or HTTP failure
func ErrorResult(err *apperrors.AppError) Result {
	return Result{
		Kind:       KindError,
		Message:    err.Message,
		Failure:    err.Kind,
		StatusCode: err.StatusCode,
		Err:        err,
	}
}

// IsEmpty reports whether the result is the "nothing extracted" sibling of Invalid
func (r Result) IsEmpty() bool {
	return r.Kind == KindInvalid && r.Failure == apperrors.KindEmptyResult
}
