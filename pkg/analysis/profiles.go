package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/menta2k/wine-sommelier/internal/errors"
	"github.com/menta2k/wine-sommelier/pkg/types"
	"github.com/menta2k/wine-sommelier/pkg/upload"
)

// Default user-visible reasons when the backend gives none
const (
	DefaultInvalidReason     = "Please take a photo of a wine bottle or wine menu."
	DefaultEmptyReason       = "Valid wine image, but no specific wines could be identified."
	DefaultDescriptionReason = "No description received from the analysis service."
)

// Profile describes one backend endpoint: where it lives, which wire shape it
// accepts, and how a 2xx body maps to a Result
type Profile struct {
	Name  string
	Path  string
	Shape upload.Shape
	// Decode maps a 2xx body; ok is false when the body is not the expected JSON
	Decode func(body []byte) (result types.Result, ok bool)
}

// WineImage is the structured recommendation endpoint
var WineImage = Profile{
	Name:   "wine-image",
	Path:   "/api/analyze-wine-image",
	Shape:  upload.Multipart,
	Decode: decodeWineList,
}

// ImageFile is the multipart free-text description endpoint
var ImageFile = Profile{
	Name:   "image-file",
	Path:   "/analyze-image-file",
	Shape:  upload.Multipart,
	Decode: decodeDescription,
}

// InlineImage is the base64 free-text description endpoint
var InlineImage = Profile{
	Name:   "inline-image",
	Path:   "/analyze-image",
	Shape:  upload.InlineBase64,
	Decode: decodeDescription,
}

// ProfileByName looks up a built-in profile
func ProfileByName(name string) (Profile, error) {
	for _, p := range []Profile{WineImage, ImageFile, InlineImage} {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("unknown analysis profile: %q", name)
}

// WineListResponse is the body of the recommendation endpoint
type WineListResponse struct {
	Valid   bool         `json:"valid"`
	Wines   []types.Wine `json:"wines"`
	Error   string       `json:"error,omitempty"`
	Message string       `json:"message,omitempty"`
}

// DescriptionResponse is the body of both description endpoints
type DescriptionResponse struct {
	Success     bool   `json:"success"`
	Description string `json:"description"`
	Error       string `json:"error,omitempty"`
}

func decodeWineList(body []byte) (types.Result, bool) {
	var resp WineListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return types.Result{}, false
	}
	return WineListOutcome(resp), true
}

// WineListOutcome maps a decoded recommendation body to a Result
func WineListOutcome(resp WineListResponse) types.Result {
	if !resp.Valid {
		return types.InvalidResult(apperrors.NewInvalidInput(firstNonEmpty(resp.Message, resp.Error, DefaultInvalidReason)))
	}
	if len(resp.Wines) == 0 {
		return types.InvalidResult(apperrors.NewEmptyResult(firstNonEmpty(resp.Error, DefaultEmptyReason)))
	}
	return types.WineListResult(resp.Wines)
}

func decodeDescription(body []byte) (types.Result, bool) {
	var resp DescriptionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return types.Result{}, false
	}
	if !resp.Success {
		return types.InvalidResult(apperrors.NewInvalidInput(firstNonEmpty(resp.Error, DefaultInvalidReason))), true
	}
	text := strings.TrimSpace(resp.Description)
	if text == "" {
		return types.InvalidResult(apperrors.NewEmptyResult(DefaultDescriptionReason)), true
	}
	return types.DescriptionResult(text), true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
