// Package upload turns a captured image into the request body the analysis
// backend expects.
//
// Two wire shapes exist and a deployment uses exactly one of them: a multipart
// form with a single file field named "image", or a JSON object carrying the
// image as base64. Switching shapes is a protocol change on the backend side.
package upload

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"strings"

	"github.com/menta2k/wine-sommelier/pkg/types"
)

// FieldName is the multipart form field carrying the image
const FieldName = "image"

// Shape is the wire representation of an analysis request
type Shape int

const (
	Multipart Shape = iota
	InlineBase64
)

func (s Shape) String() string {
	if s == InlineBase64 {
		return "inline-base64"
	}
	return "multipart"
}

var recognized = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "bmp": true, "webp": true,
}

// Extension derives the upload extension from a local URI or URL.
// "jpeg" is normalized to "jpg"; anything unrecognized or missing yields "jpg".
func Extension(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	if i := strings.LastIndexAny(uri, `/\`); i >= 0 {
		uri = uri[i+1:]
	}

	dot := strings.LastIndex(uri, ".")
	if dot < 0 {
		return "jpg"
	}
	ext := strings.ToLower(uri[dot+1:])
	if !recognized[ext] {
		return "jpg"
	}
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}

// Filename is the synthesized upload filename for a URI
func Filename(uri string) string {
	return "image." + Extension(uri)
}

// InlineEncoder produces base64 image data for the inline shape
type InlineEncoder interface {
	EncodeFile(path string) (string, error)
}

// RawInline base64-encodes the file bytes unchanged
type RawInline struct{}

func (RawInline) EncodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Encoder builds analysis requests for one wire shape
type Encoder struct {
	shape  Shape
	inline InlineEncoder
}

// NewEncoder creates an encoder. inline may be nil for the multipart shape;
// it defaults to RawInline.
func NewEncoder(shape Shape, inline InlineEncoder) *Encoder {
	if inline == nil {
		inline = RawInline{}
	}
	return &Encoder{shape: shape, inline: inline}
}

// Shape returns the wire shape this encoder produces
func (e *Encoder) Shape() Shape {
	return e.shape
}

// Encode packages a captured image into exactly one request representation
func (e *Encoder) Encode(img *types.CapturedImage) (types.AnalysisRequest, error) {
	if img == nil {
		return types.AnalysisRequest{}, fmt.Errorf("no captured image")
	}

	if e.shape == Multipart {
		return types.AnalysisRequest{Image: img}, nil
	}

	data, err := e.inline.EncodeFile(img.LocalURI)
	if err != nil {
		return types.AnalysisRequest{}, fmt.Errorf("encode inline image: %w", err)
	}
	return types.AnalysisRequest{ImageBase64: data}, nil
}

// Body renders a request as an HTTP body and its content type
func Body(req types.AnalysisRequest) (string, []byte, error) {
	if err := req.Validate(); err != nil {
		return "", nil, err
	}

	if req.Image != nil {
		return multipartBody(req.Image)
	}

	data, err := json.Marshal(map[string]string{"image": req.ImageBase64})
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return "application/json", data, nil
}

func multipartBody(img *types.CapturedImage) (string, []byte, error) {
	data, err := os.ReadFile(img.LocalURI)
	if err != nil {
		return "", nil, fmt.Errorf("read captured image: %w", err)
	}

	ext := Extension(img.LocalURI)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldName, "image."+ext))
	header.Set("Content-Type", "image/"+ext)

	part, err := w.CreatePart(header)
	if err != nil {
		return "", nil, err
	}
	if _, err := part.Write(data); err != nil {
		return "", nil, err
	}
	if err := w.Close(); err != nil {
		return "", nil, err
	}

	return w.FormDataContentType(), buf.Bytes(), nil
}
