package upload

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/menta2k/wine-sommelier/pkg/types"
)

func TestExtension(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"/tmp/photo.jpg", "jpg"},
		{"/tmp/photo.JPEG", "jpg"},
		{"/tmp/photo.png", "png"},
		{"/tmp/photo.webp", "webp"},
		{"/tmp/photo.gif", "gif"},
		{"/tmp/photo.bmp", "bmp"},
		{"/tmp/photo.heic", "jpg"},
		{"/tmp/photo", "jpg"},
		{"/tmp/dir.png/photo", "jpg"},
		{"https://cdn.example.com/a/label.png?size=large#top", "png"},
		{"file:///var/mobile/Media/IMG_0001.Jpg", "jpg"},
		{"", "jpg"},
	}

	for _, tt := range tests {
		if got := Extension(tt.uri); got != tt.want {
			t.Errorf("Extension(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("/x/y/bottle.png"); got != "image.png" {
		t.Errorf("Filename = %q, want image.png", got)
	}
}

func writeCapture(t *testing.T, name string, data []byte) *types.CapturedImage {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return &types.CapturedImage{ID: "test", LocalURI: path, MimeType: types.MimeTypeForExtension(Extension(path))}
}

func TestEncodeMultipart(t *testing.T) {
	img := writeCapture(t, "bottle.png", []byte("png-bytes"))

	req, err := NewEncoder(Multipart, nil).Encode(img)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if req.Image != img || req.ImageBase64 != "" {
		t.Fatalf("multipart encoder should carry only the file reference, got %+v", req)
	}

	contentType, body, err := Body(req)
	if err != nil {
		t.Fatalf("Body failed: %v", err)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		t.Fatal(err)
	}
	if mediaType != "multipart/form-data" {
		t.Fatalf("unexpected content type %q", mediaType)
	}

	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	parts := 0
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		parts++

		if part.FormName() != "image" {
			t.Errorf("field name = %q, want image", part.FormName())
		}
		if part.FileName() != "image.png" {
			t.Errorf("filename = %q, want image.png", part.FileName())
		}
		if ct := part.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("part content type = %q, want image/png", ct)
		}
		data, _ := io.ReadAll(part)
		if string(data) != "png-bytes" {
			t.Errorf("part body = %q", data)
		}
	}
	if parts != 1 {
		t.Errorf("expected exactly one part, got %d", parts)
	}
}

func TestEncodeInline(t *testing.T) {
	img := writeCapture(t, "menu.jpg", []byte("jpeg-bytes"))

	req, err := NewEncoder(InlineBase64, nil).Encode(img)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if req.Image != nil {
		t.Fatal("inline encoder should not carry the file reference")
	}

	contentType, body, err := Body(req)
	if err != nil {
		t.Fatalf("Body failed: %v", err)
	}
	if contentType != "application/json" {
		t.Errorf("content type = %q", contentType)
	}

	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload) != 1 {
		t.Errorf("expected a single key, got %v", payload)
	}
	decoded, err := base64.StdEncoding.DecodeString(payload["image"])
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != "jpeg-bytes" {
		t.Errorf("decoded image = %q", decoded)
	}
}

type fixedInline string

func (f fixedInline) EncodeFile(string) (string, error) { return string(f), nil }

func TestEncodeInlineUsesCustomEncoder(t *testing.T) {
	img := writeCapture(t, "menu.jpg", []byte("x"))
	req, err := NewEncoder(InlineBase64, fixedInline("c2hydW5r")).Encode(img)
	if err != nil {
		t.Fatal(err)
	}
	if req.ImageBase64 != "c2hydW5r" {
		t.Errorf("expected custom inline data, got %q", req.ImageBase64)
	}
}

func TestBodyRejectsAmbiguousRequest(t *testing.T) {
	img := writeCapture(t, "a.jpg", []byte("x"))

	if _, _, err := Body(types.AnalysisRequest{}); err == nil {
		t.Error("expected error for empty request")
	}
	_, _, err := Body(types.AnalysisRequest{Image: img, ImageBase64: "eA=="})
	if err == nil || !strings.Contains(err.Error(), "both") {
		t.Errorf("expected error for request with both representations, got %v", err)
	}
}

func TestEncodeMissingFile(t *testing.T) {
	img := &types.CapturedImage{LocalURI: filepath.Join(t.TempDir(), "gone.jpg")}
	if _, err := NewEncoder(InlineBase64, nil).Encode(img); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := NewEncoder(Multipart, nil).Encode(nil); err == nil {
		t.Error("expected error for nil image")
	}
}
