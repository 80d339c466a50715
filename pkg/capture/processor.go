package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// DefaultQuality is the JPEG/WebP quality used for captured frames
const DefaultQuality = 80

// MaxDownloadBytes bounds an image fetched from a URL
const MaxDownloadBytes = 20 << 20

// DefaultTransientDir is where captures go when no directory is configured
func DefaultTransientDir() string {
	return filepath.Join(os.TempDir(), "wine-sommelier")
}

// Processor handles image decoding, validation and encoding for capture
type Processor struct {
	minImageSize int
	client       *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor(minImageSize int) *Processor {
	if minImageSize < 1 {
		minImageSize = 1
	}
	return &Processor{
		minImageSize: minImageSize,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// LoadImageFromURL downloads and loads an image from a URL. Bodies larger than
// MaxDownloadBytes are rejected.
func (p *Processor) LoadImageFromURL(ctx context.Context, imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Wine-Sommelier/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	imageData, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(imageData)) > MaxDownloadBytes {
		return nil, fmt.Errorf("image at %s exceeds %d bytes", imageURL, MaxDownloadBytes)
	}

	return p.decodeImageFromBytes(imageData)
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if img, err := p.decodeImageFromBytes(data); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(ctx, source)
	}
	return p.LoadImage(source)
}

// decodeImageFromBytes decodes an image from byte data with WebP support
func (p *Processor) decodeImageFromBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// Validate checks that an image meets the minimum size
func (p *Processor) Validate(img image.Image) error {
	b := img.Bounds()
	if b.Dx() < p.minImageSize || b.Dy() < p.minImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)", b.Dx(), b.Dy(), p.minImageSize)
	}
	return nil
}

// CropToAspect center-crops an image to the given aspect ratio without upscaling
func (p *Processor) CropToAspect(img image.Image, aw, ah int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w*ah == h*aw {
		return img
	}
	if w*ah > h*aw {
		w = h * aw / ah
	} else {
		h = w * ah / aw
	}
	return imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)
}

// Save writes an image to path in the given format (jpg, png, gif, bmp, webp)
func (p *Processor) Save(img image.Image, path, format string, quality int) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Quality: float32(quality)})
	case "png":
		return imaging.Save(img, path, imaging.PNGCompressionLevel(png.BestCompression))
	case "gif", "bmp":
		return imaging.Save(img, path)
	default:
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// EncodeBase64 converts an image to base64 for the inline request shape,
// shrinking the long side to maxDim when it is positive
func (p *Processor) EncodeBase64(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// InlineEncoder re-encodes a captured file for the inline request shape,
// bounding its long side so the JSON body stays small
type InlineEncoder struct {
	Processor    *Processor
	MaxDimension int
	Quality      int
}

// EncodeFile loads the file and returns it as base64, keeping png as png
func (e InlineEncoder) EncodeFile(path string) (string, error) {
	img, err := e.Processor.LoadImage(path)
	if err != nil {
		return "", err
	}
	format := "jpg"
	if strings.EqualFold(filepath.Ext(path), ".png") {
		format = "png"
	}
	quality := e.Quality
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	return e.Processor.EncodeBase64(img, format, e.MaxDimension, quality)
}
