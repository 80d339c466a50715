package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/menta2k/wine-sommelier/internal/errors"
	"github.com/menta2k/wine-sommelier/internal/logger"
	"github.com/menta2k/wine-sommelier/internal/utils"
	"github.com/menta2k/wine-sommelier/pkg/types"
	"github.com/menta2k/wine-sommelier/pkg/upload"
)

// ErrCanceled is returned when the user backs out of a picker or shutter
var ErrCanceled = errors.New("capture canceled")

// Source produces a locally addressable image
type Source interface {
	Capture(ctx context.Context) (*types.CapturedImage, error)
}

// Shutter yields one frame from a camera
type Shutter interface {
	Shoot(ctx context.Context) (image.Image, error)
}

// Picker yields the path or URL of an image chosen from a library
type Picker interface {
	Pick(ctx context.Context) (string, error)
}

// PathPicker always picks the same path or URL
type PathPicker string

func (p PathPicker) Pick(_ context.Context) (string, error) {
	if strings.TrimSpace(string(p)) == "" {
		return "", ErrCanceled
	}
	return string(p), nil
}

// FileShutter reads a frame from disk in place of a device camera
type FileShutter struct {
	Path      string
	Processor *Processor
}

func (s FileShutter) Shoot(_ context.Context) (image.Image, error) {
	return s.Processor.LoadImage(s.Path)
}

// Options configures both capture sources
type Options struct {
	Quality      int
	TransientDir string
	CropToAspect bool
}

// CameraSource captures a frame through the shutter and stores it as JPEG
type CameraSource struct {
	gate      PermissionGate
	shutter   Shutter
	processor *Processor
	opts      Options
}

// NewCameraSource creates a camera-backed source
func NewCameraSource(gate PermissionGate, shutter Shutter, processor *Processor, opts Options) *CameraSource {
	return &CameraSource{gate: gate, shutter: shutter, processor: processor, opts: withDefaults(opts)}
}

// Capture takes one picture. A denied camera grant yields PermissionDenied.
func (s *CameraSource) Capture(ctx context.Context) (*types.CapturedImage, error) {
	if err := ensureGranted(ctx, s.gate, Camera); err != nil {
		return nil, err
	}

	frame, err := s.shutter.Shoot(ctx)
	if err != nil {
		return nil, fmt.Errorf("shutter: %w", err)
	}
	if err := s.processor.Validate(frame); err != nil {
		return nil, err
	}

	return persist(s.processor, s.opts, frame, "jpg")
}

// LibrarySource picks an existing image from a path or URL
type LibrarySource struct {
	gate      PermissionGate
	picker    Picker
	processor *Processor
	opts      Options
}

// NewLibrarySource creates a gallery-backed source
func NewLibrarySource(gate PermissionGate, picker Picker, processor *Processor, opts Options) *LibrarySource {
	return &LibrarySource{gate: gate, picker: picker, processor: processor, opts: withDefaults(opts)}
}

// Capture picks one image. The original format is kept when the backend accepts it.
func (s *LibrarySource) Capture(ctx context.Context) (*types.CapturedImage, error) {
	if err := ensureGranted(ctx, s.gate, MediaLibrary); err != nil {
		return nil, err
	}

	ref, err := s.picker.Pick(ctx)
	if err != nil {
		return nil, err
	}

	img, err := s.processor.LoadImageSmart(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ref, err)
	}
	if err := s.processor.Validate(img); err != nil {
		return nil, err
	}

	if s.opts.CropToAspect {
		img = s.processor.CropToAspect(img, 4, 3)
	}

	return persist(s.processor, s.opts, img, upload.Extension(ref))
}

// Discard removes a captured image from transient storage.
// Images outside the transient directory are left alone.
func Discard(img *types.CapturedImage, transientDir string) error {
	if img == nil {
		return nil
	}
	dir, err := filepath.Abs(transientDir)
	if err != nil {
		return err
	}
	path, err := filepath.Abs(img.LocalURI)
	if err != nil {
		return err
	}
	if filepath.Dir(path) != dir {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func ensureGranted(ctx context.Context, gate PermissionGate, c Capability) error {
	if gate.Status(c) {
		return nil
	}
	ok, err := gate.Request(ctx, c)
	if err != nil {
		return apperrors.NewPermissionDenied(fmt.Sprintf("%s permission request failed", c), err)
	}
	if !ok {
		return apperrors.NewPermissionDenied(fmt.Sprintf("%s permission is required", c), nil)
	}
	return nil
}

func persist(p *Processor, opts Options, img image.Image, ext string) (*types.CapturedImage, error) {
	if err := utils.EnsureDir(opts.TransientDir); err != nil {
		return nil, fmt.Errorf("create transient dir: %w", err)
	}

	id := uuid.NewString()
	path := filepath.Join(opts.TransientDir, fmt.Sprintf("capture-%s.%s", id, ext))
	if err := p.Save(img, path, ext, opts.Quality); err != nil {
		return nil, fmt.Errorf("save capture: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	captured := &types.CapturedImage{
		ID:         id,
		LocalURI:   path,
		MimeType:   types.MimeTypeForExtension(ext),
		SizeBytes:  info.Size(),
		CapturedAt: time.Now().UTC(),
	}

	logger.WithFields(logrus.Fields{
		"capture_id": id,
		"mime_type":  captured.MimeType,
		"size":       utils.FormatFileSize(info.Size()),
	}).Debug("Image captured")

	return captured, nil
}

func withDefaults(opts Options) Options {
	if opts.Quality < 1 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	if opts.TransientDir == "" {
		opts.TransientDir = DefaultTransientDir()
	}
	return opts
}
