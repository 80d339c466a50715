package capture

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	apperrors "github.com/menta2k/wine-sommelier/internal/errors"
	"github.com/menta2k/wine-sommelier/pkg/types"
)

// createTestImage creates a bottle-like test image: a dark label on a light background
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 {
				img.Set(x, y, color.RGBA{90, 20, 40, 255})
			} else {
				img.Set(x, y, color.RGBA{240, 235, 225, 255})
			}
		}
	}
	return img
}

func writeTestImage(t *testing.T, name string, width, height int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := imaging.Save(createTestImage(width, height), path); err != nil {
		t.Fatalf("failed to write test image: %v", err)
	}
	return path
}

func TestCameraSourceCapture(t *testing.T) {
	src := writeTestImage(t, "frame.png", 320, 240)
	processor := NewProcessor(64)
	transient := t.TempDir()

	camera := NewCameraSource(
		NewStaticGate(Camera),
		FileShutter{Path: src, Processor: processor},
		processor,
		Options{TransientDir: transient},
	)

	img, err := camera.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if img.ID == "" {
		t.Error("expected a capture id")
	}
	if img.MimeType != types.MimeJPEG {
		t.Errorf("camera frames should be jpeg, got %s", img.MimeType)
	}
	if filepath.Dir(img.LocalURI) != transient {
		t.Errorf("capture written outside the transient dir: %s", img.LocalURI)
	}
	if !strings.HasSuffix(img.LocalURI, ".jpg") {
		t.Errorf("unexpected capture path %s", img.LocalURI)
	}
	if img.SizeBytes <= 0 {
		t.Error("expected a positive size")
	}
	if img.CapturedAt.IsZero() {
		t.Error("expected a capture time")
	}
}

func TestCameraSourcePermissionDenied(t *testing.T) {
	processor := NewProcessor(64)
	camera := NewCameraSource(
		NewStaticGate(MediaLibrary),
		FileShutter{Path: "/does/not/matter.jpg", Processor: processor},
		processor,
		Options{TransientDir: t.TempDir()},
	)

	_, err := camera.Capture(context.Background())
	if !apperrors.IsKind(err, apperrors.KindPermissionDenied) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestCameraSourceAfterGrant(t *testing.T) {
	src := writeTestImage(t, "frame.png", 128, 128)
	processor := NewProcessor(64)
	gate := NewStaticGate()
	camera := NewCameraSource(gate, FileShutter{Path: src, Processor: processor}, processor, Options{TransientDir: t.TempDir()})

	if _, err := camera.Capture(context.Background()); err == nil {
		t.Fatal("expected denial before grant")
	}
	gate.Grant(Camera)
	if _, err := camera.Capture(context.Background()); err != nil {
		t.Fatalf("expected capture after grant, got %v", err)
	}
}

func TestLibrarySourceKeepsExtension(t *testing.T) {
	src := writeTestImage(t, "label.png", 200, 150)
	processor := NewProcessor(64)

	library := NewLibrarySource(NewStaticGate(MediaLibrary), PathPicker(src), processor, Options{TransientDir: t.TempDir()})
	img, err := library.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if img.MimeType != types.MimePNG {
		t.Errorf("expected png to be kept, got %s", img.MimeType)
	}
	if !strings.HasSuffix(img.LocalURI, ".png") {
		t.Errorf("unexpected capture path %s", img.LocalURI)
	}
}

func TestLibrarySourceCropsToFourThree(t *testing.T) {
	src := writeTestImage(t, "menu.jpg", 400, 200)
	processor := NewProcessor(64)

	library := NewLibrarySource(NewStaticGate(MediaLibrary), PathPicker(src), processor, Options{
		TransientDir: t.TempDir(),
		CropToAspect: true,
	})
	img, err := library.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	cropped, err := processor.LoadImage(img.LocalURI)
	if err != nil {
		t.Fatal(err)
	}
	b := cropped.Bounds()
	if b.Dx() != 266 || b.Dy() != 200 {
		t.Errorf("expected 266x200 after crop, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestLibrarySourceCanceledAndTooSmall(t *testing.T) {
	processor := NewProcessor(64)
	gate := NewStaticGate(MediaLibrary)

	_, err := NewLibrarySource(gate, PathPicker(""), processor, Options{TransientDir: t.TempDir()}).Capture(context.Background())
	if err != ErrCanceled {
		t.Errorf("expected ErrCanceled, got %v", err)
	}

	tiny := writeTestImage(t, "tiny.png", 10, 10)
	_, err = NewLibrarySource(gate, PathPicker(tiny), processor, Options{TransientDir: t.TempDir()}).Capture(context.Background())
	if err == nil || !strings.Contains(err.Error(), "too small") {
		t.Errorf("expected size validation error, got %v", err)
	}
}

func TestDiscard(t *testing.T) {
	transient := t.TempDir()
	src := writeTestImage(t, "frame.png", 100, 100)
	processor := NewProcessor(64)

	camera := NewCameraSource(NewStaticGate(Camera), FileShutter{Path: src, Processor: processor}, processor, Options{TransientDir: transient})
	img, err := camera.Capture(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if err := Discard(img, transient); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if _, err := os.Stat(img.LocalURI); !os.IsNotExist(err) {
		t.Error("expected transient file to be removed")
	}

	// A second discard is a no-op
	if err := Discard(img, transient); err != nil {
		t.Errorf("second Discard failed: %v", err)
	}

	// Files outside the transient dir are never removed
	outside := &types.CapturedImage{LocalURI: src}
	if err := Discard(outside, transient); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Error("library original should be kept")
	}
}

func TestPromptGate(t *testing.T) {
	var out strings.Builder
	gate := NewPromptGate(strings.NewReader("yes\nn\n"), &out)

	if gate.Status(Camera) {
		t.Fatal("nothing should be granted initially")
	}
	ok, err := gate.Request(context.Background(), Camera)
	if err != nil || !ok {
		t.Fatalf("expected grant, got %v %v", ok, err)
	}
	if !gate.Status(Camera) {
		t.Error("grant should be remembered")
	}

	ok, err = gate.Request(context.Background(), MediaLibrary)
	if err != nil || ok {
		t.Fatalf("expected denial, got %v %v", ok, err)
	}
	if !strings.Contains(out.String(), "media library") {
		t.Errorf("unexpected prompt %q", out.String())
	}
}

func TestInlineEncoderBoundsSize(t *testing.T) {
	src := writeTestImage(t, "big.png", 800, 400)
	processor := NewProcessor(64)

	enc := InlineEncoder{Processor: processor, MaxDimension: 200}
	data, err := enc.EncodeFile(src)
	if err != nil {
		t.Fatalf("EncodeFile failed: %v", err)
	}
	if data == "" {
		t.Fatal("expected base64 data")
	}
}
