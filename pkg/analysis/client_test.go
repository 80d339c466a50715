package analysis_test

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/menta2k/wine-sommelier/internal/backend"
	apperrors "github.com/menta2k/wine-sommelier/internal/errors"
	"github.com/menta2k/wine-sommelier/pkg/analysis"
	"github.com/menta2k/wine-sommelier/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func captured(t *testing.T) *types.CapturedImage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.jpg")
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0600); err != nil {
		t.Fatal(err)
	}
	return &types.CapturedImage{ID: "c1", LocalURI: path, MimeType: types.MimeJPEG}
}

func newClient(t *testing.T, url string, p analysis.Profile, opts ...analysis.Option) *analysis.Client {
	t.Helper()
	c, err := analysis.NewClient(url, p, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWineImageMapping(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantKind    types.ResultKind
		wantFailure apperrors.Kind
		wantText    string
	}{
		{
			name:     "wines",
			status:   200,
			body:     `{"valid":true,"wines":[{"wineries":["Opus One Winery"],"name":"Opus One","year":"2018","varietal":"Bordeaux Blend","region":null,"recommendation":{"rating":90,"match_score":85,"tasting_notes":"","food_pairing":"","why_recommended":"","price_estimate":null}}]}`,
			wantKind: types.KindWineList,
		},
		{
			name:        "empty wines",
			status:      200,
			body:        `{"valid":true,"wines":[]}`,
			wantKind:    types.KindInvalid,
			wantFailure: apperrors.KindEmptyResult,
			wantText:    analysis.DefaultEmptyReason,
		},
		{
			name:        "invalid with message",
			status:      200,
			body:        `{"valid":false,"wines":[],"message":"Not a wine image"}`,
			wantKind:    types.KindInvalid,
			wantFailure: apperrors.KindInvalidInput,
			wantText:    "Not a wine image",
		},
		{
			name:        "invalid falls back to error",
			status:      200,
			body:        `{"valid":false,"error":"blurry"}`,
			wantKind:    types.KindInvalid,
			wantFailure: apperrors.KindInvalidInput,
			wantText:    "blurry",
		},
		{
			name:        "invalid default",
			status:      200,
			body:        `{"valid":false}`,
			wantKind:    types.KindInvalid,
			wantFailure: apperrors.KindInvalidInput,
			wantText:    analysis.DefaultInvalidReason,
		},
		{
			name:        "server error",
			status:      500,
			body:        `{"error":"boom"}`,
			wantKind:    types.KindError,
			wantFailure: apperrors.KindHTTPError,
			wantText:    "boom",
		},
		{
			name:        "malformed body",
			status:      200,
			body:        `<html>gateway</html>`,
			wantKind:    types.KindError,
			wantFailure: apperrors.KindTransportFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.status, tt.body)
			c := newClient(t, srv.URL, analysis.WineImage)

			res := c.Analyze(context.Background(), types.AnalysisRequest{Image: captured(t)})
			if res.Kind != tt.wantKind {
				t.Fatalf("kind = %s, want %s", res.Kind, tt.wantKind)
			}
			if res.Failure != tt.wantFailure {
				t.Errorf("failure = %q, want %q", res.Failure, tt.wantFailure)
			}
			if tt.wantText != "" && res.Reason != tt.wantText && res.Message != tt.wantText {
				t.Errorf("text = %q/%q, want %q", res.Reason, res.Message, tt.wantText)
			}
			if tt.wantFailure == apperrors.KindHTTPError && res.StatusCode != tt.status {
				t.Errorf("status code = %d", res.StatusCode)
			}
		})
	}
}

func TestDescriptionMapping(t *testing.T) {
	srv := serve(t, 200, `{"success":true,"description":"  A red wine label.  "}`)
	res := newClient(t, srv.URL, analysis.ImageFile).Analyze(context.Background(), types.AnalysisRequest{Image: captured(t)})
	if res.Kind != types.KindDescription || res.Description != "A red wine label." {
		t.Errorf("unexpected result %+v", res)
	}

	srv = serve(t, 200, `{"success":false,"description":"","error":"No image provided"}`)
	res = newClient(t, srv.URL, analysis.ImageFile).Analyze(context.Background(), types.AnalysisRequest{Image: captured(t)})
	if res.Kind != types.KindInvalid || res.Reason != "No image provided" {
		t.Errorf("unexpected result %+v", res)
	}

	srv = serve(t, 200, `{"success":true,"description":"   "}`)
	res = newClient(t, srv.URL, analysis.ImageFile).Analyze(context.Background(), types.AnalysisRequest{Image: captured(t)})
	if !res.IsEmpty() {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestWireContract(t *testing.T) {
	var gotField, gotFile, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analyze-wine-image" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotRequestID = r.Header.Get(analysis.RequestIDHeader)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		for field, files := range r.MultipartForm.File {
			gotField = field
			gotFile = files[0].Filename
		}
		io.WriteString(w, `{"valid":true,"wines":[]}`)
	}))
	defer srv.Close()

	newClient(t, srv.URL+"/", analysis.WineImage).Analyze(context.Background(), types.AnalysisRequest{Image: captured(t)})

	if gotField != "image" || gotFile != "image.jpg" {
		t.Errorf("got field %q file %q", gotField, gotFile)
	}
	if gotRequestID == "" {
		t.Error("expected a request id header")
	}
}

func TestShapeMismatch(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	res := newClient(t, srv.URL, analysis.InlineImage).Analyze(context.Background(), types.AnalysisRequest{Image: captured(t)})
	if res.Kind != types.KindInvalid {
		t.Errorf("expected Invalid for a mismatched shape, got %s", res.Kind)
	}
	if called {
		t.Error("no request should be sent for a mismatched shape")
	}
}

func TestTimeoutIsTransportFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newClient(t, srv.URL, analysis.WineImage, analysis.WithTimeout(50*time.Millisecond))
	start := time.Now()
	res := c.Analyze(context.Background(), types.AnalysisRequest{Image: captured(t)})

	if res.Kind != types.KindError || res.Failure != apperrors.KindTransportFailure {
		t.Fatalf("expected TransportFailure, got %+v", res)
	}
	if !strings.Contains(res.Message, "timed out") {
		t.Errorf("unexpected message %q", res.Message)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline cause, got %v", res.Err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout ceiling not applied")
	}
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := newClient(t, url, analysis.WineImage).Analyze(context.Background(), types.AnalysisRequest{Image: captured(t)})
	if res.Failure != apperrors.KindTransportFailure {
		t.Errorf("expected TransportFailure, got %+v", res)
	}
}

func TestAgainstMockBackend(t *testing.T) {
	srv := httptest.NewServer(backend.NewRouter(backend.Options{}))
	defer srv.Close()

	res := newClient(t, srv.URL, analysis.WineImage).Analyze(context.Background(), types.AnalysisRequest{Image: captured(t)})
	if res.Kind != types.KindWineList || len(res.Wines) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	w := res.Wines[0]
	if w.Name != "Opus One 2018" || w.Recommendation.MatchScore != 85 || w.Recommendation.Rating != 90 {
		t.Errorf("unexpected wine %+v", w)
	}

	inline := types.AnalysisRequest{ImageBase64: base64.StdEncoding.EncodeToString([]byte("jpeg"))}
	res = newClient(t, srv.URL, analysis.InlineImage).Analyze(context.Background(), inline)
	if res.Kind != types.KindDescription || res.Description != backend.MockDescription {
		t.Errorf("unexpected inline result %+v", res)
	}
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(backend.NewRouter(backend.Options{}))
	defer srv.Close()
	if err := newClient(t, srv.URL, analysis.WineImage).Probe(context.Background()); err != nil {
		t.Errorf("Probe failed: %v", err)
	}

	bad := serve(t, http.StatusServiceUnavailable, `{}`)
	err := newClient(t, bad.URL, analysis.WineImage).Probe(context.Background())
	if !apperrors.IsKind(err, apperrors.KindHTTPError) {
		t.Errorf("expected HTTPError, got %v", err)
	}

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer slow.Close()
	err = newClient(t, slow.URL, analysis.WineImage, analysis.WithProbeTimeout(50*time.Millisecond)).Probe(context.Background())
	if !apperrors.IsKind(err, apperrors.KindTransportFailure) {
		t.Errorf("expected TransportFailure, got %v", err)
	}
}

func TestProfileByName(t *testing.T) {
	for _, name := range []string{"wine-image", "image-file", "inline-image"} {
		p, err := analysis.ProfileByName(name)
		if err != nil || p.Name != name {
			t.Errorf("ProfileByName(%q) = %+v, %v", name, p, err)
		}
	}
	if _, err := analysis.ProfileByName("vision"); err == nil {
		t.Error("vision is not an HTTP profile")
	}
}
