// Package sommelier wires the capture sources, the analysis backend and the
// recommendation store into one session.
//
// Basic usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	session, err := sommelier.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer session.Close()
//
//	outcome, err := session.AnalyzeFile(ctx, "label.jpg")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(outcome.Notice.Title)
//
// A session owns a single flow.Router, so one round trip runs at a time.
// Recommendations persist across sessions through the configured store.
package sommelier

import (
	"context"
	"errors"
	"fmt"

	"github.com/menta2k/wine-sommelier/internal/config"
	"github.com/menta2k/wine-sommelier/internal/logger"
	"github.com/menta2k/wine-sommelier/pkg/analysis"
	"github.com/menta2k/wine-sommelier/pkg/capture"
	"github.com/menta2k/wine-sommelier/pkg/flow"
	"github.com/menta2k/wine-sommelier/pkg/render"
	"github.com/menta2k/wine-sommelier/pkg/store"
	"github.com/menta2k/wine-sommelier/pkg/types"
	"github.com/menta2k/wine-sommelier/pkg/upload"
	"github.com/menta2k/wine-sommelier/pkg/vision"
)

// Version of the sommelier client
const Version = "1.0.0"

// VisionProfile routes analysis straight to a vision model instead of the backend
const VisionProfile = "vision"

// Session is one configured capture-to-recommendation client
type Session struct {
	cfg       *config.Config
	processor *capture.Processor
	gate      capture.PermissionGate
	analyzer  analysis.Analyzer
	client    *analysis.Client
	store     *store.ResultStore
	router    *flow.Router
	metrics   *flow.MetricsObserver
}

// Option customizes a Session
type Option func(*sessionOptions)

type sessionOptions struct {
	gate     capture.PermissionGate
	analyzer analysis.Analyzer
	shape    upload.Shape
	store    *store.ResultStore
}

// WithPermissionGate replaces the default gate, which grants everything
func WithPermissionGate(g capture.PermissionGate) Option {
	return func(o *sessionOptions) { o.gate = g }
}

// WithAnalyzer replaces the configured analyzer; shape is the request shape it expects
func WithAnalyzer(a analysis.Analyzer, shape upload.Shape) Option {
	return func(o *sessionOptions) {
		o.analyzer = a
		o.shape = shape
	}
}

// WithStore replaces the configured result store
func WithStore(s *store.ResultStore) Option {
	return func(o *sessionOptions) { o.store = s }
}

// Outcome is the finished state of one round trip with its user-facing notice
type Outcome struct {
	State  flow.State
	Result types.Result
	Notice render.Notice
}

// New creates a session from configuration
func New(cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.gate == nil {
		o.gate = capture.NewStaticGate(capture.Camera, capture.MediaLibrary)
	}

	s := &Session{
		cfg:       cfg,
		processor: capture.NewProcessor(cfg.Capture.MinImageSize),
		gate:      o.gate,
		metrics:   flow.NewMetricsObserver(),
	}

	shape := o.shape
	s.analyzer = o.analyzer
	if s.analyzer == nil {
		var err error
		shape, err = s.buildAnalyzer()
		if err != nil {
			return nil, err
		}
	}

	s.store = o.store
	if s.store == nil {
		st, err := store.Open(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open result store: %w", err)
		}
		s.store = st
	}

	inline := capture.InlineEncoder{
		Processor:    s.processor,
		MaxDimension: cfg.Analysis.InlineMaxDimension,
		Quality:      cfg.Capture.Quality,
	}

	policy := flow.DropLate
	if cfg.Analysis.PersistLate {
		policy = flow.PersistLate
	}

	s.router = flow.NewRouter(upload.NewEncoder(shape, inline), s.analyzer, s.store, flow.Options{
		LatePolicy:   policy,
		TransientDir: cfg.Capture.TransientDir,
		Observers:    []flow.Observer{flow.NewLoggingObserver(logger.Logger), s.metrics},
	})

	logger.WithField("profile", cfg.Analysis.Profile).WithField("store", cfg.Store.Backend).Debug("Session ready")
	return s, nil
}

func (s *Session) buildAnalyzer() (upload.Shape, error) {
	if s.cfg.Analysis.Profile == VisionProfile {
		backend, err := vision.NewBackend(s.cfg.Vision)
		if err != nil {
			return 0, fmt.Errorf("vision backend: %w", err)
		}
		s.analyzer = vision.NewDescriber(backend, vision.Mode(s.cfg.Vision.Mode), s.cfg.AnalysisTimeout())
		return upload.InlineBase64, nil
	}

	profile, err := analysis.ProfileByName(s.cfg.Analysis.Profile)
	if err != nil {
		return 0, err
	}
	client, err := analysis.NewClient(s.cfg.BaseURL(), profile,
		analysis.WithTimeout(s.cfg.AnalysisTimeout()),
		analysis.WithProbeTimeout(s.cfg.ProbeTimeout()),
	)
	if err != nil {
		return 0, err
	}
	s.client = client
	s.analyzer = client
	return profile.Shape, nil
}

// Router exposes the state machine for interactive front ends
func (s *Session) Router() *flow.Router {
	return s.router
}

// Metrics returns the counters gathered so far
func (s *Session) Metrics() flow.Metrics {
	return s.metrics.Snapshot()
}

func (s *Session) captureOptions() capture.Options {
	return capture.Options{
		Quality:      s.cfg.Capture.Quality,
		TransientDir: s.cfg.Capture.TransientDir,
		CropToAspect: s.cfg.Capture.CropToAspect,
	}
}

// Camera returns a source that shoots through the given shutter
func (s *Session) Camera(shutter capture.Shutter) capture.Source {
	return capture.NewCameraSource(s.gate, shutter, s.processor, s.captureOptions())
}

// Library returns a source that picks through the given picker
func (s *Session) Library(picker capture.Picker) capture.Source {
	return capture.NewLibrarySource(s.gate, picker, s.processor, s.captureOptions())
}

// Run performs one full round trip with the given source: begin, capture,
// confirm and analyze. Capture errors are returned with the router left in
// Capturing; call Router().Dismiss to abandon the flow. When a newer flow began
// during the analysis, flow.ErrSuperseded is returned with the router's current
// state and no notice.
func (s *Session) Run(ctx context.Context, source capture.Source) (Outcome, error) {
	if err := s.router.Begin(); err != nil {
		return Outcome{}, err
	}
	if _, err := s.router.Capture(ctx, source); err != nil {
		return Outcome{State: s.router.State()}, err
	}

	result, err := s.router.Analyze(ctx)
	if errors.Is(err, flow.ErrSuperseded) {
		// the router already belongs to the newer flow
		return Outcome{State: s.router.State(), Result: result}, err
	}
	if err != nil {
		return Outcome{State: s.router.State()}, err
	}

	state := flow.StateFor(result)
	return Outcome{State: state, Result: result, Notice: render.NoticeFor(state, result)}, nil
}

// AnalyzeFile runs a round trip on an image file or URL picked from the library
func (s *Session) AnalyzeFile(ctx context.Context, path string) (Outcome, error) {
	return s.Run(ctx, s.Library(capture.PathPicker(path)))
}

// Recommendations returns the last persisted wine list, empty when none was saved
func (s *Session) Recommendations(ctx context.Context) []types.Wine {
	return s.store.Load(ctx)
}

// Probe checks that the analysis backend answers its health endpoint.
// Vision-model sessions have no health endpoint and always succeed.
func (s *Session) Probe(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Probe(ctx)
}

// Close releases the store
func (s *Session) Close() error {
	return s.store.Close()
}
