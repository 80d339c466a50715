// Package flow drives one capture-to-recommendation round trip as a state
// machine and hands the analysis outcome to whoever displays it.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/menta2k/wine-sommelier/internal/errors"
	"github.com/menta2k/wine-sommelier/internal/logger"
	"github.com/menta2k/wine-sommelier/pkg/analysis"
	"github.com/menta2k/wine-sommelier/pkg/capture"
	"github.com/menta2k/wine-sommelier/pkg/types"
)

var (
	// ErrInvalidTransition is returned for an action the current state does not allow
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrControlsDisabled is returned for retake/analyze while an analysis is in flight
	ErrControlsDisabled = errors.New("controls are disabled while analyzing")
	// ErrSuperseded is returned by Analyze when a newer flow started before the result arrived
	ErrSuperseded = errors.New("analysis result superseded by a newer capture")
)

// LatePolicy decides what happens to a result whose flow was replaced
type LatePolicy int

const (
	// DropLate discards late results entirely
	DropLate LatePolicy = iota
	// PersistLate saves a late wine list to the store without touching the state
	PersistLate
)

func (p LatePolicy) String() string {
	if p == PersistLate {
		return "persist_late"
	}
	return "drop_late"
}

// Encoder packages a captured image into a request
type Encoder interface {
	Encode(img *types.CapturedImage) (types.AnalysisRequest, error)
}

// ResultSaver persists a recommendation set
type ResultSaver interface {
	Save(ctx context.Context, wines []types.Wine) error
}

// Options configures a Router
type Options struct {
	LatePolicy LatePolicy
	// TransientDir is where capture sources write; images there are removed once used
	TransientDir string
	Observers    []Observer
}

// Router is the round-trip state machine. All methods are safe for concurrent
// use; Analyze is the only one that blocks on the network.
type Router struct {
	mu         sync.Mutex
	state      State
	image      *types.CapturedImage
	result     types.Result
	generation uint64
	// pending holds events recorded under mu; they are published after unlock
	pending []Event

	encoder  Encoder
	analyzer analysis.Analyzer
	saver    ResultSaver
	opts     Options
}

// NewRouter creates a router in Idle. saver may be nil to skip persistence.
// An empty TransientDir means the capture sources' default directory.
func NewRouter(encoder Encoder, analyzer analysis.Analyzer, saver ResultSaver, opts Options) *Router {
	if opts.TransientDir == "" {
		opts.TransientDir = capture.DefaultTransientDir()
	}
	return &Router{
		state:    Idle,
		encoder:  encoder,
		analyzer: analyzer,
		saver:    saver,
		opts:     opts,
	}
}

// Subscribe adds an observer
func (r *Router) Subscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.Observers = append(r.opts.Observers, o)
}

// State returns the current state
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Image returns the image awaiting confirmation, if any
func (r *Router) Image() *types.CapturedImage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.image
}

// Result returns the outcome of the last completed analysis of the current flow
func (r *Router) Result() types.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// ControlsEnabled reports whether retake/analyze may be used
func (r *Router) ControlsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != Analyzing
}

// Generation identifies the current flow; it changes when a new flow begins
// while an analysis is in flight
func (r *Router) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Begin opens a capture flow. It is allowed while analyzing: the in-flight
// result will then belong to the abandoned flow.
func (r *Router) Begin() error {
	r.mu.Lock()
	defer r.unlock(context.Background())

	switch {
	case r.state == Capturing:
		return nil
	case r.state == Confirming:
		return r.invalid("begin")
	case r.state == Analyzing:
		r.generation++
	}

	r.result = types.Result{}
	r.transition(Capturing, "", 0)
	return nil
}

// Capture asks the source for an image. Errors, including PermissionDenied,
// leave the router in Capturing so the caller can re-prompt and retry.
func (r *Router) Capture(ctx context.Context, source capture.Source) (*types.CapturedImage, error) {
	r.mu.Lock()
	if r.state != Capturing {
		defer r.mu.Unlock()
		return nil, r.invalid("capture")
	}
	gen := r.generation
	r.mu.Unlock()

	img, err := source.Capture(ctx)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindPermissionDenied) {
			logger.WithError(err).Info("Capture permission denied")
		}
		return nil, err
	}

	r.mu.Lock()
	defer r.unlock(ctx)
	if r.state != Capturing || r.generation != gen {
		r.discard(img)
		return nil, r.invalid("capture")
	}
	r.image = img
	r.transition(Confirming, "", 0)
	return img, nil
}

// Retake drops the pending image or the finished result and returns to Capturing
func (r *Router) Retake() error {
	r.mu.Lock()
	defer r.unlock(context.Background())

	switch {
	case r.state == Analyzing:
		return ErrControlsDisabled
	case r.state == Confirming:
		r.discard(r.image)
		r.image = nil
	case r.state.IsTerminal():
		r.result = types.Result{}
	default:
		return r.invalid("retake")
	}

	r.transition(Capturing, "", 0)
	return nil
}

// Dismiss abandons the flow and returns to Idle
func (r *Router) Dismiss() error {
	r.mu.Lock()
	defer r.unlock(context.Background())

	switch {
	case r.state == Analyzing:
		return ErrControlsDisabled
	case r.state == Idle:
		return nil
	}

	r.discard(r.image)
	r.image = nil
	r.result = types.Result{}
	r.transition(Idle, "", 0)
	return nil
}

// Analyze submits the confirmed image and blocks until the analyzer answers.
// The returned Result is also available from Result(). When a newer flow began
// in the meantime the result is not applied and ErrSuperseded is returned.
func (r *Router) Analyze(ctx context.Context) (types.Result, error) {
	r.mu.Lock()
	if r.state == Analyzing {
		r.mu.Unlock()
		return types.Result{}, ErrControlsDisabled
	}
	if r.state != Confirming {
		defer r.mu.Unlock()
		return types.Result{}, r.invalid("analyze")
	}
	img := r.image
	gen := r.generation
	r.image = nil
	r.transition(Analyzing, "", 0)
	r.unlock(ctx)

	start := time.Now()
	result := r.run(ctx, img)
	duration := time.Since(start)

	r.mu.Lock()
	r.discard(img)

	if r.generation != gen {
		r.record(Event{
			Type:       LateResult,
			From:       Analyzing,
			To:         r.state,
			Generation: gen,
			Result:     result.Kind.String(),
			Duration:   duration,
		})
		persist := r.opts.LatePolicy == PersistLate && result.Kind == types.KindWineList
		r.unlock(ctx)

		if persist {
			r.save(ctx, gen, result.Wines)
		}
		return result, ErrSuperseded
	}

	r.result = result
	r.transition(StateFor(result), result.Kind.String(), duration)
	r.unlock(ctx)

	if result.Kind == types.KindWineList {
		r.save(ctx, gen, result.Wines)
	}
	return result, nil
}

func (r *Router) run(ctx context.Context, img *types.CapturedImage) types.Result {
	req, err := r.encoder.Encode(img)
	if err != nil {
		return types.InvalidResult(apperrors.NewInvalidInput(fmt.Sprintf("captured image could not be read: %v", err)))
	}
	return r.analyzer.Analyze(ctx, req)
}

// save persists a wine list outside the lock; a failure is reported but never
// changes the state
func (r *Router) save(ctx context.Context, gen uint64, wines []types.Wine) {
	if r.saver == nil {
		return
	}
	snapshot := append([]types.Wine(nil), wines...)
	if err := r.saver.Save(ctx, snapshot); err != nil {
		logger.WithError(err).WithField("wines", len(snapshot)).Error("Failed to save recommendations")

		state := r.State()
		r.publish(ctx, Event{
			Type:       StoreFailed,
			From:       state,
			To:         state,
			Generation: gen,
			Error:      err.Error(),
		})
	}
}

// transition moves to a new state and queues the change for observers. Called with mu held.
func (r *Router) transition(to State, result string, duration time.Duration) {
	from := r.state
	r.state = to

	logger.WithFields(logrus.Fields{
		"from":       from.String(),
		"to":         to.String(),
		"generation": r.generation,
	}).Debug("Router transition")

	r.record(Event{
		Type:       StateChanged,
		From:       from,
		To:         to,
		Generation: r.generation,
		Result:     result,
		Duration:   duration,
	})
}

// record queues an event. Called with mu held.
func (r *Router) record(event Event) {
	event.Timestamp = time.Now()
	r.pending = append(r.pending, event)
}

// unlock releases mu and then delivers the queued events
func (r *Router) unlock(ctx context.Context) {
	events := r.pending
	r.pending = nil
	observers := append([]Observer(nil), r.opts.Observers...)
	r.mu.Unlock()

	publishTo(ctx, observers, events)
}

// publish delivers one event immediately. Must be called without mu held.
func (r *Router) publish(ctx context.Context, event Event) {
	r.mu.Lock()
	observers := append([]Observer(nil), r.opts.Observers...)
	r.mu.Unlock()

	event.Timestamp = time.Now()
	publishTo(ctx, observers, []Event{event})
}

func publishTo(ctx context.Context, observers []Observer, events []Event) {
	for _, event := range events {
		for _, o := range observers {
			o.OnEvent(ctx, event)
		}
	}
}

func (r *Router) discard(img *types.CapturedImage) {
	if img == nil {
		return
	}
	if err := capture.Discard(img, r.opts.TransientDir); err != nil {
		logger.WithError(err).WithField("capture_id", img.ID).Warn("Failed to remove captured image")
	}
}

func (r *Router) invalid(action string) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, r.state)
}
