package flow

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType represents the type of router event
type EventType string

const (
	// StateChanged when the router moves between states
	StateChanged EventType = "state_changed"
	// LateResult when an analysis finishes after its flow was replaced
	LateResult EventType = "late_result"
	// StoreFailed when a recommendation set could not be persisted
	StoreFailed EventType = "store_failed"
)

// Event describes one thing that happened in the router
type Event struct {
	Type       EventType     `json:"type"`
	From       State         `json:"from"`
	To         State         `json:"to"`
	Generation uint64        `json:"generation"`
	Result     string        `json:"result,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Error      string        `json:"error,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Observer receives router events. Implementations must not call back into the router.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
	Name() string
}

// LoggingObserver logs router events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) *LoggingObserver {
	return &LoggingObserver{logger: logger}
}

func (o *LoggingObserver) OnEvent(_ context.Context, event Event) {
	fields := logrus.Fields{
		"event_type": event.Type,
		"from":       event.From.String(),
		"to":         event.To.String(),
		"generation": event.Generation,
	}
	if event.Result != "" {
		fields["result"] = event.Result
	}
	if event.Duration > 0 {
		fields["duration_ms"] = event.Duration.Milliseconds()
	}
	if event.Error != "" {
		fields["error"] = event.Error
	}

	entry := o.logger.WithFields(fields)
	switch {
	case event.Type == StoreFailed:
		entry.Error("Saving recommendations failed")
	case event.Type == LateResult:
		entry.Warn("Late analysis result")
	case event.To == Failed:
		entry.Warn("Analysis failed")
	case event.To.IsTerminal():
		entry.Info("Analysis finished")
	default:
		entry.Debug("State changed")
	}
}

func (o *LoggingObserver) Name() string {
	return "logging_observer"
}

// MetricsObserver counts terminal outcomes
type MetricsObserver struct {
	mu            sync.RWMutex
	outcomes      map[State]int64
	lateResults   int64
	storeFailures int64
	totalAnalysis time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{outcomes: make(map[State]int64)}
}

func (o *MetricsObserver) OnEvent(_ context.Context, event Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.Type {
	case LateResult:
		o.lateResults++
	case StoreFailed:
		o.storeFailures++
	case StateChanged:
		if event.From == Analyzing && event.To.IsTerminal() {
			o.outcomes[event.To]++
			o.totalAnalysis += event.Duration
		}
	}
}

func (o *MetricsObserver) Name() string {
	return "metrics_observer"
}

// Metrics is a snapshot of the counters
type Metrics struct {
	Outcomes        map[string]int64 `json:"outcomes"`
	Analyses        int64            `json:"analyses"`
	LateResults     int64            `json:"late_results"`
	StoreFailures   int64            `json:"store_failures"`
	AverageDuration time.Duration    `json:"average_duration"`
}

// Snapshot returns the current counters
func (o *MetricsObserver) Snapshot() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	m := Metrics{
		Outcomes:      make(map[string]int64, len(o.outcomes)),
		LateResults:   o.lateResults,
		StoreFailures: o.storeFailures,
	}
	for state, n := range o.outcomes {
		m.Outcomes[state.String()] = n
		m.Analyses += n
	}
	if m.Analyses > 0 {
		m.AverageDuration = o.totalAnalysis / time.Duration(m.Analyses)
	}
	return m
}
