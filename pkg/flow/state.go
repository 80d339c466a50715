package flow

import (
	apperrors "github.com/menta2k/wine-sommelier/internal/errors"
	"github.com/menta2k/wine-sommelier/pkg/types"
)

// State is a step of the capture-to-recommendation round trip
type State int

const (
	Idle State = iota
	Capturing
	Confirming
	Analyzing
	SucceededWineList
	SucceededDescription
	Empty
	Invalid
	Failed
)

var stateNames = map[State]string{
	Idle:                 "idle",
	Capturing:            "capturing",
	Confirming:           "confirming",
	Analyzing:            "analyzing",
	SucceededWineList:    "succeeded_wine_list",
	SucceededDescription: "succeeded_description",
	Empty:                "empty",
	Invalid:              "invalid",
	Failed:               "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether only user-initiated restarts leave the state
func (s State) IsTerminal() bool {
	return s >= SucceededWineList
}

// StateFor maps an analysis outcome to the display state it ends in
func StateFor(r types.Result) State {
	switch r.Kind {
	case types.KindWineList:
		return SucceededWineList
	case types.KindDescription:
		return SucceededDescription
	case types.KindInvalid:
		if r.Failure == apperrors.KindEmptyResult {
			return Empty
		}
		return Invalid
	default:
		return Failed
	}
}
