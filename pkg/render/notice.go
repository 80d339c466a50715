package render

import (
	"fmt"

	apperrors "github.com/menta2k/wine-sommelier/internal/errors"
	"github.com/menta2k/wine-sommelier/pkg/analysis"
	"github.com/menta2k/wine-sommelier/pkg/flow"
	"github.com/menta2k/wine-sommelier/pkg/types"
)

// NetworkFailureBody is shown for every transport failure
const NetworkFailureBody = "Failed to analyze image. Please check your internet connection and try again."

// Notice is the dismissible message shown when a round trip ends
type Notice struct {
	Title string
	Body  string
	// Retry is true when the user should capture again
	Retry bool
}

// NoticeFor describes a terminal state. Empty and Invalid stay distinct here;
// callers that want one message can compare Retry.
func NoticeFor(state flow.State, r types.Result) Notice {
	switch state {
	case flow.SucceededWineList:
		n := len(r.Wines)
		plural := "s"
		if n == 1 {
			plural = ""
		}
		return Notice{
			Title: "Success! 🍷",
			Body:  fmt.Sprintf("Found %d wine%s with sommelier recommendations!", n, plural),
		}
	case flow.SucceededDescription:
		return Notice{Title: "Image Description", Body: r.Description}
	case flow.Empty:
		return Notice{Title: "No Wines Found", Body: orDefault(r.Reason, analysis.DefaultEmptyReason), Retry: true}
	case flow.Invalid:
		return Notice{Title: "Invalid Image", Body: orDefault(r.Reason, analysis.DefaultInvalidReason), Retry: true}
	case flow.Failed:
		if r.Failure == apperrors.KindHTTPError {
			return Notice{
				Title: "Server Error",
				Body:  fmt.Sprintf("The analysis service returned status %d. Please try again.", r.StatusCode),
				Retry: true,
			}
		}
		return Notice{Title: "Network Error", Body: NetworkFailureBody, Retry: true}
	default:
		return Notice{}
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
