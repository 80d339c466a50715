package render

import (
	"strings"
	"testing"

	apperrors "github.com/menta2k/wine-sommelier/internal/errors"
	"github.com/menta2k/wine-sommelier/pkg/flow"
	"github.com/menta2k/wine-sommelier/pkg/types"
)

func opusOne() types.Wine {
	year := "2018"
	region := "Napa Valley"
	price := "$125"
	return types.Wine{
		Wineries: []string{"Opus One"},
		Name:     "Opus One 2018",
		Year:     &year,
		Varietal: "Cabernet Sauvignon, Merlot Blend",
		Region:   &region,
		Recommendation: types.Recommendation{
			Rating:         90,
			MatchScore:     85,
			TastingNotes:   "Cassis and cedar.",
			FoodPairing:    "Ribeye.",
			WhyRecommended: "Napa benchmark.",
			PriceEstimate:  &price,
		},
	}
}

func TestCards(t *testing.T) {
	cards := Cards([]types.Wine{opusOne()})
	if len(cards) != 1 {
		t.Fatalf("expected 1 card, got %d", len(cards))
	}

	c := cards[0]
	if c.Match != "Match 85%" || c.Rating != "Rating 90" {
		t.Errorf("scores rendered as %q / %q", c.Match, c.Rating)
	}
	if c.MatchBand != Fair || c.RatingBand != Good {
		t.Errorf("bands = %s / %s", c.MatchBand, c.RatingBand)
	}
	if c.Varietal != "Cabernet Sauvignon, Merlot Blend • Napa Valley" {
		t.Errorf("varietal line = %q", c.Varietal)
	}
	if c.Price != "$125" || c.Year != "2018" {
		t.Errorf("price %q year %q", c.Price, c.Year)
	}
}

func TestCardsJoinWineries(t *testing.T) {
	w := opusOne()
	w.Wineries = []string{"Robert Mondavi", "Baron Philippe de Rothschild"}
	w.Year = nil
	w.Region = nil
	w.Recommendation.PriceEstimate = nil
	w.Recommendation.MatchScore = 92.5

	c := Cards([]types.Wine{w})[0]
	if c.Wineries != "Robert Mondavi & Baron Philippe de Rothschild" {
		t.Errorf("wineries = %q", c.Wineries)
	}
	if c.Year != "" || c.Price != "" || c.Varietal != w.Varietal {
		t.Errorf("optional fields leaked: %+v", c)
	}
	if c.Match != "Match 92.5%" || c.MatchBand != Good {
		t.Errorf("match = %q %s", c.Match, c.MatchBand)
	}
}

func TestBands(t *testing.T) {
	tests := []struct {
		score  float64
		match  Band
		rating Band
	}{
		{95, Good, Good},
		{90, Good, Good},
		{87, Fair, Good},
		{85, Fair, Good},
		{75, Fair, Fair},
		{70, Fair, Fair},
		{69, Poor, Poor},
		{0, Poor, Poor},
	}
	for _, tt := range tests {
		if got := MatchBand(tt.score); got != tt.match {
			t.Errorf("MatchBand(%v) = %s, want %s", tt.score, got, tt.match)
		}
		if got := RatingBand(tt.score); got != tt.rating {
			t.Errorf("RatingBand(%v) = %s, want %s", tt.score, got, tt.rating)
		}
	}
}

func TestWriteCards(t *testing.T) {
	var sb strings.Builder
	if err := WriteCards(&sb, []types.Wine{opusOne(), opusOne()}, false); err != nil {
		t.Fatal(err)
	}
	out := sb.String()

	for _, want := range []string{"Opus One (2018)", "Match 85%", "Rating 90", "Tasting Notes:   Cassis and cedar.", "Price:           $125"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("no ANSI codes expected without color")
	}
	if strings.Count(out, "Opus One 2018") != 2 {
		t.Errorf("expected two cards:\n%s", out)
	}

	sb.Reset()
	if err := WriteCards(&sb, []types.Wine{opusOne()}, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sb.String(), "\033[32mRating 90\033[0m") {
		t.Errorf("expected green rating:\n%q", sb.String())
	}
}

func TestNoticeFor(t *testing.T) {
	tests := []struct {
		state flow.State
		res   types.Result
		title string
		body  string
		retry bool
	}{
		{flow.SucceededWineList, types.WineListResult([]types.Wine{opusOne()}), "Success! 🍷", "Found 1 wine with sommelier recommendations!", false},
		{flow.Empty, types.InvalidResult(apperrors.NewEmptyResult("")), "No Wines Found", "Valid wine image, but no specific wines could be identified.", true},
		{flow.Invalid, types.InvalidResult(apperrors.NewInvalidInput("That is a cat.")), "Invalid Image", "That is a cat.", true},
		{flow.Failed, types.ErrorResult(apperrors.NewTransportFailure("timed out", nil)), "Network Error", NetworkFailureBody, true},
		{flow.Failed, types.ErrorResult(apperrors.NewHTTPError(502, "bad gateway")), "Server Error", "The analysis service returned status 502. Please try again.", true},
		{flow.SucceededDescription, types.DescriptionResult("A Riesling label."), "Image Description", "A Riesling label.", false},
	}

	for _, tt := range tests {
		n := NoticeFor(tt.state, tt.res)
		if n.Title != tt.title || n.Body != tt.body || n.Retry != tt.retry {
			t.Errorf("NoticeFor(%s) = %+v", tt.state, n)
		}
	}
}
