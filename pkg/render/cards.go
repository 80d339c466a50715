// Package render turns round-trip outcomes into text for a terminal.
package render

import (
	"io"
	"strconv"
	"strings"
	"text/template"

	"github.com/menta2k/wine-sommelier/pkg/types"
)

// Band is a coarse quality bucket used to color a score
type Band string

const (
	Good Band = "good"
	Fair Band = "fair"
	Poor Band = "poor"
)

// MatchBand buckets a match score: 90 and up is good, 70 and up fair
func MatchBand(score float64) Band {
	switch {
	case score >= 90:
		return Good
	case score >= 70:
		return Fair
	default:
		return Poor
	}
}

// RatingBand buckets a critic rating: 85 and up is good, 70 and up fair
func RatingBand(rating float64) Band {
	switch {
	case rating >= 85:
		return Good
	case rating >= 70:
		return Fair
	default:
		return Poor
	}
}

// Card is the display form of one recommendation
type Card struct {
	Wineries       string
	Year           string
	Match          string
	MatchBand      Band
	Rating         string
	RatingBand     Band
	Name           string
	Varietal       string
	WhyRecommended string
	TastingNotes   string
	FoodPairing    string
	Price          string
}

// Cards builds one card per wine, keeping the backend's order
func Cards(wines []types.Wine) []Card {
	cards := make([]Card, 0, len(wines))
	for _, w := range wines {
		rec := w.Recommendation
		card := Card{
			Wineries:       strings.Join(w.Wineries, " & "),
			Match:          "Match " + formatScore(rec.MatchScore) + "%",
			MatchBand:      MatchBand(rec.MatchScore),
			Rating:         "Rating " + formatScore(rec.Rating),
			RatingBand:     RatingBand(rec.Rating),
			Name:           w.Name,
			Varietal:       w.Varietal,
			WhyRecommended: rec.WhyRecommended,
			TastingNotes:   rec.TastingNotes,
			FoodPairing:    rec.FoodPairing,
		}
		if w.Year != nil {
			card.Year = *w.Year
		}
		if w.Region != nil && *w.Region != "" {
			card.Varietal += " • " + *w.Region
		}
		if rec.PriceEstimate != nil {
			card.Price = *rec.PriceEstimate
		}
		cards = append(cards, card)
	}
	return cards
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

const cardTemplate = `{{range $i, $c := .}}{{if $i}}
{{end}}{{$c.Wineries}}{{if $c.Year}} ({{$c.Year}}){{end}}    {{paint $c.MatchBand $c.Match}}  {{paint $c.RatingBand $c.Rating}}
{{$c.Name}}
{{$c.Varietal}}
{{- if $c.WhyRecommended}}
  Why Recommended: {{$c.WhyRecommended}}{{end}}
{{- if $c.TastingNotes}}
  Tasting Notes:   {{$c.TastingNotes}}{{end}}
{{- if $c.FoodPairing}}
  Food Pairing:    {{$c.FoodPairing}}{{end}}
{{- if $c.Price}}
  Price:           {{$c.Price}}{{end}}
{{end}}`

var bandColors = map[Band]string{
	Good: "\033[32m",
	Fair: "\033[33m",
	Poor: "\033[31m",
}

// WriteCards renders the recommendation list. color adds ANSI colors to the scores.
func WriteCards(w io.Writer, wines []types.Wine, color bool) error {
	tmpl := template.Must(template.New("cards").Funcs(template.FuncMap{
		"paint": func(b Band, s string) string {
			if !color {
				return s
			}
			return bandColors[b] + s + "\033[0m"
		},
	}).Parse(cardTemplate))

	return tmpl.Execute(w, Cards(wines))
}
