package domain

import (
	"math"
	"strings"
)

// VibeConstraint bounds one audio descriptor. Zero Min/Max/Target mean
// "unset"; Weight widens or narrows how close Target must be.
type VibeConstraint struct {
	Target float64 `json:"target,omitempty"`
	Min    float64 `json:"min,omitempty"`
	Max    float64 `json:"max,omitempty"`
	Weight string  `json:"weight"`
}

func (c *VibeConstraint) allows(v float64) bool {
	if c == nil {
		return true
	}
	if c.Min > 0 && v < c.Min {
		return false
	}
	if c.Max > 0 && v > c.Max {
		return false
	}
	if c.Target > 0 && math.Abs(v-c.Target) > c.tolerance() {
		return false
	}
	return true
}

func (c *VibeConstraint) tolerance() float64 {
	switch strings.ToUpper(c.Weight) {
	case "HIGH":
		return 0.15
	case "LOW":
		return 0.35
	default:
		return 0.25
	}
}

// VibeFilter describes what a user is looking for in someone else's taste.
type VibeFilter struct {
	Genres      []string `json:"genres"`
	Constraints struct {
		Energy       *VibeConstraint `json:"energy,omitempty"`
		Valence      *VibeConstraint `json:"valence,omitempty"`
		Danceability *VibeConstraint `json:"danceability,omitempty"`
		Acoustic     *VibeConstraint `json:"acousticness,omitempty"`
		Instrument   *VibeConstraint `json:"instrumentalness,omitempty"`
	} `json:"vibe_constraints"`
	Explanation string `json:"explanation"`
}

// Matches reports whether a profile satisfies every constraint. A genre
// list matches when any requested genre appears within any of the
// profile's genres, ignoring case.
func (v VibeFilter) Matches(p TasteProfile) bool {
	f := p.Features
	c := v.Constraints
	if !c.Energy.allows(f.Energy) ||
		!c.Valence.allows(f.Valence) ||
		!c.Danceability.allows(f.Danceability) ||
		!c.Acoustic.allows(f.Acousticness) ||
		!c.Instrument.allows(f.Instrumentalness) {
		return false
	}
	if len(v.Genres) == 0 {
		return true
	}
	for _, want := range v.Genres {
		want = strings.ToLower(strings.TrimSpace(want))
		if want == "" {
			continue
		}
		for _, gw := range p.Genres.All() {
			if strings.Contains(strings.ToLower(gw.Genre), want) {
				return true
			}
		}
	}
	return false
}
