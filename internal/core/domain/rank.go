package domain

import "sort"

// DefaultMinScore is the compatibility a candidate needs to be suggested.
const DefaultMinScore = 0.5

// Candidate is another user considered for matching.
type Candidate struct {
	UserID   string
	Location *Location
	Profile  TasteProfile
}

// RankOptions narrows and orders candidates.
type RankOptions struct {
	MinScore      float64
	Limit         int
	MaxDistanceKm float64
	Origin        *Location
	Vibe          *VibeFilter
}

// RankedCandidate is a candidate with its computed compatibility.
type RankedCandidate struct {
	UserID        string        `json:"user_id"`
	Compatibility Compatibility `json:"compatibility"`
	DistanceKm    *float64      `json:"distance_km,omitempty"`
}

// RankCandidates scores every candidate against self and returns those at
// or above MinScore, best first. Ties are broken by user ID so the order
// is stable. The caller's own profile is never included.
func (s Scorer) RankCandidates(self TasteProfile, candidates []Candidate, opts RankOptions) []RankedCandidate {
	ranked := make([]RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.UserID == "" || c.UserID == self.UserID {
			continue
		}

		var dist *float64
		if opts.Origin != nil && c.Location != nil {
			d := DistanceKm(*opts.Origin, *c.Location)
			dist = &d
		}
		if opts.MaxDistanceKm > 0 && opts.Origin != nil {
			if dist == nil || *dist > opts.MaxDistanceKm {
				continue
			}
		}
		if opts.Vibe != nil && !opts.Vibe.Matches(c.Profile) {
			continue
		}

		comp := s.Compare(self, c.Profile)
		if comp.Reason != "" || comp.Score < opts.MinScore {
			continue
		}
		ranked = append(ranked, RankedCandidate{UserID: c.UserID, Compatibility: comp, DistanceKm: dist})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Compatibility.Score != ranked[j].Compatibility.Score {
			return ranked[i].Compatibility.Score > ranked[j].Compatibility.Score
		}
		return ranked[i].UserID < ranked[j].UserID
	})

	if opts.Limit > 0 && len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}
	return ranked
}
