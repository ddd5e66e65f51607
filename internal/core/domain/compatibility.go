package domain

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Weights controls how much each component contributes to a compatibility
// score. They are normalized before use, so only their ratios matter.
type Weights struct {
	Genre     float64 `json:"genre" koanf:"genre"`
	Mood      float64 `json:"mood" koanf:"mood"`
	Audio     float64 `json:"audio" koanf:"audio"`
	Diversity float64 `json:"diversity" koanf:"diversity"`
}

// DefaultWeights returns the standard component weighting.
func DefaultWeights() Weights {
	return Weights{Genre: 0.3, Mood: 0.4, Audio: 0.2, Diversity: 0.1}
}

func (w Weights) normalized() Weights {
	w.Genre = math.Max(w.Genre, 0)
	w.Mood = math.Max(w.Mood, 0)
	w.Audio = math.Max(w.Audio, 0)
	w.Diversity = math.Max(w.Diversity, 0)

	sum := w.Genre + w.Mood + w.Audio + w.Diversity
	if sum == 0 {
		return DefaultWeights().normalized()
	}
	return Weights{
		Genre:     w.Genre / sum,
		Mood:      w.Mood / sum,
		Audio:     w.Audio / sum,
		Diversity: w.Diversity / sum,
	}
}

// Breakdown holds the per-component similarities behind a score.
type Breakdown struct {
	Genre        float64  `json:"genre" bson:"genre"`
	Mood         float64  `json:"mood" bson:"mood"`
	Audio        float64  `json:"audio" bson:"audio"`
	Diversity    float64  `json:"diversity" bson:"diversity"`
	SharedGenres []string `json:"shared_genres,omitempty" bson:"shared_genres,omitempty"`
}

// Compatibility is the outcome of comparing two taste profiles.
type Compatibility struct {
	Score     float64   `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
	Reason    string    `json:"reason,omitempty"`
}

const reasonInsufficientData = "insufficient data"

// Scorer compares taste profiles with a fixed set of weights.
type Scorer struct {
	weights Weights
}

// NewScorer builds a scorer, normalizing the given weights.
func NewScorer(w Weights) Scorer {
	return Scorer{weights: w.normalized()}
}

// Weights returns the normalized weights in use.
func (s Scorer) Weights() Weights {
	if s.weights == (Weights{}) {
		return DefaultWeights().normalized()
	}
	return s.weights
}

// Compare scores two profiles. The result is symmetric in its arguments
// and always within [0,1].
func (s Scorer) Compare(a, b TasteProfile) Compatibility {
	if !a.Scorable() || !b.Scorable() {
		return Compatibility{Reason: reasonInsufficientData}
	}

	w := s.Weights()
	genreSim, shared, hasGenres := genreOverlap(a.Genres.Set(), b.Genres.Set())

	if !a.HasAudio() || !b.HasAudio() {
		// Zeroed descriptors would compare as identical; only genres count.
		if !hasGenres {
			return Compatibility{Reason: reasonInsufficientData}
		}
		g := clamp01(genreSim)
		return Compatibility{Score: g, Breakdown: Breakdown{Genre: g, SharedGenres: shared}}
	}
	moodSim := 1 - floats.Distance(a.Mood.vector(), b.Mood.vector(), 2)/math.Sqrt(3)
	audioSim := 1 - floats.Distance(NormalizedDescriptors(a.Features), NormalizedDescriptors(b.Features), 2)/math.Sqrt(descriptorSize)
	diversitySim := 1 - math.Abs(a.Diversity-b.Diversity)

	bd := Breakdown{
		Genre:        clamp01(genreSim),
		Mood:         clamp01(moodSim),
		Audio:        clamp01(audioSim),
		Diversity:    clamp01(diversitySim),
		SharedGenres: shared,
	}

	if !hasGenres {
		// No genre evidence on either side; spread its weight over the rest.
		rest := w.Mood + w.Audio + w.Diversity
		if rest == 0 {
			return Compatibility{Breakdown: bd, Reason: reasonInsufficientData}
		}
		w = Weights{Mood: w.Mood / rest, Audio: w.Audio / rest, Diversity: w.Diversity / rest}
	}

	score := w.Genre*bd.Genre + w.Mood*bd.Mood + w.Audio*bd.Audio + w.Diversity*bd.Diversity
	return Compatibility{Score: clamp01(score), Breakdown: bd}
}

// genreOverlap is the Jaccard index of two genre sets. hasGenres is false
// when both sets are empty.
func genreOverlap(a, b map[string]struct{}) (float64, []string, bool) {
	if len(a) == 0 && len(b) == 0 {
		return 0, nil, false
	}

	var shared []string
	for g := range a {
		if _, ok := b[g]; ok {
			shared = append(shared, g)
		}
	}
	sort.Strings(shared)

	union := len(a) + len(b) - len(shared)
	return float64(len(shared)) / float64(union), shared, true
}
