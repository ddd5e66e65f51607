package domain

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

const (
	primaryGenreCount   = 3
	secondaryGenreCount = 7

	maxTempo       = 250.0
	loudnessFloor  = -60.0
	loudnessRange  = 60.0
	descriptorSize = 9
)

// GenreWeight is a genre tag with how many tracks carried it.
type GenreWeight struct {
	Genre string  `json:"genre" bson:"genre"`
	Count int     `json:"count" bson:"count"`
	Share float64 `json:"share" bson:"share"`
}

// GenreRanking splits the ranked genres into frequency tiers.
type GenreRanking struct {
	Primary   []GenreWeight `json:"primary" bson:"primary"`
	Secondary []GenreWeight `json:"secondary" bson:"secondary"`
	Rare      []GenreWeight `json:"rare" bson:"rare"`
}

// All returns every ranked genre, primary first.
func (g GenreRanking) All() []GenreWeight {
	out := make([]GenreWeight, 0, len(g.Primary)+len(g.Secondary)+len(g.Rare))
	out = append(out, g.Primary...)
	out = append(out, g.Secondary...)
	return append(out, g.Rare...)
}

// Set returns the genre names as a set.
func (g GenreRanking) Set() map[string]struct{} {
	all := g.All()
	set := make(map[string]struct{}, len(all))
	for _, gw := range all {
		set[gw.Genre] = struct{}{}
	}
	return set
}

// Mood is the energy/valence/danceability composite of a profile.
type Mood struct {
	Energy       float64 `json:"energy" bson:"energy"`
	Valence      float64 `json:"valence" bson:"valence"`
	Danceability float64 `json:"danceability" bson:"danceability"`
}

func (m Mood) vector() []float64 {
	return []float64{m.Energy, m.Valence, m.Danceability}
}

// TasteProfile is the aggregated summary of a user's listening data.
type TasteProfile struct {
	UserID        string        `json:"user_id" bson:"user_id"`
	TrackCount    int           `json:"track_count" bson:"track_count"`
	AnalyzedCount int           `json:"analyzed_count" bson:"analyzed_count"`
	Genres        GenreRanking  `json:"genres" bson:"genres"`
	Features      AudioFeatures `json:"features" bson:"features"`
	Mood          Mood          `json:"mood" bson:"mood"`
	Diversity     float64       `json:"diversity" bson:"diversity"`
	ComputedAt    time.Time     `json:"computed_at" bson:"computed_at"`
}

// Empty reports whether the profile was built from no tracks.
func (p TasteProfile) Empty() bool {
	return p.TrackCount == 0
}

// HasAudio reports whether any track contributed audio descriptors.
func (p TasteProfile) HasAudio() bool {
	return p.AnalyzedCount > 0
}

// Scorable reports whether the profile carries any evidence to compare:
// audio descriptors or at least one genre.
func (p TasteProfile) Scorable() bool {
	return !p.Empty() && (p.HasAudio() || len(p.Genres.All()) > 0)
}

// TopGenres returns up to n genre names in rank order.
func (p TasteProfile) TopGenres(n int) []string {
	all := p.Genres.All()
	if n > len(all) {
		n = len(all)
	}
	names := make([]string, 0, n)
	for _, gw := range all[:n] {
		names = append(names, gw.Genre)
	}
	return names
}

// BuildTasteProfile aggregates tracks and their artists into a profile.
// Artists are looked up by the IDs referenced from each track; missing
// artists or artists without genres simply contribute no genres.
func BuildTasteProfile(userID string, tracks []Track, artists []Artist) TasteProfile {
	profile := TasteProfile{
		UserID:     userID,
		TrackCount: len(tracks),
		ComputedAt: time.Now().UTC(),
	}
	if len(tracks) == 0 {
		return profile
	}

	profile.Genres = rankGenres(tracks, IndexArtists(artists))

	analyzed := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if t.HasFeatures() || t.Features != (AudioFeatures{}) {
			analyzed = append(analyzed, t)
		}
	}
	profile.AnalyzedCount = len(analyzed)
	profile.Features = MeanFeatures(analyzed)
	profile.Mood = Mood{
		Energy:       profile.Features.Energy,
		Valence:      profile.Features.Valence,
		Danceability: profile.Features.Danceability,
	}
	profile.Diversity = diversity(analyzed)

	return profile
}

// MeanFeatures returns the arithmetic mean of every continuous descriptor.
// Key, mode and time signature are categorical, so the most common value
// is used instead. An empty slice yields zero values.
func MeanFeatures(tracks []Track) AudioFeatures {
	if len(tracks) == 0 {
		return AudioFeatures{}
	}

	column := func(get func(AudioFeatures) float64) float64 {
		xs := make([]float64, len(tracks))
		for i, t := range tracks {
			xs[i] = get(t.Features)
		}
		return stat.Mean(xs, nil)
	}

	return AudioFeatures{
		Danceability:     column(func(f AudioFeatures) float64 { return f.Danceability }),
		Energy:           column(func(f AudioFeatures) float64 { return f.Energy }),
		Valence:          column(func(f AudioFeatures) float64 { return f.Valence }),
		Tempo:            column(func(f AudioFeatures) float64 { return f.Tempo }),
		Acousticness:     column(func(f AudioFeatures) float64 { return f.Acousticness }),
		Instrumentalness: column(func(f AudioFeatures) float64 { return f.Instrumentalness }),
		Speechiness:      column(func(f AudioFeatures) float64 { return f.Speechiness }),
		Liveness:         column(func(f AudioFeatures) float64 { return f.Liveness }),
		Loudness:         column(func(f AudioFeatures) float64 { return f.Loudness }),
		Key:              modeOf(tracks, func(f AudioFeatures) int { return f.Key }),
		Mode:             modeOf(tracks, func(f AudioFeatures) int { return f.Mode }),
		TimeSignature:    modeOf(tracks, func(f AudioFeatures) int { return f.TimeSignature }),
	}
}

// NormalizedDescriptors maps the continuous descriptors onto [0,1] so they
// can be compared with a single distance.
func NormalizedDescriptors(f AudioFeatures) []float64 {
	return []float64{
		clamp01(f.Danceability),
		clamp01(f.Energy),
		clamp01(f.Valence),
		clamp01(f.Acousticness),
		clamp01(f.Instrumentalness),
		clamp01(f.Speechiness),
		clamp01(f.Liveness),
		clamp01(f.Tempo / maxTempo),
		clamp01((f.Loudness - loudnessFloor) / loudnessRange),
	}
}

func rankGenres(tracks []Track, artists map[string]Artist) GenreRanking {
	counts := make(map[string]int)
	for _, t := range tracks {
		seen := make(map[string]struct{})
		for _, ref := range t.Artists {
			a, ok := artists[ref.ID]
			if !ok {
				continue
			}
			for _, g := range a.Genres {
				if g == "" {
					continue
				}
				if _, dup := seen[g]; dup {
					continue
				}
				seen[g] = struct{}{}
				counts[g]++
			}
		}
	}

	ranked := make([]GenreWeight, 0, len(counts))
	for g, c := range counts {
		ranked = append(ranked, GenreWeight{
			Genre: g,
			Count: c,
			Share: float64(c) / float64(len(tracks)),
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Genre < ranked[j].Genre
	})

	var out GenreRanking
	for i, gw := range ranked {
		switch {
		case i < primaryGenreCount:
			out.Primary = append(out.Primary, gw)
		case i < primaryGenreCount+secondaryGenreCount:
			out.Secondary = append(out.Secondary, gw)
		default:
			out.Rare = append(out.Rare, gw)
		}
	}
	return out
}

// diversity is the mean population standard deviation of the normalized
// descriptors across tracks.
func diversity(tracks []Track) float64 {
	if len(tracks) < 2 {
		return 0
	}

	columns := make([][]float64, descriptorSize)
	for i := range columns {
		columns[i] = make([]float64, len(tracks))
	}
	for j, t := range tracks {
		for i, v := range NormalizedDescriptors(t.Features) {
			columns[i][j] = v
		}
	}

	var total float64
	for _, col := range columns {
		total += stat.PopStdDev(col, nil)
	}
	return clamp01(total / descriptorSize)
}

func modeOf(tracks []Track, get func(AudioFeatures) int) int {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, t := range tracks {
		v := get(t.Features)
		counts[v]++
		c := counts[v]
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
