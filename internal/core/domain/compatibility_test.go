package domain

import (
	"math"
	"reflect"
	"testing"
)

func profileWith(userID string, genres []string, f AudioFeatures, div float64) TasteProfile {
	var ranking GenreRanking
	for _, g := range genres {
		ranking.Primary = append(ranking.Primary, GenreWeight{Genre: g, Count: 1})
	}
	return TasteProfile{
		UserID:        userID,
		TrackCount:    10,
		AnalyzedCount: 10,
		Genres:        ranking,
		Features:      f,
		Mood:          Mood{Energy: f.Energy, Valence: f.Valence, Danceability: f.Danceability},
		Diversity:     div,
	}
}

// genreOnly is a profile whose tracks carried genres but no descriptors.
func genreOnly(userID string, genres ...string) TasteProfile {
	p := profileWith(userID, genres, AudioFeatures{}, 0)
	p.AnalyzedCount = 0
	return p
}

func TestScorer_Compare(t *testing.T) {
	base := AudioFeatures{Energy: 0.7, Valence: 0.5, Danceability: 0.6, Tempo: 120, Loudness: -7, Acousticness: 0.2}
	far := AudioFeatures{Energy: 0.1, Valence: 0.9, Danceability: 0.1, Tempo: 60, Loudness: -30, Acousticness: 0.9}

	tests := []struct {
		name       string
		a, b       TasteProfile
		wantScore  func(float64) bool
		wantReason string
		wantShared []string
	}{
		{
			name:       "identical profiles score one",
			a:          profileWith("u1", []string{"indie", "pop"}, base, 0.3),
			b:          profileWith("u2", []string{"indie", "pop"}, base, 0.3),
			wantScore:  func(s float64) bool { return floatEquals(s, 1, 1e-9) },
			wantShared: []string{"indie", "pop"},
		},
		{
			name:       "empty side is insufficient data",
			a:          profileWith("u1", []string{"indie"}, base, 0.3),
			b:          TasteProfile{UserID: "u2"},
			wantScore:  func(s float64) bool { return s == 0 },
			wantReason: reasonInsufficientData,
		},
		{
			name:      "disjoint genres and distant audio score low",
			a:         profileWith("u1", []string{"indie"}, base, 0.1),
			b:         profileWith("u2", []string{"metal"}, far, 0.9),
			wantScore: func(s float64) bool { return s >= 0 && s < 0.5 },
		},
		{
			name:      "no genres on either side redistributes the weight",
			a:         profileWith("u1", nil, base, 0.3),
			b:         profileWith("u2", nil, base, 0.3),
			wantScore: func(s float64) bool { return floatEquals(s, 1, 1e-9) },
		},
		{
			name:       "no audio and no genres is insufficient data",
			a:          BuildTasteProfile("u1", []Track{{ID: "t1"}, {ID: "t2"}}, nil),
			b:          BuildTasteProfile("u2", []Track{{ID: "t3"}}, nil),
			wantScore:  func(s float64) bool { return s == 0 },
			wantReason: reasonInsufficientData,
		},
		{
			name:       "missing audio on one side scores genres only",
			a:          genreOnly("u1", "indie", "pop"),
			b:          profileWith("u2", []string{"indie"}, base, 0.3),
			wantScore:  func(s float64) bool { return floatEquals(s, 0.5, 1e-9) },
			wantShared: []string{"indie"},
		},
		{
			name:       "missing audio and disjoint genres score zero",
			a:          genreOnly("u1", "indie"),
			b:          genreOnly("u2", "metal"),
			wantScore:  func(s float64) bool { return s == 0 },
			wantReason: "",
		},
		{
			name:       "partial genre overlap",
			a:          profileWith("u1", []string{"indie", "pop", "folk"}, base, 0.3),
			b:          profileWith("u2", []string{"indie", "rap"}, base, 0.3),
			wantScore:  func(s float64) bool { return floatEquals(s, 0.3*0.25+0.7, 1e-9) },
			wantShared: []string{"indie"},
		},
	}

	scorer := NewScorer(DefaultWeights())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := scorer.Compare(tc.a, tc.b)
			if !tc.wantScore(got.Score) {
				t.Fatalf("unexpected score %f (%+v)", got.Score, got.Breakdown)
			}
			if got.Reason != tc.wantReason {
				t.Fatalf("reason: got %q, want %q", got.Reason, tc.wantReason)
			}
			if tc.wantShared != nil && !reflect.DeepEqual(got.Breakdown.SharedGenres, tc.wantShared) {
				t.Fatalf("shared genres: got %v, want %v", got.Breakdown.SharedGenres, tc.wantShared)
			}
		})
	}
}

func TestScorer_CompareProperties(t *testing.T) {
	profiles := []TasteProfile{
		profileWith("u1", []string{"indie", "pop"}, AudioFeatures{Energy: 0.9, Valence: 0.1, Danceability: 0.5, Tempo: 180, Loudness: -3}, 0.2),
		profileWith("u2", []string{"pop"}, AudioFeatures{Energy: 0.2, Valence: 0.8, Danceability: 0.9, Tempo: 95, Loudness: -12}, 0.6),
		profileWith("u3", nil, AudioFeatures{Energy: 1.5, Valence: -1, Danceability: 2, Tempo: 500, Loudness: 5}, 1.2),
		profileWith("u4", []string{"jazz", "bebop", "soul"}, AudioFeatures{Acousticness: 1, Instrumentalness: 1}, 0),
		{UserID: "u5"},
		genreOnly("u6", "pop"),
		BuildTasteProfile("u7", []Track{{ID: "t1"}}, nil),
	}

	scorer := NewScorer(Weights{Genre: 3, Mood: 4, Audio: 2, Diversity: 1})
	for _, a := range profiles {
		for _, b := range profiles {
			ab := scorer.Compare(a, b)
			ba := scorer.Compare(b, a)
			if !floatEquals(ab.Score, ba.Score, 1e-12) {
				t.Fatalf("asymmetric score %s/%s: %f vs %f", a.UserID, b.UserID, ab.Score, ba.Score)
			}
			for _, v := range []float64{ab.Score, ab.Breakdown.Genre, ab.Breakdown.Mood, ab.Breakdown.Audio, ab.Breakdown.Diversity} {
				if math.IsNaN(v) || v < 0 || v > 1 {
					t.Fatalf("value out of range for %s/%s: %+v", a.UserID, b.UserID, ab)
				}
			}
		}
	}
}

func TestScorer_SelfIsMaximal(t *testing.T) {
	scorer := NewScorer(DefaultWeights())
	self := profileWith("u1", []string{"house"}, AudioFeatures{Energy: 0.8, Valence: 0.6, Danceability: 0.9, Tempo: 124, Loudness: -5}, 0.25)
	other := profileWith("u2", []string{"house", "disco"}, AudioFeatures{Energy: 0.7, Valence: 0.6, Danceability: 0.8, Tempo: 118, Loudness: -6}, 0.3)

	selfScore := scorer.Compare(self, self).Score
	if !floatEquals(selfScore, 1, 1e-9) {
		t.Fatalf("self score: got %f, want 1", selfScore)
	}
	if got := scorer.Compare(self, other).Score; got > selfScore {
		t.Fatalf("other score %f exceeds self score %f", got, selfScore)
	}
}

func TestWeights_Normalized(t *testing.T) {
	tests := []struct {
		name string
		in   Weights
		want Weights
	}{
		{name: "defaults sum to one", in: DefaultWeights(), want: Weights{Genre: 0.3, Mood: 0.4, Audio: 0.2, Diversity: 0.1}},
		{name: "scaled weights", in: Weights{Genre: 3, Mood: 4, Audio: 2, Diversity: 1}, want: Weights{Genre: 0.3, Mood: 0.4, Audio: 0.2, Diversity: 0.1}},
		{name: "all zero falls back to defaults", in: Weights{}, want: Weights{Genre: 0.3, Mood: 0.4, Audio: 0.2, Diversity: 0.1}},
		{name: "negatives are ignored", in: Weights{Genre: -1, Mood: 1}, want: Weights{Mood: 1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.in.normalized()
			if !floatEquals(got.Genre, tc.want.Genre, 1e-9) ||
				!floatEquals(got.Mood, tc.want.Mood, 1e-9) ||
				!floatEquals(got.Audio, tc.want.Audio, 1e-9) ||
				!floatEquals(got.Diversity, tc.want.Diversity, 1e-9) {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
