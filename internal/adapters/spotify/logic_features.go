package spotify

import (
	"hash/fnv"
	"math/rand"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

// generateDeterministicFeatures derives plausible descriptors from the
// track ID so the same track always gets the same estimate.
func generateDeterministicFeatures(trackID string) domain.AudioFeatures {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(trackID))
	seed := int64(hasher.Sum32())
	// #nosec G404 -- Deterministic RNG for reproducible audio features, not security-sensitive
	rng := rand.New(rand.NewSource(seed))

	between := func(min, max float64) float64 {
		return min + rng.Float64()*(max-min)
	}

	return domain.AudioFeatures{
		Energy:           between(0.1, 0.9),
		Valence:          between(0.1, 0.9),
		Danceability:     between(0.1, 0.9),
		Acousticness:     between(0.1, 0.9),
		Instrumentalness: between(0.0, 0.5),
		Speechiness:      between(0.02, 0.3),
		Liveness:         between(0.05, 0.4),
		Tempo:            between(60.0, 180.0),
		Loudness:         between(-20.0, -4.0),
		Key:              rng.Intn(12),
		Mode:             rng.Intn(2),
		TimeSignature:    4,
	}
}

func allFeaturesZero(features spotifyAudioFeatures) bool {
	return features.Danceability == 0 &&
		features.Energy == 0 &&
		features.Valence == 0 &&
		features.Tempo == 0 &&
		features.Instrumentalness == 0 &&
		features.Acousticness == 0
}
