package spotify

import "strings"

const (
	minTitleSimilarity   = 0.65
	minArtistSimilarity  = 0.55
	minOverallSimilarity = 0.70
)

// trackMatchScore weighs title and artist separately, so a candidate with
// extra credited artists can still match on a strong title.
func trackMatchScore(requestTitle string, requestArtist string, candidate spotifyTrack) (float64, bool) {
	normalizedTitle := normalizeSearchInput(requestTitle)
	normalizedArtist := normalizeSearchInput(requestArtist)
	candidateTitle := normalizeSearchInput(candidate.Name)
	candidateArtist := normalizeSearchInput(joinArtistNames(candidate))

	if normalizedTitle == "" || normalizedArtist == "" || candidateTitle == "" || candidateArtist == "" {
		return 0, false
	}

	titleSim := similarity(normalizedTitle, candidateTitle)
	artistSim := bestArtistSimilarity(normalizedArtist, candidate)
	score := 0.7*titleSim + 0.3*artistSim

	if titleSim < minTitleSimilarity || artistSim < minArtistSimilarity || score < minOverallSimilarity {
		return score, false
	}

	return score, true
}

func bestArtistSimilarity(requestArtist string, candidate spotifyTrack) float64 {
	best := similarity(requestArtist, normalizeSearchInput(joinArtistNames(candidate)))
	for _, a := range candidate.Artists {
		best = max(best, similarity(requestArtist, normalizeSearchInput(a.Name)))
	}
	return best
}

func joinArtistNames(track spotifyTrack) string {
	if len(track.Artists) == 0 {
		return ""
	}
	parts := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		parts = append(parts, artist.Name)
	}
	return strings.Join(parts, " ")
}
