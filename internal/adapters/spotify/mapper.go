package spotify

import (
	"github.com/ewilliams-labs/duet/internal/core/domain"
)

// mapTrackToDomain converts a raw Spotify track to a domain track without
// audio features.
func mapTrackToDomain(st spotifyTrack) domain.Track {
	artists := make([]domain.ArtistRef, 0, len(st.Artists))
	for _, a := range st.Artists {
		artists = append(artists, domain.ArtistRef{ID: a.ID, Name: a.Name})
	}

	coverURL := ""
	if len(st.Album.Images) > 0 {
		coverURL = st.Album.Images[0].URL
	}

	return domain.Track{
		ID:          st.ID,
		Title:       st.Name,
		Artists:     artists,
		Album:       st.Album.Name,
		ReleaseDate: st.Album.ReleaseDate,
		CoverURL:    coverURL,
		PreviewURL:  st.PreviewURL,
		DurationMs:  st.DurationMs,
		Popularity:  st.Popularity,
		ISRC:        st.ExternalIDs.ISRC,
	}
}

func mapTracksToDomain(items []spotifyTrack) []domain.Track {
	tracks := make([]domain.Track, 0, len(items))
	for _, st := range items {
		if st.ID == "" || st.IsLocal {
			continue
		}
		tracks = append(tracks, mapTrackToDomain(st))
	}
	return tracks
}

func mapFeaturesToDomain(f spotifyAudioFeatures) domain.AudioFeatures {
	return domain.AudioFeatures{
		Danceability:     f.Danceability,
		Energy:           f.Energy,
		Valence:          f.Valence,
		Tempo:            f.Tempo,
		Acousticness:     f.Acousticness,
		Instrumentalness: f.Instrumentalness,
		Speechiness:      f.Speechiness,
		Liveness:         f.Liveness,
		Loudness:         f.Loudness,
		Key:              f.Key,
		Mode:             f.Mode,
		TimeSignature:    f.TimeSignature,
	}
}

func mapArtistToDomain(sa spotifyArtist) domain.Artist {
	return domain.Artist{
		ID:         sa.ID,
		Name:       sa.Name,
		Genres:     sa.Genres,
		Popularity: sa.Popularity,
	}
}
