package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

// SaveLibrary replaces the owner's library with the given tracks and
// upserts the tracks and artists they reference.
func (a *Adapter) SaveLibrary(ctx context.Context, library domain.Playlist, artists []domain.Artist) error {
	if library.OwnerID == "" {
		return fmt.Errorf("sqlite: save library: %w: missing owner", domain.ErrInvalidArgument)
	}

	return withTx(ctx, a.db, func(tx *sql.Tx) error {
		// 1. Upsert library metadata
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO libraries (owner_id, id, name, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(owner_id) DO UPDATE SET id=excluded.id, name=excluded.name, updated_at=excluded.updated_at;
		`, library.OwnerID, library.ID, library.Name); err != nil {
			return fmt.Errorf("sqlite: failed to save library metadata: %w", err)
		}

		// 2. Reset links; tracks themselves are shared between libraries
		if _, err := tx.ExecContext(ctx, "DELETE FROM library_tracks WHERE owner_id = ?", library.OwnerID); err != nil {
			return fmt.Errorf("sqlite: failed to clear old tracks: %w", err)
		}

		// 3. Upsert tracks, their artist credits and re-link
		stmtTrack, err := tx.PrepareContext(ctx, `
			INSERT INTO tracks (
				id, title, album, release_date, duration_ms, isrc, cover_url, preview_url, popularity,
				danceability, energy, valence, tempo, instrumentalness, acousticness,
				speechiness, liveness, loudness, musical_key, mode, time_signature, feature_source
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title=excluded.title,
				album=excluded.album,
				release_date=excluded.release_date,
				duration_ms=excluded.duration_ms,
				isrc=excluded.isrc,
				cover_url=excluded.cover_url,
				preview_url=excluded.preview_url,
				popularity=excluded.popularity,
				danceability=excluded.danceability,
				energy=excluded.energy,
				valence=excluded.valence,
				tempo=excluded.tempo,
				instrumentalness=excluded.instrumentalness,
				acousticness=excluded.acousticness,
				speechiness=excluded.speechiness,
				liveness=excluded.liveness,
				loudness=excluded.loudness,
				musical_key=excluded.musical_key,
				mode=excluded.mode,
				time_signature=excluded.time_signature,
				feature_source=excluded.feature_source
			WHERE tracks.feature_source != 'preview' OR excluded.feature_source = 'preview';
		`)
		if err != nil {
			return fmt.Errorf("sqlite: failed to prepare track upsert: %w", err)
		}
		defer stmtTrack.Close()

		stmtClearCredits, err := tx.PrepareContext(ctx, "DELETE FROM track_artists WHERE track_id = ?")
		if err != nil {
			return fmt.Errorf("sqlite: failed to prepare credit reset: %w", err)
		}
		defer stmtClearCredits.Close()

		stmtCredit, err := tx.PrepareContext(ctx, `
			INSERT INTO track_artists (track_id, position, artist_id, artist_name) VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("sqlite: failed to prepare credit insert: %w", err)
		}
		defer stmtCredit.Close()

		stmtLink, err := tx.PrepareContext(ctx, `
			INSERT INTO library_tracks (owner_id, track_id, position)
			VALUES (?, ?, ?)
			ON CONFLICT(owner_id, track_id) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("sqlite: failed to prepare link insert: %w", err)
		}
		defer stmtLink.Close()

		for i, t := range library.Tracks {
			f := t.Features
			if _, err := stmtTrack.ExecContext(ctx,
				t.ID, t.Title, t.Album, t.ReleaseDate, t.DurationMs, t.ISRC, t.CoverURL, t.PreviewURL, t.Popularity,
				f.Danceability, f.Energy, f.Valence, f.Tempo, f.Instrumentalness, f.Acousticness,
				f.Speechiness, f.Liveness, f.Loudness, f.Key, f.Mode, f.TimeSignature, string(t.FeatureSource),
			); err != nil {
				return fmt.Errorf("sqlite: failed to save track %s: %w", t.ID, err)
			}
			if _, err := stmtClearCredits.ExecContext(ctx, t.ID); err != nil {
				return fmt.Errorf("sqlite: failed to reset credits of %s: %w", t.ID, err)
			}
			for pos, ar := range t.Artists {
				if _, err := stmtCredit.ExecContext(ctx, t.ID, pos, ar.ID, ar.Name); err != nil {
					return fmt.Errorf("sqlite: failed to credit %s on %s: %w", ar.ID, t.ID, err)
				}
			}
			if _, err := stmtLink.ExecContext(ctx, library.OwnerID, t.ID, i); err != nil {
				return fmt.Errorf("sqlite: failed to link track %s: %w", t.ID, err)
			}
		}

		// 4. Upsert artists
		stmtArtist, err := tx.PrepareContext(ctx, `
			INSERT INTO artists (id, name, genres, popularity) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name=excluded.name, genres=excluded.genres, popularity=excluded.popularity;
		`)
		if err != nil {
			return fmt.Errorf("sqlite: failed to prepare artist upsert: %w", err)
		}
		defer stmtArtist.Close()

		for _, ar := range artists {
			if ar.ID == "" {
				continue
			}
			genres := ar.Genres
			if genres == nil {
				genres = []string{}
			}
			encoded, err := json.Marshal(genres)
			if err != nil {
				return fmt.Errorf("sqlite: failed to encode genres of %s: %w", ar.ID, err)
			}
			if _, err := stmtArtist.ExecContext(ctx, ar.ID, ar.Name, string(encoded), ar.Popularity); err != nil {
				return fmt.Errorf("sqlite: failed to save artist %s: %w", ar.ID, err)
			}
		}
		return nil
	})
}

func (a *Adapter) GetLibrary(ctx context.Context, ownerID string) (domain.Playlist, []domain.Artist, error) {
	library := domain.Playlist{OwnerID: ownerID, Tracks: []domain.Track{}}
	row := a.db.QueryRowContext(ctx, "SELECT id, name FROM libraries WHERE owner_id = ?", ownerID)
	if err := row.Scan(&library.ID, &library.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Playlist{}, nil, fmt.Errorf("sqlite: library of %s: %w", ownerID, domain.ErrNotFound)
		}
		return domain.Playlist{}, nil, fmt.Errorf("sqlite: failed to load library: %w", err)
	}

	trackRows, err := a.db.QueryContext(ctx, `
		SELECT t.id, t.title, t.album, t.release_date, t.duration_ms, t.isrc, t.cover_url, t.preview_url, t.popularity,
			IFNULL(t.danceability, 0), IFNULL(t.energy, 0), IFNULL(t.valence, 0),
			IFNULL(t.tempo, 0), IFNULL(t.instrumentalness, 0), IFNULL(t.acousticness, 0),
			IFNULL(t.speechiness, 0), IFNULL(t.liveness, 0), IFNULL(t.loudness, 0),
			IFNULL(t.musical_key, 0), IFNULL(t.mode, 0), IFNULL(t.time_signature, 0), t.feature_source
		FROM tracks t
		JOIN library_tracks lt ON lt.track_id = t.id
		WHERE lt.owner_id = ?
		ORDER BY lt.position ASC
	`, ownerID)
	if err != nil {
		return domain.Playlist{}, nil, fmt.Errorf("sqlite: failed to load library tracks: %w", err)
	}
	defer trackRows.Close()

	index := make(map[string]int)
	for trackRows.Next() {
		var track domain.Track
		var album, releaseDate, isrc, coverURL, previewURL sql.NullString
		var duration sql.NullInt64
		var source string
		f := &track.Features
		if err := trackRows.Scan(
			&track.ID, &track.Title, &album, &releaseDate, &duration, &isrc, &coverURL, &previewURL, &track.Popularity,
			&f.Danceability, &f.Energy, &f.Valence, &f.Tempo, &f.Instrumentalness, &f.Acousticness,
			&f.Speechiness, &f.Liveness, &f.Loudness, &f.Key, &f.Mode, &f.TimeSignature, &source,
		); err != nil {
			return domain.Playlist{}, nil, fmt.Errorf("sqlite: failed to scan library track: %w", err)
		}
		track.Album = album.String
		track.ReleaseDate = releaseDate.String
		track.ISRC = isrc.String
		track.CoverURL = coverURL.String
		track.PreviewURL = previewURL.String
		if duration.Valid {
			track.DurationMs = int(duration.Int64)
		}
		track.FeatureSource = domain.FeatureSource(source)
		track.Artists = []domain.ArtistRef{}
		index[track.ID] = len(library.Tracks)
		library.Tracks = append(library.Tracks, track)
	}
	if err := trackRows.Err(); err != nil {
		return domain.Playlist{}, nil, fmt.Errorf("sqlite: failed to iterate library tracks: %w", err)
	}
	trackRows.Close()

	creditRows, err := a.db.QueryContext(ctx, `
		SELECT ta.track_id, ta.artist_id, ta.artist_name
		FROM track_artists ta
		JOIN library_tracks lt ON lt.track_id = ta.track_id
		WHERE lt.owner_id = ?
		ORDER BY ta.track_id, ta.position ASC
	`, ownerID)
	if err != nil {
		return domain.Playlist{}, nil, fmt.Errorf("sqlite: failed to load credits: %w", err)
	}
	defer creditRows.Close()
	for creditRows.Next() {
		var trackID string
		var ref domain.ArtistRef
		if err := creditRows.Scan(&trackID, &ref.ID, &ref.Name); err != nil {
			return domain.Playlist{}, nil, fmt.Errorf("sqlite: failed to scan credit: %w", err)
		}
		if i, ok := index[trackID]; ok {
			library.Tracks[i].Artists = append(library.Tracks[i].Artists, ref)
		}
	}
	if err := creditRows.Err(); err != nil {
		return domain.Playlist{}, nil, fmt.Errorf("sqlite: failed to iterate credits: %w", err)
	}
	creditRows.Close()

	artistRows, err := a.db.QueryContext(ctx, `
		SELECT DISTINCT a.id, a.name, a.genres, a.popularity
		FROM artists a
		JOIN track_artists ta ON ta.artist_id = a.id
		JOIN library_tracks lt ON lt.track_id = ta.track_id
		WHERE lt.owner_id = ?
		ORDER BY a.id ASC
	`, ownerID)
	if err != nil {
		return domain.Playlist{}, nil, fmt.Errorf("sqlite: failed to load artists: %w", err)
	}
	defer artistRows.Close()

	var artists []domain.Artist
	for artistRows.Next() {
		var ar domain.Artist
		var genres string
		if err := artistRows.Scan(&ar.ID, &ar.Name, &genres, &ar.Popularity); err != nil {
			return domain.Playlist{}, nil, fmt.Errorf("sqlite: failed to scan artist: %w", err)
		}
		if err := json.Unmarshal([]byte(genres), &ar.Genres); err != nil {
			return domain.Playlist{}, nil, fmt.Errorf("sqlite: failed to decode genres of %s: %w", ar.ID, err)
		}
		artists = append(artists, ar)
	}
	if err := artistRows.Err(); err != nil {
		return domain.Playlist{}, nil, fmt.Errorf("sqlite: failed to iterate artists: %w", err)
	}

	return library, artists, nil
}

func (a *Adapter) UpdateTrackFeatures(ctx context.Context, trackID string, features domain.AudioFeatures, source domain.FeatureSource) error {
	query := `
		UPDATE tracks
		SET
			danceability = ?,
			energy = ?,
			valence = ?,
			tempo = ?,
			instrumentalness = ?,
			acousticness = ?,
			speechiness = ?,
			liveness = ?,
			loudness = ?,
			musical_key = ?,
			mode = ?,
			time_signature = ?,
			feature_source = ?
		WHERE id = ?
	`
	res, err := a.db.ExecContext(ctx, query,
		features.Danceability,
		features.Energy,
		features.Valence,
		features.Tempo,
		features.Instrumentalness,
		features.Acousticness,
		features.Speechiness,
		features.Liveness,
		features.Loudness,
		features.Key,
		features.Mode,
		features.TimeSignature,
		string(source),
		trackID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update track features: %w", err)
	}
	return requireRow(res, "track "+trackID)
}

func (a *Adapter) ListTrackOwners(ctx context.Context, trackID string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT owner_id FROM library_tracks WHERE track_id = ? ORDER BY owner_id`, trackID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list track owners: %w", err)
	}
	defer rows.Close()

	owners := []string{}
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan track owner: %w", err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate track owners: %w", err)
	}
	return owners, nil
}
