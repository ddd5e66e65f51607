package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

const userColumns = `id, spotify_id, display_name, photo_url, lat, lon, source_playlist_id, anthem, demo,
	access_token, refresh_token, token_type, token_expiry, profile, created_at, updated_at`

// userRow holds the nullable and JSON-encoded columns of a users row.
type userRow struct {
	photoURL, sourcePlaylistID           sql.NullString
	lat, lon                             sql.NullFloat64
	anthem, profile                      sql.NullString
	accessToken, refreshToken, tokenType sql.NullString
	tokenExpiry                          sql.NullTime
}

func scanUser(s rowScanner) (domain.User, error) {
	var u domain.User
	var r userRow
	if err := s.Scan(
		&u.ID, &u.SpotifyID, &u.DisplayName, &r.photoURL, &r.lat, &r.lon, &r.sourcePlaylistID, &r.anthem, &u.Demo,
		&r.accessToken, &r.refreshToken, &r.tokenType, &r.tokenExpiry, &r.profile, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return domain.User{}, err
	}

	u.PhotoURL = r.photoURL.String
	u.SourcePlaylistID = r.sourcePlaylistID.String
	if r.lat.Valid && r.lon.Valid {
		u.Location = &domain.Location{Latitude: r.lat.Float64, Longitude: r.lon.Float64}
	}
	if r.accessToken.Valid && r.accessToken.String != "" {
		u.Token = &domain.SpotifyToken{
			AccessToken:  r.accessToken.String,
			RefreshToken: r.refreshToken.String,
			TokenType:    r.tokenType.String,
			Expiry:       r.tokenExpiry.Time,
		}
	}
	if r.anthem.Valid && r.anthem.String != "" {
		var anthem domain.Track
		if err := json.Unmarshal([]byte(r.anthem.String), &anthem); err != nil {
			return domain.User{}, fmt.Errorf("sqlite: failed to decode anthem: %w", err)
		}
		u.Anthem = &anthem
	}
	if r.profile.Valid && r.profile.String != "" {
		var p domain.TasteProfile
		if err := json.Unmarshal([]byte(r.profile.String), &p); err != nil {
			return domain.User{}, fmt.Errorf("sqlite: failed to decode profile: %w", err)
		}
		u.Profile = &p
	}
	return u, nil
}

func locationArgs(l *domain.Location) (any, any) {
	if l == nil {
		return nil, nil
	}
	return l.Latitude, l.Longitude
}

func tokenArgs(t *domain.SpotifyToken) (any, any, any, any) {
	if t == nil || t.AccessToken == "" {
		return nil, nil, nil, nil
	}
	var expiry any
	if !t.Expiry.IsZero() {
		expiry = t.Expiry.UTC()
	}
	return t.AccessToken, t.RefreshToken, t.TokenType, expiry
}

func jsonArg(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func anthemArg(t *domain.Track) (any, error) {
	if t == nil {
		return nil, nil
	}
	return jsonArg(t)
}

func (a *Adapter) UpsertUserBySpotifyID(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == "" || u.SpotifyID == "" {
		return domain.User{}, fmt.Errorf("sqlite: upsert user: %w", domain.ErrInvalidArgument)
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}

	lat, lon := locationArgs(u.Location)
	access, refresh, tokenType, expiry := tokenArgs(u.Token)
	anthem, err := anthemArg(u.Anthem)
	if err != nil {
		return domain.User{}, fmt.Errorf("sqlite: failed to encode anthem: %w", err)
	}

	// An existing user keeps its ID, location and settings; only what the
	// login refreshes is overwritten.
	query := `
		INSERT INTO users (
			id, spotify_id, display_name, photo_url, lat, lon, source_playlist_id, anthem, demo,
			access_token, refresh_token, token_type, token_expiry, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(spotify_id) DO UPDATE SET
			display_name=excluded.display_name,
			photo_url=COALESCE(NULLIF(excluded.photo_url, ''), users.photo_url),
			access_token=COALESCE(excluded.access_token, users.access_token),
			refresh_token=COALESCE(excluded.refresh_token, users.refresh_token),
			token_type=COALESCE(excluded.token_type, users.token_type),
			token_expiry=COALESCE(excluded.token_expiry, users.token_expiry),
			updated_at=excluded.updated_at;
	`
	if _, err := a.db.ExecContext(ctx, query,
		u.ID, u.SpotifyID, u.DisplayName, u.PhotoURL, lat, lon, u.SourcePlaylistID, anthem, u.Demo,
		access, refresh, tokenType, expiry, u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	); err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, fmt.Errorf("sqlite: upsert user %s: %w", u.ID, domain.ErrConflict)
		}
		return domain.User{}, fmt.Errorf("sqlite: failed to upsert user: %w", err)
	}

	return a.GetUserBySpotifyID(ctx, u.SpotifyID)
}

func (a *Adapter) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := a.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, fmt.Errorf("sqlite: user %s: %w", id, domain.ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("sqlite: failed to load user: %w", err)
	}
	return u, nil
}

func (a *Adapter) GetUserBySpotifyID(ctx context.Context, spotifyID string) (domain.User, error) {
	row := a.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE spotify_id = ?", spotifyID)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, fmt.Errorf("sqlite: spotify user %s: %w", spotifyID, domain.ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("sqlite: failed to load user: %w", err)
	}
	return u, nil
}

// UpdateUser stores the editable fields and token. The profile is written
// by SaveProfile only.
func (a *Adapter) UpdateUser(ctx context.Context, u domain.User) error {
	lat, lon := locationArgs(u.Location)
	access, refresh, tokenType, expiry := tokenArgs(u.Token)
	anthem, err := anthemArg(u.Anthem)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode anthem: %w", err)
	}
	updatedAt := u.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	res, err := a.db.ExecContext(ctx, `
		UPDATE users SET
			display_name = ?,
			photo_url = ?,
			lat = ?,
			lon = ?,
			source_playlist_id = ?,
			anthem = ?,
			access_token = ?,
			refresh_token = ?,
			token_type = ?,
			token_expiry = ?,
			updated_at = ?
		WHERE id = ?
	`, u.DisplayName, u.PhotoURL, lat, lon, u.SourcePlaylistID, anthem, access, refresh, tokenType, expiry, updatedAt.UTC(), u.ID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update user: %w", err)
	}
	return requireRow(res, "user "+u.ID)
}

func (a *Adapter) SaveProfile(ctx context.Context, p domain.TasteProfile) error {
	encoded, err := jsonArg(p)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode profile: %w", err)
	}
	res, err := a.db.ExecContext(ctx, "UPDATE users SET profile = ? WHERE id = ?", encoded, p.UserID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save profile: %w", err)
	}
	return requireRow(res, "user "+p.UserID)
}

func (a *Adapter) ListCandidates(ctx context.Context, excludeUserID string) ([]domain.Candidate, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, lat, lon, profile
		FROM users
		WHERE id != ? AND profile IS NOT NULL
		ORDER BY id ASC
	`, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list candidates: %w", err)
	}
	defer rows.Close()

	var candidates []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		var lat, lon sql.NullFloat64
		var profile string
		if err := rows.Scan(&c.UserID, &lat, &lon, &profile); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan candidate: %w", err)
		}
		if err := json.Unmarshal([]byte(profile), &c.Profile); err != nil {
			return nil, fmt.Errorf("sqlite: failed to decode profile of %s: %w", c.UserID, err)
		}
		if lat.Valid && lon.Valid {
			c.Location = &domain.Location{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate candidates: %w", err)
	}
	return candidates, nil
}
