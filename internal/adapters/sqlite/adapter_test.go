package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := NewAdapter(":memory:")
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func seedUser(t *testing.T, a *Adapter, id, spotifyID string) domain.User {
	t.Helper()
	u, err := domain.NewUser(id, spotifyID, "User "+id, time.Now().UTC())
	if err != nil {
		t.Fatalf("new user: %v", err)
	}
	stored, err := a.UpsertUserBySpotifyID(context.Background(), u)
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	return stored
}

func TestAdapter_MigrateIsIdempotent(t *testing.T) {
	a := newTestAdapter(t)
	if err := a.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestAdapter_UpsertUserBySpotifyID(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	first := seedUser(t, a, "u1", "sp1")
	first.Location = &domain.Location{Latitude: 52.52, Longitude: 13.405}
	first.SourcePlaylistID = "pl-1"
	if err := a.UpdateUser(ctx, first); err != nil {
		t.Fatalf("update user: %v", err)
	}

	relogin, _ := domain.NewUser("u-other", "sp1", "Renamed", time.Now().UTC())
	relogin.Token = &domain.SpotifyToken{AccessToken: "tok", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
	got, err := a.UpsertUserBySpotifyID(ctx, relogin)
	if err != nil {
		t.Fatalf("upsert existing: %v", err)
	}

	if got.ID != "u1" {
		t.Fatalf("existing user should keep its ID, got %q", got.ID)
	}
	if got.DisplayName != "Renamed" {
		t.Errorf("display name not refreshed: %q", got.DisplayName)
	}
	if got.Location == nil || got.Location.Latitude != 52.52 || got.SourcePlaylistID != "pl-1" {
		t.Errorf("settings should survive a login: %+v", got)
	}
	if got.Token == nil || got.Token.AccessToken != "tok" {
		t.Errorf("token not stored: %+v", got.Token)
	}

	clash, _ := domain.NewUser("u1", "sp-different", "Clash", time.Now().UTC())
	if _, err := a.UpsertUserBySpotifyID(ctx, clash); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for reused ID, got %v", err)
	}
}

func TestAdapter_UserNotFound(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	tests := []struct {
		name string
		call func() error
	}{
		{"get", func() error { _, err := a.GetUser(ctx, "missing"); return err }},
		{"get by spotify id", func() error { _, err := a.GetUserBySpotifyID(ctx, "missing"); return err }},
		{"update", func() error { return a.UpdateUser(ctx, domain.User{ID: "missing"}) }},
		{"save profile", func() error { return a.SaveProfile(ctx, domain.TasteProfile{UserID: "missing"}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestAdapter_ProfilesAndCandidates(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	seedUser(t, a, "u1", "sp1")
	u2 := seedUser(t, a, "u2", "sp2")
	seedUser(t, a, "u3", "sp3") // no profile yet

	u2.Location = &domain.Location{Latitude: 48.85, Longitude: 2.35}
	if err := a.UpdateUser(ctx, u2); err != nil {
		t.Fatalf("update: %v", err)
	}

	for _, id := range []string{"u1", "u2"} {
		p := domain.TasteProfile{
			UserID:     id,
			TrackCount: 2,
			Mood:       domain.Mood{Energy: 0.5, Valence: 0.4, Danceability: 0.3},
			Genres:     domain.GenreRanking{Primary: []domain.GenreWeight{{Genre: "indie", Count: 2, Share: 1}}},
		}
		if err := a.SaveProfile(ctx, p); err != nil {
			t.Fatalf("save profile: %v", err)
		}
	}

	u1, err := a.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u1.Profile == nil || u1.Profile.TrackCount != 2 || u1.Profile.Genres.Primary[0].Genre != "indie" {
		t.Fatalf("profile not round-tripped: %+v", u1.Profile)
	}

	candidates, err := a.ListCandidates(ctx, "u1")
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].UserID != "u2" {
		t.Fatalf("expected only u2, got %+v", candidates)
	}
	if candidates[0].Location == nil || candidates[0].Location.Longitude != 2.35 {
		t.Fatalf("candidate location missing: %+v", candidates[0])
	}
	if candidates[0].Profile.Mood.Energy != 0.5 {
		t.Fatalf("candidate profile missing: %+v", candidates[0].Profile)
	}
}

func TestAdapter_Library(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)

	library := domain.Playlist{
		ID:      "top",
		Name:    "Top tracks",
		OwnerID: "u1",
		Tracks: []domain.Track{
			{
				ID:         "t1",
				Title:      "Song One",
				Artists:    []domain.ArtistRef{{ID: "a1", Name: "Artist A"}, {ID: "a2", Name: "Artist B"}},
				Album:      "Album A",
				DurationMs: 123000,
				ISRC:       "ISRC-1",
				CoverURL:   "https://img.test/1.jpg",
				PreviewURL: "https://preview.test/1.mp3",
				Features: domain.AudioFeatures{
					Danceability: 0.25, Energy: 0.5, Valence: 0.75, Tempo: 120, Loudness: -7, Key: 4, Mode: 1, TimeSignature: 4,
				},
				FeatureSource: domain.FeatureSourceSpotify,
			},
			{
				ID:            "t2",
				Title:         "Song Two",
				Artists:       []domain.ArtistRef{{ID: "a2", Name: "Artist B"}},
				FeatureSource: domain.FeatureSourceEstimated,
			},
		},
	}
	artists := []domain.Artist{
		{ID: "a1", Name: "Artist A", Genres: []string{"indie", "shoegaze"}},
		{ID: "a2", Name: "Artist B"},
	}

	if err := a.SaveLibrary(ctx, library, artists); err != nil {
		t.Fatalf("save library: %v", err)
	}

	got, gotArtists, err := a.GetLibrary(ctx, "u1")
	if err != nil {
		t.Fatalf("get library: %v", err)
	}
	if got.ID != "top" || got.Name != "Top tracks" || len(got.Tracks) != 2 {
		t.Fatalf("unexpected library: %+v", got)
	}
	t1 := got.Tracks[0]
	if t1.ID != "t1" || len(t1.Artists) != 2 || t1.Artists[1].Name != "Artist B" {
		t.Fatalf("track credits not kept in order: %+v", t1)
	}
	if t1.Features != library.Tracks[0].Features || t1.FeatureSource != domain.FeatureSourceSpotify {
		t.Fatalf("features not round-tripped: %+v", t1.Features)
	}
	if t1.PreviewURL != "https://preview.test/1.mp3" || t1.ISRC != "ISRC-1" {
		t.Fatalf("metadata not round-tripped: %+v", t1)
	}
	if len(gotArtists) != 2 || len(gotArtists[0].Genres) != 2 {
		t.Fatalf("unexpected artists: %+v", gotArtists)
	}

	// Preview analysis wins over a later estimate.
	previewed := domain.AudioFeatures{Energy: 0.91}
	if err := a.UpdateTrackFeatures(ctx, "t2", previewed, domain.FeatureSourcePreview); err != nil {
		t.Fatalf("update features: %v", err)
	}
	library.Tracks = library.Tracks[1:]
	if err := a.SaveLibrary(ctx, library, nil); err != nil {
		t.Fatalf("resave library: %v", err)
	}
	got, _, err = a.GetLibrary(ctx, "u1")
	if err != nil {
		t.Fatalf("get library: %v", err)
	}
	if len(got.Tracks) != 1 {
		t.Fatalf("library should be replaced, got %d tracks", len(got.Tracks))
	}
	if got.Tracks[0].FeatureSource != domain.FeatureSourcePreview || got.Tracks[0].Features.Energy != 0.91 {
		t.Fatalf("preview features overwritten: %+v", got.Tracks[0])
	}

	other := domain.Playlist{ID: "p2", Name: "Other", OwnerID: "u2", Tracks: library.Tracks}
	if err := a.SaveLibrary(ctx, other, nil); err != nil {
		t.Fatalf("save second library: %v", err)
	}
	owners, err := a.ListTrackOwners(ctx, "t2")
	if err != nil {
		t.Fatalf("list owners: %v", err)
	}
	if len(owners) != 2 || owners[0] != "u1" || owners[1] != "u2" {
		t.Fatalf("expected both owners of t2, got %v", owners)
	}
	if owners, err := a.ListTrackOwners(ctx, "t1"); err != nil || len(owners) != 0 {
		t.Fatalf("t1 left every library, got %v (%v)", owners, err)
	}

	if err := a.UpdateTrackFeatures(ctx, "missing", previewed, domain.FeatureSourcePreview); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := a.GetLibrary(ctx, "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdapter_Matches(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	now := time.Now().UTC()

	m1, _ := domain.NewMatch("m1", "u2", "u1", domain.Compatibility{Score: 0.6, Breakdown: domain.Breakdown{Genre: 0.5, SharedGenres: []string{"indie"}}}, now)
	m2, _ := domain.NewMatch("m2", "u1", "u3", domain.Compatibility{Score: 0.9}, now)

	for _, m := range []domain.Match{m1, m2} {
		if _, err := a.UpsertMatch(ctx, m); err != nil {
			t.Fatalf("upsert match: %v", err)
		}
	}

	// u1 likes m1, then the pair is rescored under a new ID.
	decided, err := a.RecordDecision(ctx, "m1", "u1", domain.DecisionLike, now)
	if err != nil {
		t.Fatalf("record decision: %v", err)
	}
	if decided.DecisionA != domain.DecisionLike || decided.Status != domain.MatchPending {
		t.Fatalf("unexpected match after one like: %+v", decided)
	}
	again, _ := domain.NewMatch("m1-new", "u1", "u2", domain.Compatibility{Score: 0.7}, now)
	stored, err := a.UpsertMatch(ctx, again)
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if stored.ID != "m1" || stored.Score != 0.7 || stored.DecisionA != domain.DecisionLike {
		t.Fatalf("rescore should keep ID and decisions: %+v", stored)
	}

	all, err := a.ListMatches(ctx, "u1", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != "m2" || all[1].ID != "m1" {
		t.Fatalf("expected best score first, got %+v", all)
	}

	pending, err := a.ListMatches(ctx, "u2", domain.MatchPending)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "m1" {
		t.Fatalf("unexpected pending matches: %+v", pending)
	}

	liked, err := a.ListMatches(ctx, "u1", domain.MatchLiked)
	if err != nil {
		t.Fatalf("list liked: %v", err)
	}
	if len(liked) != 0 {
		t.Fatalf("no match is mutual yet, got %+v", liked)
	}

	got, err := a.GetMatch(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserA != "u1" || got.UserB != "u2" {
		t.Fatalf("pair not canonical: %+v", got)
	}

	if _, err := a.GetMatch(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := a.RecordDecision(ctx, "missing", "u1", domain.DecisionLike, now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := a.RecordDecision(ctx, "m2", "u2", domain.DecisionLike, now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("non-participant should not match a row, got %v", err)
	}
}

func TestAdapter_RecordDecision(t *testing.T) {
	tests := []struct {
		name       string
		decisions  [][2]string // user, decision in order
		wantA      domain.Decision
		wantB      domain.Decision
		wantStatus domain.MatchStatus
		wantMutual bool
	}{
		{
			name:       "both like",
			decisions:  [][2]string{{"u1", "like"}, {"u2", "like"}},
			wantA:      domain.DecisionLike,
			wantB:      domain.DecisionLike,
			wantStatus: domain.MatchLiked,
			wantMutual: true,
		},
		{
			name:       "reverse order",
			decisions:  [][2]string{{"u2", "like"}, {"u1", "like"}},
			wantA:      domain.DecisionLike,
			wantB:      domain.DecisionLike,
			wantStatus: domain.MatchLiked,
			wantMutual: true,
		},
		{
			name:       "like then pass",
			decisions:  [][2]string{{"u1", "like"}, {"u2", "pass"}},
			wantA:      domain.DecisionLike,
			wantB:      domain.DecisionPass,
			wantStatus: domain.MatchPassed,
		},
		{
			name:       "like after pass stays passed",
			decisions:  [][2]string{{"u1", "pass"}, {"u2", "like"}},
			wantA:      domain.DecisionPass,
			wantB:      domain.DecisionLike,
			wantStatus: domain.MatchPassed,
		},
		{
			name:       "single like",
			decisions:  [][2]string{{"u2", "like"}},
			wantB:      domain.DecisionLike,
			wantStatus: domain.MatchPending,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			a := newTestAdapter(t)
			now := time.Now().UTC()

			m, _ := domain.NewMatch("m1", "u1", "u2", domain.Compatibility{Score: 0.8}, now)
			if _, err := a.UpsertMatch(ctx, m); err != nil {
				t.Fatalf("upsert match: %v", err)
			}

			// Both sides read the match before either decision is written.
			for range tc.decisions {
				if _, err := a.GetMatch(ctx, "m1"); err != nil {
					t.Fatalf("get: %v", err)
				}
			}
			for _, d := range tc.decisions {
				if _, err := a.RecordDecision(ctx, "m1", d[0], domain.Decision(d[1]), now); err != nil {
					t.Fatalf("record decision: %v", err)
				}
			}

			got, err := a.GetMatch(ctx, "m1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.DecisionA != tc.wantA || got.DecisionB != tc.wantB {
				t.Fatalf("decisions: got %q/%q, want %q/%q", got.DecisionA, got.DecisionB, tc.wantA, tc.wantB)
			}
			if got.Status != tc.wantStatus || got.Mutual != tc.wantMutual {
				t.Fatalf("status: got %s mutual=%v, want %s mutual=%v", got.Status, got.Mutual, tc.wantStatus, tc.wantMutual)
			}
		})
	}
}

func TestAdapter_Messages(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t)
	now := time.Now().UTC()

	m, _ := domain.NewMatch("m1", "u1", "u2", domain.Compatibility{Score: 0.8}, now)
	if _, err := a.UpsertMatch(ctx, m); err != nil {
		t.Fatalf("upsert match: %v", err)
	}

	bodies := []string{"hi", "hey", "what are you listening to?"}
	for i, body := range bodies {
		msg := domain.Message{ID: "msg" + string(rune('a'+i)), MatchID: "m1", SenderID: "u1", Body: body, SentAt: now.Add(time.Duration(i) * time.Second)}
		if err := a.AddMessage(ctx, msg); err != nil {
			t.Fatalf("add message: %v", err)
		}
	}

	if err := a.AddMessage(ctx, domain.Message{ID: "msga", MatchID: "m1", SenderID: "u2", Body: "dup", SentAt: now}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	all, err := a.ListMessages(ctx, "m1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Body != "hi" || all[2].Body != "what are you listening to?" {
		t.Fatalf("expected oldest first, got %+v", all)
	}

	latest, err := a.ListMessages(ctx, "m1", 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(latest) != 2 || latest[0].Body != "hey" || latest[1].Body != "what are you listening to?" {
		t.Fatalf("expected the two most recent, got %+v", latest)
	}
}
