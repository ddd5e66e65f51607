package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
)

// fakeStore is an in-memory ports.Store.
type fakeStore struct {
	mu        sync.Mutex
	users     map[string]domain.User
	libraries map[string]domain.Playlist
	artists   map[string][]domain.Artist
	matches   map[string]domain.Match
	messages  map[string][]domain.Message

	featureUpdates map[string]domain.FeatureSource
	saveLibraryErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:          make(map[string]domain.User),
		libraries:      make(map[string]domain.Playlist),
		artists:        make(map[string][]domain.Artist),
		matches:        make(map[string]domain.Match),
		messages:       make(map[string][]domain.Message),
		featureUpdates: make(map[string]domain.FeatureSource),
	}
}

var _ ports.Store = (*fakeStore)(nil)

func (s *fakeStore) UpsertUserBySpotifyID(ctx context.Context, u domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ex := range s.users {
		if ex.SpotifyID == u.SpotifyID {
			ex.DisplayName = u.DisplayName
			ex.PhotoURL = u.PhotoURL
			if u.Token != nil {
				ex.Token = u.Token
			}
			s.users[id] = ex
			return ex, nil
		}
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *fakeStore) GetUser(ctx context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) GetUserBySpotifyID(ctx context.Context, spotifyID string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.SpotifyID == spotifyID {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (s *fakeStore) UpdateUser(ctx context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return domain.ErrNotFound
	}
	s.users[u.ID] = u
	return nil
}

func (s *fakeStore) SaveProfile(ctx context.Context, p domain.TasteProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[p.UserID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Profile = &p
	s.users[p.UserID] = u
	return nil
}

func (s *fakeStore) ListCandidates(ctx context.Context, excludeUserID string) ([]domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Candidate
	for _, u := range s.users {
		if u.ID == excludeUserID || u.Profile == nil {
			continue
		}
		out = append(out, domain.Candidate{UserID: u.ID, Location: u.Location, Profile: *u.Profile})
	}
	return out, nil
}

func (s *fakeStore) SaveLibrary(ctx context.Context, library domain.Playlist, artists []domain.Artist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveLibraryErr != nil {
		return s.saveLibraryErr
	}
	library.Tracks = append([]domain.Track(nil), library.Tracks...)
	s.libraries[library.OwnerID] = library
	s.artists[library.OwnerID] = artists
	return nil
}

func (s *fakeStore) GetLibrary(ctx context.Context, ownerID string) (domain.Playlist, []domain.Artist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pl, ok := s.libraries[ownerID]
	if !ok {
		return domain.Playlist{}, nil, domain.ErrNotFound
	}
	pl.Tracks = append([]domain.Track(nil), pl.Tracks...)
	return pl, s.artists[ownerID], nil
}

func (s *fakeStore) UpdateTrackFeatures(ctx context.Context, trackID string, features domain.AudioFeatures, source domain.FeatureSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for owner, pl := range s.libraries {
		for i, t := range pl.Tracks {
			if t.ID == trackID {
				pl.Tracks[i].Features = features
				pl.Tracks[i].FeatureSource = source
				found = true
			}
		}
		s.libraries[owner] = pl
	}
	if !found {
		return domain.ErrNotFound
	}
	s.featureUpdates[trackID] = source
	return nil
}

func (s *fakeStore) ListTrackOwners(ctx context.Context, trackID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var owners []string
	for owner, pl := range s.libraries {
		for _, t := range pl.Tracks {
			if t.ID == trackID {
				owners = append(owners, owner)
				break
			}
		}
	}
	sort.Strings(owners)
	return owners, nil
}

func (s *fakeStore) UpsertMatch(ctx context.Context, m domain.Match) (domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ex := range s.matches {
		if ex.UserA == m.UserA && ex.UserB == m.UserB {
			ex.Score = m.Score
			ex.Breakdown = m.Breakdown
			ex.UpdatedAt = m.UpdatedAt
			s.matches[id] = ex
			return ex, nil
		}
	}
	s.matches[m.ID] = m
	return m, nil
}

func (s *fakeStore) GetMatch(ctx context.Context, id string) (domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return domain.Match{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *fakeStore) ListMatches(ctx context.Context, userID string, status domain.MatchStatus) ([]domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Match
	for _, m := range s.matches {
		if m.Involves(userID) && (status == "" || m.Status == status) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *fakeStore) RecordDecision(ctx context.Context, matchID, userID string, d domain.Decision, at time.Time) (domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return domain.Match{}, domain.ErrNotFound
	}
	if err := m.Decide(userID, d, at); err != nil {
		return domain.Match{}, err
	}
	s.matches[matchID] = m
	return m, nil
}

func (s *fakeStore) AddMessage(ctx context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.MatchID] = append(s.messages[msg.MatchID], msg)
	return nil
}

func (s *fakeStore) ListMessages(ctx context.Context, matchID string, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[matchID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.Message(nil), msgs...), nil
}

func (s *fakeStore) Close() error { return nil }

// fakeSpotify serves canned data keyed by what the tests set up.
type fakeSpotify struct {
	mu sync.Mutex

	user        ports.SpotifyUser
	userErr     error
	playlist    domain.Playlist
	topTracks   []domain.Track
	features    map[string]domain.AudioFeatures
	estimated   map[string]bool
	artists     []domain.Artist
	recommended []domain.Track
	anthem      domain.Track
	anthemErr   error
	nowPlaying  *ports.NowPlaying

	featureRequests [][]string
	seeds           ports.RecommendationSeeds
	topLimit        int
}

var _ ports.SpotifyProvider = (*fakeSpotify)(nil)

func (f *fakeSpotify) GetCurrentUser(ctx context.Context, token domain.SpotifyToken) (ports.SpotifyUser, error) {
	return f.user, f.userErr
}

func (f *fakeSpotify) GetPlaylistTracks(ctx context.Context, token domain.SpotifyToken, playlistID string) (domain.Playlist, error) {
	if f.playlist.ID != playlistID {
		return domain.Playlist{}, domain.ErrNotFound
	}
	pl := f.playlist
	pl.Tracks = append([]domain.Track(nil), pl.Tracks...)
	return pl, nil
}

func (f *fakeSpotify) GetTopTracks(ctx context.Context, token domain.SpotifyToken, limit int) ([]domain.Track, error) {
	f.mu.Lock()
	f.topLimit = limit
	f.mu.Unlock()
	return append([]domain.Track(nil), f.topTracks...), nil
}

func (f *fakeSpotify) GetCurrentlyPlaying(ctx context.Context, token domain.SpotifyToken) (*ports.NowPlaying, error) {
	return f.nowPlaying, nil
}

func (f *fakeSpotify) GetAudioFeatures(ctx context.Context, tracks []domain.Track) ([]domain.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(tracks))
	out := make([]domain.Track, len(tracks))
	for i, t := range tracks {
		ids = append(ids, t.ID)
		t.Features = f.features[t.ID]
		t.FeatureSource = domain.FeatureSourceSpotify
		if f.estimated[t.ID] {
			t.FeatureSource = domain.FeatureSourceEstimated
		}
		out[i] = t
	}
	f.featureRequests = append(f.featureRequests, ids)
	return out, nil
}

func (f *fakeSpotify) GetArtists(ctx context.Context, ids []string) ([]domain.Artist, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []domain.Artist
	for _, a := range f.artists {
		if _, ok := want[a.ID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeSpotify) GetRecommendations(ctx context.Context, seeds ports.RecommendationSeeds) ([]domain.Track, error) {
	f.mu.Lock()
	f.seeds = seeds
	f.mu.Unlock()
	return f.recommended, nil
}

func (f *fakeSpotify) GetTrackByMetadata(ctx context.Context, title, artist string) (domain.Track, error) {
	return f.anthem, f.anthemErr
}

type fakeCache struct {
	mu       sync.Mutex
	profiles map[string]domain.TasteProfile
}

func newFakeCache() *fakeCache {
	return &fakeCache{profiles: make(map[string]domain.TasteProfile)}
}

func (c *fakeCache) GetProfile(ctx context.Context, userID string) (domain.TasteProfile, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.profiles[userID]
	return p, ok, nil
}

func (c *fakeCache) SetProfile(ctx context.Context, p domain.TasteProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[p.UserID] = p
	return nil
}

func (c *fakeCache) InvalidateProfile(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.profiles, userID)
	return nil
}

type fakeJobs struct {
	mu       sync.Mutex
	syncs    []string
	previews []ports.PreviewJob
}

func (j *fakeJobs) SubmitProfileSync(userID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.syncs = append(j.syncs, userID)
	return true
}

func (j *fakeJobs) SubmitPreviewAnalysis(job ports.PreviewJob) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.previews = append(j.previews, job)
	return true
}

type fakeVibes struct {
	filter domain.VibeFilter
	err    error
	got    string
}

func (v *fakeVibes) InterpretVibe(ctx context.Context, text string) (domain.VibeFilter, error) {
	v.got = text
	return v.filter, v.err
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func validToken() *domain.SpotifyToken {
	return &domain.SpotifyToken{AccessToken: "at", TokenType: "Bearer", Expiry: testNow.Add(time.Hour)}
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}
