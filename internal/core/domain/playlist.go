package domain

import "fmt"

// Playlist is the set of tracks a user's taste profile is computed from.
// It is either a Spotify playlist the user picked or a snapshot of their
// top tracks.
type Playlist struct {
	ID      string  `json:"id" bson:"_id"`
	Name    string  `json:"name" bson:"name"`
	OwnerID string  `json:"owner_id" bson:"owner_id"`
	Tracks  []Track `json:"tracks" bson:"tracks"`
}

func NewPlaylist(id, name, ownerID string) (*Playlist, error) {
	if id == "" || name == "" || ownerID == "" {
		return nil, fmt.Errorf("%w: playlist requires id, name and owner", ErrInvalidArgument)
	}
	return &Playlist{
		ID:      id,
		Name:    name,
		OwnerID: ownerID,
		Tracks:  []Track{},
	}, nil
}

// AddTrack appends a track to the playlist while preventing duplicate ISRCs.
// If the incoming track has a non-empty ISRC and that ISRC already exists in
// the playlist, AddTrack returns ErrDuplicateISRC.
func (p *Playlist) AddTrack(t Track) error {
	if t.ISRC != "" {
		for _, ex := range p.Tracks {
			if ex.ISRC != "" && ex.ISRC == t.ISRC {
				return ErrDuplicateISRC
			}
		}
	}
	p.Tracks = append(p.Tracks, t)
	return nil
}

// AddTracks adds every track, silently skipping ISRC duplicates and
// repeated track IDs. It returns how many were added.
func (p *Playlist) AddTracks(tracks []Track) int {
	seen := make(map[string]struct{}, len(p.Tracks))
	for _, t := range p.Tracks {
		seen[t.ID] = struct{}{}
	}
	added := 0
	for _, t := range tracks {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		if err := p.AddTrack(t); err != nil {
			continue
		}
		seen[t.ID] = struct{}{}
		added++
	}
	return added
}

// Analyze returns the mean audio features of the playlist's tracks.
// An empty playlist yields zero values.
func (p Playlist) Analyze() AudioFeatures {
	return MeanFeatures(p.Tracks)
}

// ArtistIDs returns the distinct artist IDs referenced by the playlist, in
// first-seen order.
func (p Playlist) ArtistIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, t := range p.Tracks {
		for _, a := range t.Artists {
			if a.ID == "" {
				continue
			}
			if _, ok := seen[a.ID]; ok {
				continue
			}
			seen[a.ID] = struct{}{}
			ids = append(ids, a.ID)
		}
	}
	return ids
}
