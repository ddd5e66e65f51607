package domain

// FeatureSource records where a track's audio descriptors came from.
type FeatureSource string

const (
	FeatureSourceNone      FeatureSource = ""
	FeatureSourceSpotify   FeatureSource = "spotify"
	FeatureSourceEstimated FeatureSource = "estimated"
	FeatureSourcePreview   FeatureSource = "preview"
)

// AudioFeatures are the per-track numeric descriptors provided by Spotify.
type AudioFeatures struct {
	Danceability     float64 `json:"danceability" bson:"danceability"`
	Energy           float64 `json:"energy" bson:"energy"`
	Valence          float64 `json:"valence" bson:"valence"`
	Tempo            float64 `json:"tempo" bson:"tempo"`
	Acousticness     float64 `json:"acousticness" bson:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness" bson:"instrumentalness"`
	Speechiness      float64 `json:"speechiness" bson:"speechiness"`
	Liveness         float64 `json:"liveness" bson:"liveness"`
	Loudness         float64 `json:"loudness" bson:"loudness"`
	Key              int     `json:"key" bson:"key"`
	Mode             int     `json:"mode" bson:"mode"`
	TimeSignature    int     `json:"time_signature" bson:"time_signature"`
}

// ArtistRef is the lightweight artist reference carried on a track.
type ArtistRef struct {
	ID   string `json:"id" bson:"id"`
	Name string `json:"name" bson:"name"`
}

// Track represents a musical track in the domain layer.
type Track struct {
	ID            string        `json:"id" bson:"_id"`
	Title         string        `json:"title" bson:"title"`
	Artists       []ArtistRef   `json:"artists" bson:"artists"`
	Album         string        `json:"album,omitempty" bson:"album,omitempty"`
	ReleaseDate   string        `json:"release_date,omitempty" bson:"release_date,omitempty"`
	DurationMs    int           `json:"duration_ms" bson:"duration_ms"`
	ISRC          string        `json:"isrc,omitempty" bson:"isrc,omitempty"` // International Standard Recording Code for matching
	CoverURL      string        `json:"cover_url,omitempty" bson:"cover_url,omitempty"`
	PreviewURL    string        `json:"preview_url,omitempty" bson:"preview_url,omitempty"`
	Popularity    int           `json:"popularity" bson:"popularity"`
	Features      AudioFeatures `json:"features" bson:"features"`
	FeatureSource FeatureSource `json:"feature_source,omitempty" bson:"feature_source,omitempty"`
}

// ArtistNames returns the display names of the track's artists.
func (t Track) ArtistNames() []string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return names
}

// HasFeatures reports whether the track carries audio descriptors.
func (t Track) HasFeatures() bool {
	return t.FeatureSource != FeatureSourceNone
}
