package domain

// Artist is a performer with the genre tags Spotify attaches to it.
// Genres may be empty.
type Artist struct {
	ID         string   `json:"id" bson:"_id"`
	Name       string   `json:"name" bson:"name"`
	Genres     []string `json:"genres" bson:"genres"`
	Popularity int      `json:"popularity" bson:"popularity"`
}

// IndexArtists keys artists by ID, dropping entries without one.
func IndexArtists(artists []Artist) map[string]Artist {
	idx := make(map[string]Artist, len(artists))
	for _, a := range artists {
		if a.ID == "" {
			continue
		}
		idx[a.ID] = a
	}
	return idx
}
