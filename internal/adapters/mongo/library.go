package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

// libraryDoc links an owner to the ordered IDs of its tracks.
type libraryDoc struct {
	OwnerID   string    `bson:"_id"`
	ID        string    `bson:"id"`
	Name      string    `bson:"name"`
	TrackIDs  []string  `bson:"track_ids"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// SaveLibrary upserts tracks and artists, then replaces the owner's
// library document. Features sourced from a preview are never replaced.
func (a *Adapter) SaveLibrary(ctx context.Context, library domain.Playlist, artists []domain.Artist) error {
	if library.OwnerID == "" {
		return fmt.Errorf("mongo: save library: %w: missing owner", domain.ErrInvalidArgument)
	}

	trackIDs := make([]string, 0, len(library.Tracks))
	if len(library.Tracks) > 0 {
		models := make([]mongodrv.WriteModel, 0, 2*len(library.Tracks))
		for _, t := range library.Tracks {
			trackIDs = append(trackIDs, t.ID)
			models = append(models,
				mongodrv.NewUpdateOneModel().
					SetFilter(bson.M{"_id": t.ID}).
					SetUpdate(bson.M{"$set": bson.M{
						"title":        t.Title,
						"artists":      t.Artists,
						"album":        t.Album,
						"release_date": t.ReleaseDate,
						"duration_ms":  t.DurationMs,
						"isrc":         t.ISRC,
						"cover_url":    t.CoverURL,
						"preview_url":  t.PreviewURL,
						"popularity":   t.Popularity,
					}}).
					SetUpsert(true),
				mongodrv.NewUpdateOneModel().
					SetFilter(bson.M{"_id": t.ID, "feature_source": bson.M{"$ne": domain.FeatureSourcePreview}}).
					SetUpdate(bson.M{"$set": bson.M{"features": t.Features, "feature_source": t.FeatureSource}}),
			)
		}
		if _, err := a.tracks().BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
			return mapError(err, "save tracks")
		}
	}

	if len(artists) > 0 {
		models := make([]mongodrv.WriteModel, 0, len(artists))
		for _, ar := range artists {
			if ar.ID == "" {
				continue
			}
			if ar.Genres == nil {
				ar.Genres = []string{}
			}
			models = append(models, mongodrv.NewReplaceOneModel().
				SetFilter(bson.M{"_id": ar.ID}).
				SetReplacement(ar).
				SetUpsert(true))
		}
		if len(models) > 0 {
			if _, err := a.artists().BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
				return mapError(err, "save artists")
			}
		}
	}

	doc := libraryDoc{
		OwnerID:   library.OwnerID,
		ID:        library.ID,
		Name:      library.Name,
		TrackIDs:  trackIDs,
		UpdatedAt: time.Now().UTC(),
	}
	if _, err := a.libraries().ReplaceOne(ctx, bson.M{"_id": doc.OwnerID}, doc, options.Replace().SetUpsert(true)); err != nil {
		return mapError(err, "save library of "+library.OwnerID)
	}
	return nil
}

func (a *Adapter) GetLibrary(ctx context.Context, ownerID string) (domain.Playlist, []domain.Artist, error) {
	var doc libraryDoc
	if err := a.libraries().FindOne(ctx, bson.M{"_id": ownerID}).Decode(&doc); err != nil {
		return domain.Playlist{}, nil, mapError(err, "library of "+ownerID)
	}

	library := domain.Playlist{ID: doc.ID, Name: doc.Name, OwnerID: doc.OwnerID, Tracks: []domain.Track{}}
	if len(doc.TrackIDs) == 0 {
		return library, nil, nil
	}

	cur, err := a.tracks().Find(ctx, bson.M{"_id": bson.M{"$in": doc.TrackIDs}})
	if err != nil {
		return domain.Playlist{}, nil, mapError(err, "load library tracks")
	}
	var tracks []domain.Track
	if err := cur.All(ctx, &tracks); err != nil {
		return domain.Playlist{}, nil, mapError(err, "decode library tracks")
	}
	byID := make(map[string]domain.Track, len(tracks))
	for _, t := range tracks {
		byID[t.ID] = t
	}
	for _, id := range doc.TrackIDs {
		if t, ok := byID[id]; ok {
			library.Tracks = append(library.Tracks, t)
		}
	}

	artistIDs := library.ArtistIDs()
	if len(artistIDs) == 0 {
		return library, nil, nil
	}
	cur, err = a.artists().Find(ctx, bson.M{"_id": bson.M{"$in": artistIDs}}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return domain.Playlist{}, nil, mapError(err, "load artists")
	}
	var artists []domain.Artist
	if err := cur.All(ctx, &artists); err != nil {
		return domain.Playlist{}, nil, mapError(err, "decode artists")
	}
	return library, artists, nil
}

func (a *Adapter) UpdateTrackFeatures(ctx context.Context, trackID string, features domain.AudioFeatures, source domain.FeatureSource) error {
	res, err := a.tracks().UpdateOne(ctx,
		bson.M{"_id": trackID},
		bson.M{"$set": bson.M{"features": features, "feature_source": source}},
	)
	if err != nil {
		return mapError(err, "update track features "+trackID)
	}
	return requireMatched(res, "track "+trackID)
}

func (a *Adapter) ListTrackOwners(ctx context.Context, trackID string) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := a.libraries().Find(ctx, bson.M{"track_ids": trackID}, opts)
	if err != nil {
		return nil, mapError(err, "list owners of track "+trackID)
	}
	var docs []struct {
		OwnerID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapError(err, "decode owners of track "+trackID)
	}
	owners := make([]string, 0, len(docs))
	for _, d := range docs {
		owners = append(owners, d.OwnerID)
	}
	return owners, nil
}
