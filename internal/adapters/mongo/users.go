package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

// UpsertUserBySpotifyID creates the user or refreshes the login fields of
// the existing one, which keeps its ID and settings.
func (a *Adapter) UpsertUserBySpotifyID(ctx context.Context, u domain.User) (domain.User, error) {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}

	set := bson.M{"display_name": u.DisplayName, "updated_at": u.UpdatedAt}
	if u.PhotoURL != "" {
		set["photo_url"] = u.PhotoURL
	}
	if u.Token != nil && u.Token.AccessToken != "" {
		set["token"] = u.Token
	}
	onInsert := bson.M{"_id": u.ID, "demo": u.Demo, "created_at": u.CreatedAt}
	if u.Location != nil {
		onInsert["location"] = u.Location
	}
	if u.SourcePlaylistID != "" {
		onInsert["source_playlist_id"] = u.SourcePlaylistID
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var stored domain.User
	err := a.users().FindOneAndUpdate(ctx,
		bson.M{"spotify_id": u.SpotifyID},
		bson.M{"$set": set, "$setOnInsert": onInsert},
		opts,
	).Decode(&stored)
	if err != nil {
		return domain.User{}, mapError(err, "upsert user "+u.ID)
	}
	return stored, nil
}

func (a *Adapter) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	if err := a.users().FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return domain.User{}, mapError(err, "user "+id)
	}
	return u, nil
}

func (a *Adapter) GetUserBySpotifyID(ctx context.Context, spotifyID string) (domain.User, error) {
	var u domain.User
	if err := a.users().FindOne(ctx, bson.M{"spotify_id": spotifyID}).Decode(&u); err != nil {
		return domain.User{}, mapError(err, "spotify user "+spotifyID)
	}
	return u, nil
}

// UpdateUser stores the editable fields and token. The profile is written
// by SaveProfile only.
func (a *Adapter) UpdateUser(ctx context.Context, u domain.User) error {
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = time.Now().UTC()
	}
	res, err := a.users().UpdateOne(ctx, bson.M{"_id": u.ID}, bson.M{"$set": bson.M{
		"display_name":       u.DisplayName,
		"photo_url":          u.PhotoURL,
		"location":           u.Location,
		"source_playlist_id": u.SourcePlaylistID,
		"anthem":             u.Anthem,
		"token":              u.Token,
		"updated_at":         u.UpdatedAt,
	}})
	if err != nil {
		return mapError(err, "update user "+u.ID)
	}
	return requireMatched(res, "user "+u.ID)
}

func (a *Adapter) SaveProfile(ctx context.Context, p domain.TasteProfile) error {
	res, err := a.users().UpdateOne(ctx, bson.M{"_id": p.UserID}, bson.M{"$set": bson.M{"profile": p}})
	if err != nil {
		return mapError(err, "save profile of "+p.UserID)
	}
	return requireMatched(res, "user "+p.UserID)
}

func (a *Adapter) ListCandidates(ctx context.Context, excludeUserID string) ([]domain.Candidate, error) {
	filter := bson.M{
		"_id":     bson.M{"$ne": excludeUserID},
		"profile": bson.M{"$exists": true, "$ne": nil},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.M{"_id": 1, "location": 1, "profile": 1})

	cur, err := a.users().Find(ctx, filter, opts)
	if err != nil {
		return nil, mapError(err, "list candidates")
	}
	var users []domain.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, mapError(err, "decode candidates")
	}

	candidates := make([]domain.Candidate, 0, len(users))
	for _, u := range users {
		candidates = append(candidates, domain.Candidate{UserID: u.ID, Location: u.Location, Profile: *u.Profile})
	}
	return candidates, nil
}
