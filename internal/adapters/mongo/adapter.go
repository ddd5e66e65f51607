// Package mongo provides a MongoDB-backed implementation of ports.Store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
	"github.com/ewilliams-labs/duet/internal/logging"
)

const (
	usersCollection     = "users"
	tracksCollection    = "tracks"
	artistsCollection   = "artists"
	librariesCollection = "libraries"
	matchesCollection   = "matches"
	messagesCollection  = "messages"

	connectTimeout = 10 * time.Second
)

// Adapter implements the repository ports on a MongoDB database.
type Adapter struct {
	client *mongodrv.Client
	db     *mongodrv.Database
}

var _ ports.Store = (*Adapter)(nil)

// NewAdapter connects to uri, verifies the connection and creates the
// indexes the queries rely on.
func NewAdapter(ctx context.Context, uri, database string) (*Adapter, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongodrv.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: failed to connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: failed to ping: %w", err)
	}

	a := &Adapter{client: client, db: client.Database(database)}
	if err := a.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: failed to create indexes: %w", err)
	}

	logging.Component("mongo").Info().Str("database", database).Msg("connected")
	return a, nil
}

// Close disconnects the client.
func (a *Adapter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return a.client.Disconnect(ctx)
}

func (a *Adapter) users() *mongodrv.Collection     { return a.db.Collection(usersCollection) }
func (a *Adapter) tracks() *mongodrv.Collection    { return a.db.Collection(tracksCollection) }
func (a *Adapter) artists() *mongodrv.Collection   { return a.db.Collection(artistsCollection) }
func (a *Adapter) libraries() *mongodrv.Collection { return a.db.Collection(librariesCollection) }
func (a *Adapter) matches() *mongodrv.Collection   { return a.db.Collection(matchesCollection) }
func (a *Adapter) messages() *mongodrv.Collection  { return a.db.Collection(messagesCollection) }

func (a *Adapter) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongodrv.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "spotify_id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_spotify_id")},
		},
		matchesCollection: {
			{Keys: bson.D{{Key: "user_a", Value: 1}, {Key: "user_b", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_pair")},
			{Keys: bson.D{{Key: "user_b", Value: 1}}, Options: options.Index().SetName("by_user_b")},
		},
		messagesCollection: {
			{Keys: bson.D{{Key: "match_id", Value: 1}, {Key: "sent_at", Value: 1}}, Options: options.Index().SetName("by_match_sent")},
		},
	}
	for coll, models := range indexes {
		if _, err := a.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%s: %w", coll, err)
		}
	}
	return nil
}

// mapError translates driver errors to domain sentinels.
func mapError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongodrv.ErrNoDocuments):
		return fmt.Errorf("mongo: %s: %w", what, domain.ErrNotFound)
	case mongodrv.IsDuplicateKeyError(err):
		return fmt.Errorf("mongo: %s: %w", what, domain.ErrConflict)
	default:
		return fmt.Errorf("mongo: %s: %w", what, err)
	}
}

func requireMatched(res *mongodrv.UpdateResult, what string) error {
	if res.MatchedCount == 0 {
		return fmt.Errorf("mongo: %s: %w", what, domain.ErrNotFound)
	}
	return nil
}
