package mongo

import (
	"context"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

// UpsertMatch inserts the match or rescores the existing record for the
// same pair, keeping its ID and decisions.
func (a *Adapter) UpsertMatch(ctx context.Context, m domain.Match) (domain.Match, error) {
	m.UserA, m.UserB = domain.OrderPair(m.UserA, m.UserB)
	if m.Status == "" {
		m.Status = domain.MatchPending
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}

	update := bson.M{
		"$set": bson.M{
			"score":      m.Score,
			"breakdown":  m.Breakdown,
			"updated_at": m.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":        m.ID,
			"decision_a": m.DecisionA,
			"decision_b": m.DecisionB,
			"status":     m.Status,
			"mutual":     m.Mutual,
			"created_at": m.CreatedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored domain.Match
	err := a.matches().FindOneAndUpdate(ctx, bson.M{"user_a": m.UserA, "user_b": m.UserB}, update, opts).Decode(&stored)
	if err != nil {
		return domain.Match{}, mapError(err, "upsert match "+m.ID)
	}
	return stored, nil
}

func (a *Adapter) GetMatch(ctx context.Context, id string) (domain.Match, error) {
	var m domain.Match
	if err := a.matches().FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return domain.Match{}, mapError(err, "match "+id)
	}
	return m, nil
}

func (a *Adapter) ListMatches(ctx context.Context, userID string, status domain.MatchStatus) ([]domain.Match, error) {
	filter := bson.M{"$or": bson.A{bson.M{"user_a": userID}, bson.M{"user_b": userID}}}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "score", Value: -1}, {Key: "_id", Value: 1}})

	cur, err := a.matches().Find(ctx, filter, opts)
	if err != nil {
		return nil, mapError(err, "list matches")
	}
	matches := []domain.Match{}
	if err := cur.All(ctx, &matches); err != nil {
		return nil, mapError(err, "decode matches")
	}
	return matches, nil
}

// RecordDecision uses a pipeline update so the caller's decision and the
// derived status land in one document write.
func (a *Adapter) RecordDecision(ctx context.Context, matchID, userID string, d domain.Decision, at time.Time) (domain.Match, error) {
	side := func(field, userField string) bson.M {
		return bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$" + userField, userID}},
			string(d),
			bson.M{"$ifNull": bson.A{"$" + field, ""}},
		}}
	}
	is := func(field string, v domain.Decision) bson.M {
		return bson.M{"$eq": bson.A{"$" + field, string(v)}}
	}
	bothLiked := bson.M{"$and": bson.A{is("decision_a", domain.DecisionLike), is("decision_b", domain.DecisionLike)}}

	pipeline := bson.A{
		bson.M{"$set": bson.M{
			"decision_a": side("decision_a", "user_a"),
			"decision_b": side("decision_b", "user_b"),
			"updated_at": at.UTC(),
		}},
		bson.M{"$set": bson.M{
			"status": bson.M{"$switch": bson.M{
				"branches": bson.A{
					bson.M{
						"case": bson.M{"$or": bson.A{is("decision_a", domain.DecisionPass), is("decision_b", domain.DecisionPass)}},
						"then": string(domain.MatchPassed),
					},
					bson.M{"case": bothLiked, "then": string(domain.MatchLiked)},
				},
				"default": string(domain.MatchPending),
			}},
			"mutual": bothLiked,
		}},
	}

	filter := bson.M{"_id": matchID, "$or": bson.A{bson.M{"user_a": userID}, bson.M{"user_b": userID}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var stored domain.Match
	if err := a.matches().FindOneAndUpdate(ctx, filter, pipeline, opts).Decode(&stored); err != nil {
		return domain.Match{}, mapError(err, "record decision on "+matchID)
	}
	return stored, nil
}

func (a *Adapter) AddMessage(ctx context.Context, msg domain.Message) error {
	if _, err := a.messages().InsertOne(ctx, msg); err != nil {
		return mapError(err, "add message "+msg.ID)
	}
	return nil
}

func (a *Adapter) ListMessages(ctx context.Context, matchID string, limit int) ([]domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := a.messages().Find(ctx, bson.M{"match_id": matchID}, opts)
	if err != nil {
		return nil, mapError(err, "list messages")
	}
	messages := []domain.Message{}
	if err := cur.All(ctx, &messages); err != nil {
		return nil, mapError(err, "decode messages")
	}
	slices.Reverse(messages)
	return messages, nil
}
