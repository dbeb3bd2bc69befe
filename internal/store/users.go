package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/raphaelgruber/slackvault/internal/models"
)

func (s *Store) users() *mongo.Collection {
	return s.db.Collection(collUsers)
}

// UserActivity accumulates one user's presence in one conversation during an
// import run.
type UserActivity struct {
	Username     string
	Conversation string
	FirstSeen    time.Time
	LastSeen     time.Time
	MessageCount int
}

// UpsertUserActivity folds activity into the user document: first/last seen
// widen monotonically, the conversation set grows, the message count adds.
func (s *Store) UpsertUserActivity(ctx context.Context, a UserActivity) error {
	_, err := s.users().UpdateOne(ctx,
		bson.M{"_id": a.Username},
		bson.M{
			"$min":      bson.M{"first_seen": a.FirstSeen},
			"$max":      bson.M{"last_seen": a.LastSeen},
			"$addToSet": bson.M{"conversations": a.Conversation},
			"$inc":      bson.M{"message_count": a.MessageCount},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", a.Username, err)
	}
	return nil
}

// ListUsers returns every user sorted by username.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	cursor, err := s.users().Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}
