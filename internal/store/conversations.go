package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/raphaelgruber/slackvault/internal/models"
)

// ErrConversationNotFound is returned when a conversation id does not exist.
var ErrConversationNotFound = errors.New("conversation not found")

func (s *Store) conversations() *mongo.Collection {
	return s.db.Collection(collConversations)
}

// UpsertConversation writes conversation metadata keyed by the export
// channel id. Kind never changes after creation.
func (s *Store) UpsertConversation(ctx context.Context, conv *models.Conversation) error {
	conv.UpdatedAt = nowUTC()

	set := bson.M{
		"name":       conv.Name,
		"updated_at": conv.UpdatedAt,
	}
	if !conv.CreatedAt.IsZero() {
		set["created_at"] = conv.CreatedAt
	}
	addOptional(set, "creator", conv.Creator)
	addOptional(set, "topic", conv.Topic)
	addOptional(set, "topic_set_by", conv.TopicSetBy)
	addOptionalTime(set, "topic_set_at", conv.TopicSetAt)
	addOptional(set, "purpose", conv.Purpose)
	addOptional(set, "purpose_set_by", conv.PurposeSetBy)
	addOptionalTime(set, "purpose_set_at", conv.PurposeSetAt)
	if len(conv.Members) > 0 {
		set["members"] = conv.Members
	}

	_, err := s.conversations().UpdateOne(ctx,
		bson.M{"_id": conv.ID},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"kind": conv.Kind},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert conversation %s: %w", conv.ID, err)
	}
	return nil
}

// MarkConversationArchived flags a conversation as archived, recording who
// archived it and when (derived from the channel_archive system message).
func (s *Store) MarkConversationArchived(ctx context.Context, convID, by string, at time.Time) error {
	_, err := s.conversations().UpdateOne(ctx,
		bson.M{"_id": convID},
		bson.M{"$set": bson.M{
			"archived":    true,
			"archived_by": by,
			"archived_at": at,
			"updated_at":  nowUTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("mark conversation archived: %w", err)
	}
	return nil
}

// GetConversation fetches one conversation.
func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.conversations().FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

// GetConversations fetches several conversations by id.
func (s *Store) GetConversations(ctx context.Context, ids []string) (map[string]models.Conversation, error) {
	cursor, err := s.conversations().Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("get conversations: %w", err)
	}
	var convs []models.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	out := make(map[string]models.Conversation, len(convs))
	for _, c := range convs {
		out[c.ID] = c
	}
	return out, nil
}

// ListConversations returns every conversation sorted by name.
func (s *Store) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	cursor, err := s.conversations().Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	var convs []models.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return convs, nil
}

// CountConversations returns the total conversation count.
func (s *Store) CountConversations(ctx context.Context) (int64, error) {
	n, err := s.conversations().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}

func addOptional(set bson.M, key, value string) {
	if value != "" {
		set[key] = value
	}
}

func addOptionalTime(set bson.M, key string, value *time.Time) {
	if value != nil {
		set[key] = *value
	}
}
