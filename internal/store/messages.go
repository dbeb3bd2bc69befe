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

func (s *Store) messages() *mongo.Collection {
	return s.db.Collection(collMessages)
}

// InsertMessages inserts a batch, skipping duplicates. The unique index on
// (conversation_id, ts, text_hash) rejects re-runs of the same extract tree;
// the unordered write keeps going past those collisions. Returns how many
// documents were actually inserted.
func (s *Store) InsertMessages(ctx context.Context, msgs []*models.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	docs := make([]any, len(msgs))
	for i, m := range msgs {
		docs[i] = m
	}

	res, err := s.messages().InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			var bulkErr mongo.BulkWriteException
			if errors.As(err, &bulkErr) {
				return len(msgs) - len(bulkErr.WriteErrors), nil
			}
			return 0, nil
		}
		return 0, fmt.Errorf("insert messages: %w", err)
	}
	return len(res.InsertedIDs), nil
}

// CountMessages returns the total message count.
func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	n, err := s.messages().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// TextHit is one full-text match with its lexical score.
type TextHit struct {
	Message models.Message `bson:",inline"`
	Score   float64        `bson:"score"`
}

// SearchText runs a full-text query against messages.text, best first.
func (s *Store) SearchText(ctx context.Context, query string, limit int) ([]TextHit, error) {
	opts := options.Find().
		SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetSort(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetLimit(int64(limit))

	cursor, err := s.messages().Find(ctx, bson.M{"$text": bson.M{"$search": query}}, opts)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	var hits []TextHit
	if err := cursor.All(ctx, &hits); err != nil {
		return nil, fmt.Errorf("decode text hits: %w", err)
	}
	return hits, nil
}

// StreamMessages walks every message in deterministic order (conversation,
// then timestamp, then ingestion ordinal), invoking fn per batch, so
// repeated training runs embed the same batches in the same order.
func (s *Store) StreamMessages(ctx context.Context, batchSize int, fn func([]models.Message) error) error {
	opts := options.Find().
		SetSort(bson.D{{Key: "conversation_id", Value: 1}, {Key: "ts", Value: 1}, {Key: "seq", Value: 1}}).
		SetBatchSize(int32(batchSize))

	cursor, err := s.messages().Find(ctx, bson.M{}, opts)
	if err != nil {
		return fmt.Errorf("stream messages: %w", err)
	}
	defer cursor.Close(ctx)

	batch := make([]models.Message, 0, batchSize)
	for cursor.Next(ctx) {
		var m models.Message
		if err := cursor.Decode(&m); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		batch = append(batch, m)
		if len(batch) == batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("message cursor: %w", err)
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

// ListMessageIDs returns every message _id. Used for orphan-vector culling.
func (s *Store) ListMessageIDs(ctx context.Context) (map[string]bool, error) {
	cursor, err := s.messages().Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("list message ids: %w", err)
	}
	defer cursor.Close(ctx)

	ids := make(map[string]bool)
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode message id: %w", err)
		}
		ids[doc.ID] = true
	}
	return ids, cursor.Err()
}

// ConversationMessages pages through one conversation in time order, with an
// optional case-insensitive text filter.
func (s *Store) ConversationMessages(ctx context.Context, convID, q string, page, pageSize int) ([]models.Message, error) {
	filter := bson.M{"conversation_id": convID}
	if q != "" {
		filter["text"] = bson.M{"$regex": q, "$options": "i"}
	}
	if page < 1 {
		page = 1
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "ts", Value: 1}, {Key: "seq", Value: 1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := s.messages().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("conversation messages: %w", err)
	}
	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return msgs, nil
}

// ContextAround returns up to n messages before and after the given
// timestamp in a conversation, plus the message itself, in time order.
func (s *Store) ContextAround(ctx context.Context, convID string, ts time.Time, n int) ([]models.Message, error) {
	before, err := s.findContext(ctx, convID, bson.M{"$lt": ts}, -1, n)
	if err != nil {
		return nil, err
	}
	at, err := s.findContext(ctx, convID, ts, 1, 0)
	if err != nil {
		return nil, err
	}
	after, err := s.findContext(ctx, convID, bson.M{"$gt": ts}, 1, n)
	if err != nil {
		return nil, err
	}

	// The before slice arrives newest-first.
	out := make([]models.Message, 0, len(before)+len(at)+len(after))
	for i := len(before) - 1; i >= 0; i-- {
		out = append(out, before[i])
	}
	out = append(out, at...)
	out = append(out, after...)
	return out, nil
}

func (s *Store) findContext(ctx context.Context, convID string, tsFilter any, order, limit int) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "ts", Value: order}, {Key: "seq", Value: order}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cursor, err := s.messages().Find(ctx, bson.M{"conversation_id": convID, "ts": tsFilter}, opts)
	if err != nil {
		return nil, fmt.Errorf("context query: %w", err)
	}
	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	return msgs, nil
}
