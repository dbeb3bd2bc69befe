// Package store is the MongoDB document store: jobs, conversations,
// messages, users, failed imports, and file metadata.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	collUploads       = "uploads"
	collConversations = "conversations"
	collMessages      = "messages"
	collUsers         = "users"
	collFailedImports = "failed_imports"
	collFiles         = "files"
)

// Store wraps one MongoDB database. All components share a single Store;
// index creation runs once behind a guard.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	indexMu sync.Mutex
	indexed bool
}

// Connect dials MongoDB and pings it.
func Connect(ctx context.Context, url, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &Store{client: client, db: client.Database(dbName)}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the collection indexes on first use. The mutex is
// the run-once guard shared by concurrent jobs.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if s.indexed {
		return nil
	}
	if err := s.createIndexes(ctx); err != nil {
		return err
	}
	s.indexed = true
	return nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	messages := s.db.Collection(collMessages)
	_, err := messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "text", Value: "text"}}},
		{Keys: bson.D{{Key: "conversation_id", Value: 1}}},
		{Keys: bson.D{{Key: "ts", Value: 1}}},
		{Keys: bson.D{{Key: "username", Value: 1}}},
		{
			Keys: bson.D{
				{Key: "conversation_id", Value: 1},
				{Key: "ts", Value: 1},
				{Key: "text_hash", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}

	failed := s.db.Collection(collFailedImports)
	if _, err := failed.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "job_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create failed_imports index: %w", err)
	}

	uploads := s.db.Collection(collUploads)
	if _, err := uploads.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("create uploads index: %w", err)
	}

	slog.Info("document store indexes ready")
	return nil
}

// ClearMessages truncates messages, conversations, users, failed imports,
// and file metadata. The caller clears the vector collection in the same operation to
// preserve the dual-write invariant.
func (s *Store) ClearMessages(ctx context.Context) error {
	for _, name := range []string{collMessages, collConversations, collUsers, collFailedImports, collFiles} {
		if err := s.db.Collection(name).Drop(ctx); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}
	// Text search needs the indexes back before the next import.
	s.indexMu.Lock()
	s.indexed = false
	s.indexMu.Unlock()
	return s.EnsureIndexes(ctx)
}

// ClearUploads truncates the job collection.
func (s *Store) ClearUploads(ctx context.Context) error {
	if err := s.db.Collection(collUploads).Drop(ctx); err != nil {
		return fmt.Errorf("drop uploads: %w", err)
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
