package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/raphaelgruber/slackvault/internal/models"
)

func (s *Store) failedImports() *mongo.Collection {
	return s.db.Collection(collFailedImports)
}

// RecordFailedImport captures a single parse or write failure. These never
// block job advancement; a write error here is logged by the caller and
// swallowed.
func (s *Store) RecordFailedImport(ctx context.Context, f models.FailedImport) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CapturedAt.IsZero() {
		f.CapturedAt = nowUTC()
	}
	if _, err := s.failedImports().InsertOne(ctx, f); err != nil {
		return fmt.Errorf("record failed import: %w", err)
	}
	return nil
}

// ListFailedImports returns the failures for one job, oldest first.
func (s *Store) ListFailedImports(ctx context.Context, jobID string) ([]models.FailedImport, error) {
	cursor, err := s.failedImports().Find(ctx, bson.M{"job_id": jobID},
		options.Find().SetSort(bson.D{{Key: "captured_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list failed imports: %w", err)
	}
	var failures []models.FailedImport
	if err := cursor.All(ctx, &failures); err != nil {
		return nil, fmt.Errorf("decode failed imports: %w", err)
	}
	return failures, nil
}
