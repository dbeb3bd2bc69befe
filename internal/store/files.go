package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/raphaelgruber/slackvault/internal/models"
)

func (s *Store) files() *mongo.Collection {
	return s.db.Collection(collFiles)
}

// UpsertFile records attachment metadata keyed by the export file id.
func (s *Store) UpsertFile(ctx context.Context, f models.File) error {
	_, err := s.files().UpdateOne(ctx,
		bson.M{"_id": f.ID},
		bson.M{"$set": bson.M{
			"name":     f.Name,
			"mimetype": f.Mimetype,
			"path":     f.Path,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", f.ID, err)
	}
	return nil
}

// GetFile fetches one file's metadata.
func (s *Store) GetFile(ctx context.Context, id string) (*models.File, error) {
	var f models.File
	if err := s.files().FindOne(ctx, bson.M{"_id": id}).Decode(&f); err != nil {
		return nil, fmt.Errorf("get file %s: %w", id, err)
	}
	return &f, nil
}
