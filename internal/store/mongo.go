package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/homeonmap/backend/internal/models"
)

// MongoEventStore keeps the listing audit trail in MongoDB.
type MongoEventStore struct {
	col *mongo.Collection
}

func NewMongoEventStore(db *mongo.Database) *MongoEventStore {
	return &MongoEventStore{col: db.Collection("listing_events")}
}

func (s *MongoEventStore) Record(ctx context.Context, ev models.ListingEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if _, err := s.col.InsertOne(ctx, ev); err != nil {
		return fmt.Errorf("mongo insert: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first, optionally for one
// listing.
func (s *MongoEventStore) Recent(ctx context.Context, listingID string, limit int64) ([]models.ListingEvent, error) {
	filter := bson.M{}
	if listingID != "" {
		filter["listing_id"] = listingID
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var events []models.ListingEvent
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
