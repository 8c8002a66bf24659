// Package mongostore is the optional MongoDB-backed archive store, selected
// when the server is started with --mongo-uri. It is grounded on the
// teacher's internal/db/mongodb.go connection setup (pool sizing, a single
// collection, indexes created once in the background at startup) scaled
// down to the one "archives" collection this server needs.
package mongostore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"colosseum/internal/store"
	"colosseum/internal/wire"
)

const collectionName = "archives"

// Store persists archives in a single MongoDB collection.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *slog.Logger
}

// New connects to uri, selects database, and returns a ready Store. Index
// creation happens in the background, mirroring the teacher's ensureIndexes.
func New(uri, database string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(500).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(5 * time.Minute)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	s := &Store{
		client:     client,
		collection: client.Database(database).Collection(collectionName),
		log:        log,
	}
	go s.ensureIndexes()
	return s, nil
}

func (s *Store) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "game", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, models); err != nil {
		s.log.Warn("mongostore: failed to create indexes", "error", err)
	}
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	cur, err := s.collection.Find(ctx, bson.D{}, options.Find().SetProjection(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list: %w", err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongostore: list decode: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

func (s *Store) Retrieve(ctx context.Context, id string) (*wire.ArchiveRecord, error) {
	var record wire.ArchiveRecord
	err := s.collection.FindOne(ctx, bson.D{{Key: "id", Value: id}}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: retrieve %s: %w", id, err)
	}
	return &record, nil
}

func (s *Store) Save(ctx context.Context, record wire.ArchiveRecord) error {
	_, err := s.collection.ReplaceOne(
		ctx,
		bson.D{{Key: "id", Value: record.ID}},
		record,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongostore: save %s: %w", record.ID, err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
