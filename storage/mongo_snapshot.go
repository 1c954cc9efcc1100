package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"immo-scraper/models"
)

const snapshotCollection = "kv_store"

// snapshotDoc is the single document holding the whole snapshot.
type snapshotDoc struct {
	ID      string               `bson:"_id"`
	Entries models.StateSnapshot `bson:"entries"`
}

// MongoSnapshotStore keeps the snapshot in one document under a fixed _id.
// ReplaceOne swaps the document as a whole.
type MongoSnapshotStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongoSnapshotStore(ctx context.Context, uri, dbname string) (*MongoSnapshotStore, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return &MongoSnapshotStore{
		client: cli,
		coll:   cli.Database(dbname).Collection(snapshotCollection),
	}, nil
}

func (s *MongoSnapshotStore) Load(ctx context.Context) (models.StateSnapshot, error) {
	var doc snapshotDoc
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: SnapshotKey}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.StateSnapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: load snapshot: %w", err)
	}
	if doc.Entries == nil {
		doc.Entries = models.StateSnapshot{}
	}
	return doc.Entries, nil
}

func (s *MongoSnapshotStore) Save(ctx context.Context, snap models.StateSnapshot) error {
	if snap == nil {
		snap = models.StateSnapshot{}
	}
	doc := snapshotDoc{ID: SnapshotKey, Entries: snap}
	_, err := s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: SnapshotKey}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo: save snapshot: %w", err)
	}
	return nil
}

func (s *MongoSnapshotStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
