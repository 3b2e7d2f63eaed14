package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go-smslog/internal/observability"
	"go-smslog/internal/retry"
)

const pingTimeout = 5 * time.Second

// Mongo implements Store on a MongoDB database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *logrus.Logger
}

// dialMongo is swapped out in tests to simulate connect outcomes.
var dialMongo = func(ctx context.Context, uri, database string, logger *logrus.Logger) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Mongo{client: client, db: client.Database(database), logger: logger}, nil
}

// Connect runs the store supervisor loop: dial and verify, sleeping the
// fixed delay between attempts until the budget runs out. Exhaustion is
// fatal to the caller; the pipeline cannot run without a store.
func Connect(ctx context.Context, uri, database string, policy *retry.Policy, logger *logrus.Logger) (*Mongo, error) {
	if logger == nil {
		logger = observability.GetLogger()
	}
	for {
		m, err := dialMongo(ctx, uri, database, logger)
		if err == nil {
			logger.WithField("database", database).Info("MongoDB connection successful")
			return m, nil
		}
		logger.WithError(err).Warn("MongoDB connection failed")
		if !policy.Next() {
			return nil, fmt.Errorf("store: no more retries: %w", err)
		}
		logger.WithField("delay", policy.Delay().String()).Info("Reconnecting to MongoDB")
		if werr := policy.Wait(ctx); werr != nil {
			return nil, werr
		}
	}
}

func (m *Mongo) UpsertMerge(ctx context.Context, collection, key string, doc map[string]any) error {
	_, err := m.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("store: upsert %s/%s: %w", collection, key, err)
	}
	return nil
}

func (m *Mongo) AppendToList(ctx context.Context, collection, key, field string, item any) error {
	_, err := m.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$push": bson.M{field: item}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("store: append %s/%s.%s: %w", collection, key, field, err)
	}
	return nil
}

func (m *Mongo) FetchOne(ctx context.Context, collection, key string) (map[string]any, error) {
	var doc bson.M
	err := m.db.Collection(collection).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: fetch %s/%s: %w", collection, key, err)
	}
	return map[string]any(doc), nil
}

// Close releases the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
