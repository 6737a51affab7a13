package history

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/icemetrics/icemetrics/internal/aggregate"
)

const (
	defaultMongoDatabase = "icemetrics"
	runsCollection       = "runs"
)

// Mongo keeps every run's baseline in the runs collection.
type Mongo struct {
	client *mongo.Client
	runs   *mongo.Collection
}

// OpenMongo connects to MongoDB and ensures the lookup index exists.
func OpenMongo(ctx context.Context, connectionString, database string) (*Mongo, error) {
	if database == "" {
		database = defaultMongoDatabase
	}
	client, err := mongo.Connect(options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	runs := client.Database(database).Collection(runsCollection)
	_, err = runs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "warehouse", Value: 1}, {Key: "collected_at", Value: -1}},
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("creating runs index: %w", err)
	}
	return &Mongo{client: client, runs: runs}, nil
}

func (m *Mongo) Previous(ctx context.Context, warehouse string) (*aggregate.Baseline, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "collected_at", Value: -1}})
	var b aggregate.Baseline
	err := m.runs.FindOne(ctx, bson.D{{Key: "warehouse", Value: warehouse}}, opts).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading previous run: %w", err)
	}
	b.CollectedAt = b.CollectedAt.UTC()
	return &b, nil
}

func (m *Mongo) Record(ctx context.Context, b aggregate.Baseline) error {
	if _, err := m.runs.InsertOne(ctx, b); err != nil {
		return fmt.Errorf("recording run %s: %w", b.RunID, err)
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
