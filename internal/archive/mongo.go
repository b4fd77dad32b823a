package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/m3rciful/instarepost/core/logger"
)

const mongoCollection = "reposts"

// Mongo stores entries in the reposts collection.
type Mongo struct {
	client *mongo.Client
	col    *mongo.Collection
}

// ConnectMongo dials uri, pings it and ensures the (chat_id, posted_at) index.
func ConnectMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("archive: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("archive: ping mongo: %w", err)
	}
	col := client.Database(database).Collection(mongoCollection)
	_, err = col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "posted_at", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("archive: create mongo index: %w", err)
	}
	logger.Archive.LogAttrs(ctx, slog.LevelInfo, "mongo connected",
		slog.String("event", "archive.connect"),
		slog.String("backend", BackendMongo),
		slog.String("db", database),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return &Mongo{client: client, col: col}, nil
}

func (m *Mongo) Add(ctx context.Context, e Entry) error {
	_, err := m.col.InsertOne(ctx, e)
	logger.Archive.LogAttrs(ctx, levelFor(err), "entry added",
		slog.String("event", "archive.add"),
		slog.String("backend", BackendMongo),
		slog.String("post_id", e.PostID),
		slog.String("status", logger.Status(err)),
	)
	if err != nil {
		return fmt.Errorf("archive: insert: %w", err)
	}
	return nil
}

func (m *Mongo) List(ctx context.Context, chatID int64, limit int) ([]Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "posted_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := m.col.Find(ctx, bson.M{"chat_id": chatID}, opts)
	if err != nil {
		return nil, fmt.Errorf("archive: find: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Entry
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("archive: decode: %w", err)
	}
	return out, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
