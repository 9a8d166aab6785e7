package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"iot-monitor/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	currentCollection   = "current_data"
	historyCollection   = "history"
	thresholdCollection = "thresholds"
)

type currentDoc struct {
	SensorID  string  `bson:"_id"`
	Current   float64 `bson:"irms"`
	Power     float64 `bson:"power"`
	Timestamp string  `bson:"timestamp"`
}

type historyDoc struct {
	SensorID  string  `bson:"sensor_id"`
	Timestamp string  `bson:"timestamp"`
	Current   float64 `bson:"irms"`
	Power     float64 `bson:"power"`
	State     string  `bson:"state"`
}

type thresholdDoc struct {
	SensorID  string  `bson:"_id"`
	Current   float64 `bson:"current"`
	Power     float64 `bson:"power"`
	UpdatedAt string  `bson:"updated_at"`
}

// MongoStore keeps the same data as RedisClient in three collections.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    *slog.Logger
}

func NewMongoStore(ctx context.Context, uri, database string, log *slog.Logger) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	s := &MongoStore{client: client, db: client.Database(database), log: log}
	_, err = s.db.Collection(historyCollection).Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sensor_id", Value: 1}, {Key: "timestamp", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		s.log.Warn("could not ensure history index", "error", err)
	}
	return s, nil
}

func (s *MongoStore) Current(ctx context.Context, ids []string) (map[string]models.Reading, error) {
	cursor, err := s.db.Collection(currentCollection).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to query current data: %w", err)
	}
	var docs []currentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode current data: %w", err)
	}

	out := make(map[string]models.Reading, len(docs))
	for _, d := range docs {
		out[d.SensorID] = models.Reading{Current: d.Current, Power: d.Power, Timestamp: d.Timestamp}
	}
	return out, nil
}

func (s *MongoStore) Range(ctx context.Context, id, startKey, endKey string) ([]models.RawRecord, error) {
	filter := bson.M{"sensor_id": id, "timestamp": bson.M{"$gte": startKey, "$lte": endKey}}
	return s.history(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
}

func (s *MongoStore) LastN(ctx context.Context, id string, n int) ([]models.RawRecord, error) {
	if n <= 0 {
		return []models.RawRecord{}, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(n))
	records, err := s.history(ctx, bson.M{"sensor_id": id}, opts)
	if err != nil {
		return nil, err
	}
	slices.Reverse(records)
	return records, nil
}

func (s *MongoStore) ByState(ctx context.Context, id, state string) ([]models.RawRecord, error) {
	filter := bson.M{"sensor_id": id, "state": state}
	return s.history(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
}

func (s *MongoStore) history(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.RawRecord, error) {
	cursor, err := s.db.Collection(historyCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer cursor.Close(ctx)

	records := []models.RawRecord{}
	for cursor.Next(ctx) {
		var d historyDoc
		if err := cursor.Decode(&d); err != nil {
			s.log.Warn("skipping malformed history document", "error", err)
			continue
		}
		records = append(records, models.RawRecord{
			Timestamp: d.Timestamp,
			Current:   d.Current,
			Power:     d.Power,
			State:     d.State,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return records, nil
}

func (s *MongoStore) Threshold(ctx context.Context, id string) (models.Threshold, bool, error) {
	var d thresholdDoc
	err := s.db.Collection(thresholdCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Threshold{}, false, nil
	}
	if err != nil {
		return models.Threshold{}, false, fmt.Errorf("failed to get threshold from MongoDB: %w", err)
	}
	return models.Threshold{Current: d.Current, Power: d.Power, UpdatedAt: d.UpdatedAt}, true, nil
}

func (s *MongoStore) SetThreshold(ctx context.Context, id string, t models.Threshold) error {
	doc := thresholdDoc{SensorID: id, Current: t.Current, Power: t.Power, UpdatedAt: t.UpdatedAt}
	_, err := s.db.Collection(thresholdCollection).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store threshold in MongoDB: %w", err)
	}
	return nil
}

func (s *MongoStore) Record(ctx context.Context, id string, reading models.Reading, state string) error {
	current := currentDoc{SensorID: id, Current: reading.Current, Power: reading.Power, Timestamp: reading.Timestamp}
	upsert := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(currentCollection).ReplaceOne(ctx, bson.M{"_id": id}, current, upsert); err != nil {
		return fmt.Errorf("failed to store current reading in MongoDB: %w", err)
	}

	entry := historyDoc{SensorID: id, Timestamp: reading.Timestamp, Current: reading.Current, Power: reading.Power, State: state}
	filter := bson.M{"sensor_id": id, "timestamp": reading.Timestamp}
	if _, err := s.db.Collection(historyCollection).ReplaceOne(ctx, filter, entry, upsert); err != nil {
		return fmt.Errorf("failed to store history entry in MongoDB: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
