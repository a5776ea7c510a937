package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const activityCollection = "user_activity"

type recordDocument struct {
	ID         string    `bson:"_id"`
	UserID     string    `bson:"userId"`
	Actor      string    `bson:"actor"`
	Action     string    `bson:"action"`
	FromStatus string    `bson:"fromStatus,omitempty"`
	ToStatus   string    `bson:"toStatus,omitempty"`
	Step       string    `bson:"step,omitempty"`
	OccurredAt time.Time `bson:"occurredAt"`
}

// MongoLog persists onboarding history in a MongoDB collection.
type MongoLog struct {
	records *mongo.Collection
}

// NewMongoLog builds a history on the user_activity collection of db.
func NewMongoLog(db *mongo.Database) *MongoLog {
	return &MongoLog{records: db.Collection(activityCollection)}
}

// EnsureIndexes creates the per-user lookup index.
func (l *MongoLog) EnsureIndexes(ctx context.Context) error {
	_, err := l.records.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "occurredAt", Value: 1}},
	})
	return err
}

// Append inserts one record.
func (l *MongoLog) Append(ctx context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now().UTC()
	}
	_, err := l.records.InsertOne(ctx, recordDocument(record))
	return err
}

// ForUser returns the history of userID, oldest first.
func (l *MongoLog) ForUser(ctx context.Context, userID string) ([]Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurredAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := l.records.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	records := []Record{}
	for cur.Next(ctx) {
		var doc recordDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		r := Record(doc)
		r.OccurredAt = r.OccurredAt.UTC()
		records = append(records, r)
	}
	return records, cur.Err()
}
