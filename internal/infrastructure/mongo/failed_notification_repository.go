package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sngm3741/holiday-lights/api/internal/infrastructure/messenger"
)

// FailedNotificationRepository は送信を諦めた通知を後から再送できるよう保存する。
type FailedNotificationRepository struct {
	collection *mongo.Collection
}

func NewFailedNotificationRepository(db *mongo.Database, collectionName string) *FailedNotificationRepository {
	return &FailedNotificationRepository{collection: db.Collection(collectionName)}
}

func (r *FailedNotificationRepository) Save(ctx context.Context, failure messenger.Failure) error {
	doc := FailedNotificationDocument{
		ID:           failure.ID,
		SubmissionID: failure.SubmissionID,
		Channel:      failure.Channel,
		Payload:      failure.Payload,
		Error:        failure.Error,
		CreatedAt:    failure.CreatedAt,
	}
	_, err := r.collection.InsertOne(ctx, doc)
	return err
}

// Recent returns the latest failures, newest first.
func (r *FailedNotificationRepository) Recent(ctx context.Context, limit int) ([]messenger.Failure, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	var docs []FailedNotificationDocument
	err := withReadRetry(ctx, func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, bson.M{}, opts)
		if err != nil {
			return err
		}
		docs = nil
		return cursor.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}
	result := make([]messenger.Failure, 0, len(docs))
	for _, doc := range docs {
		result = append(result, messenger.Failure{
			ID:           doc.ID,
			SubmissionID: doc.SubmissionID,
			Channel:      doc.Channel,
			Payload:      doc.Payload,
			Error:        doc.Error,
			CreatedAt:    doc.CreatedAt,
		})
	}
	return result, nil
}
