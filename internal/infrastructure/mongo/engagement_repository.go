package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

// EngagementRepository は決定的な _id への InsertOne を条件付き作成として使う。
type EngagementRepository struct {
	collection *mongo.Collection
}

func NewEngagementRepository(db *mongo.Database, collectionName string) *EngagementRepository {
	return &EngagementRepository{collection: db.Collection(collectionName)}
}

// Create は同じIDのレコードがあれば apperror.ErrAlreadyExists を返す。
func (r *EngagementRepository) Create(ctx context.Context, record domain.EngagementRecord) error {
	doc := EngagementDocument{
		ID:         record.ID,
		Type:       string(record.Type),
		UserID:     record.UserID,
		TargetKind: string(record.Target.Kind),
		TargetID:   record.Target.ID,
		Reason:     record.Reason,
		CreatedAt:  record.CreatedAt,
	}
	_, err := r.collection.InsertOne(ctx, doc)
	return mapInsertErr(err)
}

func (r *EngagementRepository) FindByID(ctx context.Context, id string) (*domain.EngagementRecord, error) {
	var doc EngagementDocument
	err := withReadRetry(ctx, func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	})
	if err != nil {
		return nil, mapFindErr(err)
	}
	record := mapEngagementDocument(doc)
	return &record, nil
}

// Delete は実際に削除した場合だけ true を返す。
func (r *EngagementRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return result.DeletedCount == 1, nil
}

func (r *EngagementRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	err := withReadRetry(ctx, func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
		if err != nil {
			return err
		}
		var docs []struct {
			ID string `bson:"_id"`
		}
		if err := cursor.All(ctx, &docs); err != nil {
			return err
		}
		for _, doc := range docs {
			existing[doc.ID] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (r *EngagementRepository) ListByUser(ctx context.Context, userID string, t domain.EngagementType, limit int) ([]domain.EngagementRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	var docs []EngagementDocument
	err := withReadRetry(ctx, func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, bson.M{"userId": userID, "type": string(t)}, opts)
		if err != nil {
			return err
		}
		docs = nil
		return cursor.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}
	result := make([]domain.EngagementRecord, 0, len(docs))
	for _, doc := range docs {
		result = append(result, mapEngagementDocument(doc))
	}
	return result, nil
}

// DeleteByTarget は対象の削除時にまとめて記録を消す。カウンタは対象ごと消えるため触らない。
func (r *EngagementRepository) DeleteByTarget(ctx context.Context, targetID string) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"targetId": targetID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func mapEngagementDocument(doc EngagementDocument) domain.EngagementRecord {
	return domain.EngagementRecord{
		ID:        doc.ID,
		Type:      domain.EngagementType(doc.Type),
		UserID:    doc.UserID,
		Target:    domain.Target{Kind: domain.TargetKind(doc.TargetKind), ID: doc.TargetID},
		Reason:    doc.Reason,
		CreatedAt: doc.CreatedAt,
	}
}
