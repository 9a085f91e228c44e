package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

// SubmissionRepository implements the user-side submission port.
type SubmissionRepository struct {
	collection *mongo.Collection
}

func NewSubmissionRepository(db *mongo.Database, collectionName string) *SubmissionRepository {
	return &SubmissionRepository{collection: db.Collection(collectionName)}
}

// Create は部分ユニークインデックス違反を apperror.ErrAlreadyExists に変換する。
func (r *SubmissionRepository) Create(ctx context.Context, sub *domain.Submission) error {
	doc := SubmissionDocument{
		ID:               sub.ID,
		Type:             string(sub.Type),
		Status:           string(sub.Status),
		Address:          sub.Address,
		Coordinates:      CoordinatesDocument{Lat: sub.Coordinates.Lat, Lng: sub.Coordinates.Lng},
		Description:      sub.Description,
		Photos:           append([]string{}, sub.Photos...),
		TargetLocationID: sub.TargetLocationID,
		SubmittedBy:      sub.SubmittedBy,
		SubmittedByName:  sub.SubmittedByName,
		CreatedAt:        sub.CreatedAt,
		UpdatedAt:        sub.UpdatedAt,
	}
	if sub.Type == domain.SubmissionNewLocation {
		doc.GeoKey = &GeoKeyDocument{LatE4: sub.GeoKey.LatE4, LngE4: sub.GeoKey.LngE4}
		doc.AddressKey = sub.AddressKey
	}
	_, err := r.collection.InsertOne(ctx, doc)
	return mapInsertErr(err)
}

// FindPendingDuplicate は審査待ちの new_location 投稿から重複を探す。無ければ nil。
func (r *SubmissionRepository) FindPendingDuplicate(ctx context.Context, geo domain.GeoKey, addressKey string) (*domain.Submission, error) {
	query := bson.M{
		"status": string(domain.SubmissionPending),
		"type":   string(domain.SubmissionNewLocation),
		"$or":    duplicateClauses(geo, addressKey),
	}
	var doc SubmissionDocument
	err := withReadRetry(ctx, func(ctx context.Context) error {
		return r.collection.FindOne(ctx, query).Decode(&doc)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sub := mapSubmissionDocument(doc)
	return &sub, nil
}

func (r *SubmissionRepository) HasPendingPhotoUpdate(ctx context.Context, locationID, userID string) (bool, error) {
	query := bson.M{
		"status":           string(domain.SubmissionPending),
		"type":             string(domain.SubmissionPhotoUpdate),
		"targetLocationId": locationID,
		"submittedBy":      userID,
	}
	var count int64
	err := withReadRetry(ctx, func(ctx context.Context) error {
		var err error
		count, err = r.collection.CountDocuments(ctx, query, options.Count().SetLimit(1))
		return err
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *SubmissionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Submission, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	var docs []SubmissionDocument
	err := withReadRetry(ctx, func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, bson.M{"submittedBy": userID}, opts)
		if err != nil {
			return err
		}
		docs = nil
		return cursor.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}
	result := make([]domain.Submission, 0, len(docs))
	for _, doc := range docs {
		result = append(result, mapSubmissionDocument(doc))
	}
	return result, nil
}

// CountByStatus は投稿者ごとの状態別件数を集計する。
func (r *SubmissionRepository) CountByStatus(ctx context.Context, userID string) (map[domain.SubmissionStatus]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"submittedBy": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}
	var rows []struct {
		Status string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	err := withReadRetry(ctx, func(ctx context.Context) error {
		cursor, err := r.collection.Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		rows = nil
		return cursor.All(ctx, &rows)
	})
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.SubmissionStatus]int, len(rows))
	for _, row := range rows {
		counts[domain.SubmissionStatus(row.Status)] = row.Count
	}
	return counts, nil
}

// TopContributors は承認済み件数の多い投稿者を返す。表示名は最新の投稿のものを使う。
func (r *SubmissionRepository) TopContributors(ctx context.Context, limit int) ([]domain.ContributorCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": string(domain.SubmissionApproved)}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":      "$submittedBy",
			"approved": bson.M{"$sum": 1},
			"name":     bson.M{"$first": "$submittedByName"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "approved", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: int64(limit)}},
	}
	var rows []struct {
		UserID   string `bson:"_id"`
		Approved int    `bson:"approved"`
		Name     string `bson:"name"`
	}
	err := withReadRetry(ctx, func(ctx context.Context) error {
		cursor, err := r.collection.Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		rows = nil
		return cursor.All(ctx, &rows)
	})
	if err != nil {
		return nil, err
	}
	result := make([]domain.ContributorCount, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.ContributorCount{UserID: row.UserID, UserName: row.Name, Approved: row.Approved})
	}
	return result, nil
}

func mapSubmissionDocument(doc SubmissionDocument) domain.Submission {
	sub := domain.Submission{
		ID:               doc.ID,
		Type:             domain.SubmissionType(doc.Type),
		Status:           domain.SubmissionStatus(doc.Status),
		Address:          doc.Address,
		Coordinates:      domain.Coordinates{Lat: doc.Coordinates.Lat, Lng: doc.Coordinates.Lng},
		AddressKey:       doc.AddressKey,
		Description:      doc.Description,
		Photos:           append([]string{}, doc.Photos...),
		TargetLocationID: doc.TargetLocationID,
		SubmittedBy:      doc.SubmittedBy,
		SubmittedByName:  doc.SubmittedByName,
		LocationID:       doc.LocationID,
		RejectionReason:  doc.RejectionReason,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
	if doc.GeoKey != nil {
		sub.GeoKey = domain.GeoKey{LatE4: doc.GeoKey.LatE4, LngE4: doc.GeoKey.LngE4}
	}
	return sub
}
