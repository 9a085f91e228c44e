package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sngm3741/holiday-lights/api/internal/public/application"
	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

// LocationRepository implements application.LocationRepository using MongoDB.
type LocationRepository struct {
	collection *mongo.Collection
}

// NewLocationRepository creates a new Mongo-backed location repository.
func NewLocationRepository(db *mongo.Database, collectionName string) *LocationRepository {
	return &LocationRepository{collection: db.Collection(collectionName)}
}

// Find returns locations with the given status, sorted and limited.
func (r *LocationRepository) Find(ctx context.Context, filter application.LocationFilter) ([]domain.Location, error) {
	opts := options.Find().SetSort(locationSort(filter.Sort))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	query := bson.M{"status": string(filter.Status)}

	var docs []LocationDocument
	err := withReadRetry(ctx, func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, query, opts)
		if err != nil {
			return err
		}
		docs = nil
		return cursor.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}
	return mapLocationDocuments(docs), nil
}

// FindByID returns a single location by its identifier.
func (r *LocationRepository) FindByID(ctx context.Context, id string) (*domain.Location, error) {
	var doc LocationDocument
	err := withReadRetry(ctx, func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	})
	if err != nil {
		return nil, mapFindErr(err)
	}
	loc := mapLocationDocument(doc)
	return &loc, nil
}

// FindByIDs は存在するものだけを返す。順序は保証しない。
func (r *LocationRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Location, error) {
	if len(ids) == 0 {
		return []domain.Location{}, nil
	}
	var docs []LocationDocument
	err := withReadRetry(ctx, func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return err
		}
		docs = nil
		return cursor.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}
	return mapLocationDocuments(docs), nil
}

// FindDuplicate は丸め座標または正規化住所が一致する active なロケーションを返す。
func (r *LocationRepository) FindDuplicate(ctx context.Context, geo domain.GeoKey, addressKey string) (*domain.Location, error) {
	query := bson.M{
		"status": string(domain.LocationActive),
		"$or":    duplicateClauses(geo, addressKey),
	}
	var doc LocationDocument
	err := withReadRetry(ctx, func(ctx context.Context) error {
		return r.collection.FindOne(ctx, query).Decode(&doc)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	loc := mapLocationDocument(doc)
	return &loc, nil
}

// FlagIfReported は閾値に達した active ロケーションだけを条件付きで flagged にする。
func (r *LocationRepository) FlagIfReported(ctx context.Context, id string, threshold int) (bool, error) {
	filter := bson.M{
		"_id":         id,
		"status":      string(domain.LocationActive),
		"reportCount": bson.M{"$gte": threshold},
	}
	update := bson.M{"$set": bson.M{
		"status":    string(domain.LocationFlagged),
		"updatedAt": time.Now().UTC(),
	}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

func duplicateClauses(geo domain.GeoKey, addressKey string) []bson.M {
	clauses := []bson.M{{
		"geoKey.latE4": geo.LatE4,
		"geoKey.lngE4": geo.LngE4,
	}}
	if addressKey != "" {
		clauses = append(clauses, bson.M{"addressKey": addressKey})
	}
	return clauses
}

func locationSort(sortKey string) bson.D {
	if sortKey == application.SortPopular {
		return bson.D{{Key: "likeCount", Value: -1}, {Key: "createdAt", Value: -1}}
	}
	return bson.D{{Key: "createdAt", Value: -1}}
}

func mapLocationDocuments(docs []LocationDocument) []domain.Location {
	result := make([]domain.Location, 0, len(docs))
	for _, doc := range docs {
		result = append(result, mapLocationDocument(doc))
	}
	return result
}

func mapLocationDocument(doc LocationDocument) domain.Location {
	return domain.Location{
		ID:             doc.ID,
		Address:        doc.Address,
		Coordinates:    domain.Coordinates{Lat: doc.Coordinates.Lat, Lng: doc.Coordinates.Lng},
		Status:         domain.LocationStatus(doc.Status),
		Description:    doc.Description,
		Photos:         append([]string{}, doc.Photos...),
		Decorations:    append([]string{}, doc.Decorations...),
		AIDescription:  doc.AIDescription,
		DisplayQuality: doc.DisplayQuality,
		LikeCount:      doc.LikeCount,
		ReportCount:    doc.ReportCount,
		FeedbackCount:  doc.FeedbackCount,
		ViewCount:      doc.ViewCount,
		SaveCount:      doc.SaveCount,
		AverageRating:  doc.AverageRating,
		CreatedBy:      doc.CreatedBy,
		CreatedByName:  doc.CreatedByName,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}
