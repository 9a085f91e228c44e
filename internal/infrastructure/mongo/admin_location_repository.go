package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	adminapp "github.com/sngm3741/holiday-lights/api/internal/admin/application"
	admindomain "github.com/sngm3741/holiday-lights/api/internal/admin/domain"
	"github.com/sngm3741/holiday-lights/api/internal/apperror"
	publicdomain "github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

// AdminLocationRepository implements adminapp.LocationRepository.
type AdminLocationRepository struct {
	collection *mongo.Collection
}

func NewAdminLocationRepository(db *mongo.Database, collectionName string) *AdminLocationRepository {
	return &AdminLocationRepository{collection: db.Collection(collectionName)}
}

func (r *AdminLocationRepository) Find(ctx context.Context, filter adminapp.LocationFilter) ([]admindomain.Location, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

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
	result := make([]admindomain.Location, 0, len(docs))
	for _, doc := range docs {
		result = append(result, mapAdminLocationDocument(doc))
	}
	return result, nil
}

func (r *AdminLocationRepository) FindByID(ctx context.Context, id string) (*admindomain.Location, error) {
	var doc LocationDocument
	err := withReadRetry(ctx, func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	})
	if err != nil {
		return nil, mapFindErr(err)
	}
	loc := mapAdminLocationDocument(doc)
	return &loc, nil
}

// Insert は _id の一意性で二重作成を防ぐ。
func (r *AdminLocationRepository) Insert(ctx context.Context, loc *admindomain.Location) error {
	_, err := r.collection.InsertOne(ctx, newLocationDocument(loc))
	return mapInsertErr(err)
}

// ApplyPhotoBackfill は photos が空（または未設定）の場合だけ更新する。
func (r *AdminLocationRepository) ApplyPhotoBackfill(ctx context.Context, id string, fill admindomain.PhotoBackfill, now time.Time) error {
	filter := bson.M{
		"_id": id,
		"$or": []bson.M{
			{"photos": nil},
			{"photos": bson.M{"$size": 0}},
		},
	}
	update := bson.M{"$set": bson.M{
		"photos":            fill.Photos,
		"decorations":       fill.Decorations,
		"aiDescription":     fill.AIDescription,
		"displayQuality":    string(fill.DisplayQuality),
		"photoSubmissionId": fill.SubmissionID,
		"updatedAt":         now,
	}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperror.ErrPreconditionFailed
	}
	return nil
}

// Update は管理者が編集できる項目だけを書き換える。カウンタには触れない。
func (r *AdminLocationRepository) Update(ctx context.Context, loc *admindomain.Location) error {
	update := bson.M{"$set": bson.M{
		"status":      string(loc.Status),
		"description": loc.Description,
		"decorations": loc.Decorations,
		"updatedAt":   loc.UpdatedAt,
	}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": loc.ID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func (r *AdminLocationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func newLocationDocument(loc *admindomain.Location) LocationDocument {
	geo := publicdomain.NewGeoKey(publicdomain.Coordinates{Lat: loc.Coordinates.Lat, Lng: loc.Coordinates.Lng})
	photos := loc.Photos
	if photos == nil {
		photos = []string{}
	}
	return LocationDocument{
		ID:                loc.ID,
		Address:           loc.Address,
		AddressKey:        publicdomain.NormalizeAddress(loc.Address),
		Coordinates:       CoordinatesDocument{Lat: loc.Coordinates.Lat, Lng: loc.Coordinates.Lng},
		GeoKey:            GeoKeyDocument{LatE4: geo.LatE4, LngE4: geo.LngE4},
		Status:            string(loc.Status),
		Description:       loc.Description,
		Photos:            photos,
		Decorations:       loc.Decorations,
		AIDescription:     loc.AIDescription,
		DisplayQuality:    string(loc.DisplayQuality),
		LikeCount:         loc.LikeCount,
		ReportCount:       loc.ReportCount,
		CreatedBy:         loc.CreatedBy,
		CreatedByName:     loc.CreatedByName,
		SubmissionID:      loc.SubmissionID,
		PhotoSubmissionID: loc.PhotoSubmissionID,
		CreatedAt:         loc.CreatedAt,
		UpdatedAt:         loc.UpdatedAt,
	}
}

func mapAdminLocationDocument(doc LocationDocument) admindomain.Location {
	return admindomain.Location{
		ID:                doc.ID,
		Address:           doc.Address,
		Coordinates:       admindomain.Coordinates{Lat: doc.Coordinates.Lat, Lng: doc.Coordinates.Lng},
		Description:       doc.Description,
		Photos:            append([]string{}, doc.Photos...),
		Decorations:       append([]string{}, doc.Decorations...),
		AIDescription:     doc.AIDescription,
		DisplayQuality:    admindomain.DisplayQuality(doc.DisplayQuality),
		Status:            admindomain.LocationStatus(doc.Status),
		LikeCount:         doc.LikeCount,
		ReportCount:       doc.ReportCount,
		CreatedBy:         doc.CreatedBy,
		CreatedByName:     doc.CreatedByName,
		SubmissionID:      doc.SubmissionID,
		PhotoSubmissionID: doc.PhotoSubmissionID,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
}
