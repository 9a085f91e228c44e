package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
	"github.com/sngm3741/holiday-lights/api/internal/public/application"
	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

// RouteRepository implements application.RouteRepository.
type RouteRepository struct {
	collection *mongo.Collection
}

func NewRouteRepository(db *mongo.Database, collectionName string) *RouteRepository {
	return &RouteRepository{collection: db.Collection(collectionName)}
}

func (r *RouteRepository) Create(ctx context.Context, route *domain.Route) error {
	doc := RouteDocument{
		ID:          route.ID,
		Title:       route.Title,
		Description: route.Description,
		LocationIDs: append([]string{}, route.LocationIDs...),
		Tags:        route.Tags,
		IsPublic:    route.IsPublic,
		Status:      string(route.Status),
		Stats: RouteStatsDocument{
			TotalStops:       route.Stats.TotalStops,
			DistanceMiles:    route.Stats.DistanceMiles,
			EstimatedMinutes: route.Stats.EstimatedMinutes,
		},
		LikeCount:     route.LikeCount,
		SaveCount:     route.SaveCount,
		CreatedBy:     route.CreatedBy,
		CreatedByName: route.CreatedByName,
		CreatedAt:     route.CreatedAt,
		UpdatedAt:     route.UpdatedAt,
	}
	_, err := r.collection.InsertOne(ctx, doc)
	return mapInsertErr(err)
}

func (r *RouteRepository) FindByID(ctx context.Context, id string) (*domain.Route, error) {
	var doc RouteDocument
	err := withReadRetry(ctx, func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	})
	if err != nil {
		return nil, mapFindErr(err)
	}
	route := mapRouteDocument(doc)
	return &route, nil
}

// Find は PublicOnly なら公開中の active なルートだけを返す。
func (r *RouteRepository) Find(ctx context.Context, filter application.RouteFilter) ([]domain.Route, error) {
	query := bson.M{}
	if filter.PublicOnly {
		query["isPublic"] = true
		query["status"] = string(domain.RouteActive)
	}
	if filter.CreatedBy != "" {
		query["createdBy"] = filter.CreatedBy
	}
	sort := bson.D{{Key: "createdAt", Value: -1}}
	if filter.Sort == application.SortPopular {
		sort = bson.D{{Key: "likeCount", Value: -1}, {Key: "createdAt", Value: -1}}
	}
	opts := options.Find().SetSort(sort)
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	var docs []RouteDocument
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
	result := make([]domain.Route, 0, len(docs))
	for _, doc := range docs {
		result = append(result, mapRouteDocument(doc))
	}
	return result, nil
}

// FindByIDs は存在するルートだけを返す。順序は保証しない。
func (r *RouteRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Route, error) {
	if len(ids) == 0 {
		return []domain.Route{}, nil
	}
	var docs []RouteDocument
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
	result := make([]domain.Route, 0, len(docs))
	for _, doc := range docs {
		result = append(result, mapRouteDocument(doc))
	}
	return result, nil
}

// Update は作成者が一致するときだけ編集可能な項目を書き換える。
// likeCount / saveCount は CounterStore の管轄なので触らない。
func (r *RouteRepository) Update(ctx context.Context, route *domain.Route) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": route.ID, "createdBy": route.CreatedBy},
		bson.M{"$set": bson.M{
			"title":       route.Title,
			"description": route.Description,
			"locationIds": append([]string{}, route.LocationIDs...),
			"tags":        route.Tags,
			"isPublic":    route.IsPublic,
			"stats": RouteStatsDocument{
				TotalStops:       route.Stats.TotalStops,
				DistanceMiles:    route.Stats.DistanceMiles,
				EstimatedMinutes: route.Stats.EstimatedMinutes,
			},
			"updatedAt": route.UpdatedAt,
		}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func (r *RouteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func mapRouteDocument(doc RouteDocument) domain.Route {
	return domain.Route{
		ID:          doc.ID,
		Title:       doc.Title,
		Description: doc.Description,
		LocationIDs: append([]string{}, doc.LocationIDs...),
		Tags:        append([]string{}, doc.Tags...),
		IsPublic:    doc.IsPublic,
		Status:      domain.RouteStatus(doc.Status),
		Stats: domain.RouteStats{
			TotalStops:       doc.Stats.TotalStops,
			DistanceMiles:    doc.Stats.DistanceMiles,
			EstimatedMinutes: doc.Stats.EstimatedMinutes,
		},
		LikeCount:     doc.LikeCount,
		SaveCount:     doc.SaveCount,
		CreatedBy:     doc.CreatedBy,
		CreatedByName: doc.CreatedByName,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}
