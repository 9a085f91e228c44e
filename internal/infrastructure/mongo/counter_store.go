package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

// CounterStore は $inc による原子的な増減を提供する。
// 減算は「field > 0」を条件にした更新で、0 の場合は何も起きない。
type CounterStore struct {
	locations *mongo.Collection
	routes    *mongo.Collection
}

func NewCounterStore(db *mongo.Database, locationCollection, routeCollection string) *CounterStore {
	return &CounterStore{
		locations: db.Collection(locationCollection),
		routes:    db.Collection(routeCollection),
	}
}

// Increment は前提条件なしで 1 加算する。対象が存在しなければ何もしない。
func (s *CounterStore) Increment(ctx context.Context, target domain.Target, field domain.CounterField) error {
	coll, err := s.collection(target.Kind)
	if err != nil {
		return err
	}
	_, err = coll.UpdateOne(ctx, bson.M{"_id": target.ID}, bson.M{"$inc": bson.M{string(field): 1}})
	return err
}

// Decrement は値が正の場合だけ 1 減算する。一致しなかった場合もエラーにしない。
func (s *CounterStore) Decrement(ctx context.Context, target domain.Target, field domain.CounterField) error {
	coll, err := s.collection(target.Kind)
	if err != nil {
		return err
	}
	filter := bson.M{
		"_id":         target.ID,
		string(field): bson.M{"$gt": 0},
	}
	_, err = coll.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{string(field): -1}})
	return err
}

func (s *CounterStore) collection(kind domain.TargetKind) (*mongo.Collection, error) {
	switch kind {
	case domain.TargetLocation:
		return s.locations, nil
	case domain.TargetRoute:
		return s.routes, nil
	}
	return nil, fmt.Errorf("unsupported counter target: %s", kind)
}
