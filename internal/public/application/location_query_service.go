package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
	"github.com/sngm3741/holiday-lights/api/internal/metrics"
	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

const locationCacheSize = 256

// locationQueryService は一覧と詳細を短い TTL でキャッシュする。
type locationQueryService struct {
	repo     LocationRepository
	counters CounterStore
	lists    *expirable.LRU[string, []domain.Location]
	details  *expirable.LRU[string, domain.Location]
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewLocationQueryService returns a cached LocationQueryService. ttl <= 0 disables expiry-based reuse.
func NewLocationQueryService(repo LocationRepository, counters CounterStore, ttl time.Duration, recorder metrics.Recorder, logger *slog.Logger) LocationQueryService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Nanosecond
	}
	return &locationQueryService{
		repo:     repo,
		counters: counters,
		lists:    expirable.NewLRU[string, []domain.Location](locationCacheSize, nil, ttl),
		details:  expirable.NewLRU[string, domain.Location](locationCacheSize, nil, ttl),
		metrics:  recorder,
		logger:   logger.With("component", "location_query"),
	}
}

func (s *locationQueryService) List(ctx context.Context, filter LocationFilter) ([]domain.Location, error) {
	if filter.Status == "" {
		filter.Status = domain.LocationActive
	}
	if !filter.Status.Valid() {
		return nil, apperror.Validation(map[string]string{"status": "invalid status"})
	}
	switch filter.Sort {
	case "":
		filter.Sort = SortNewest
	case SortNewest, SortPopular:
	default:
		return nil, apperror.Validation(map[string]string{"sort": "sort must be newest or popular"})
	}
	filter.Limit = NormalizeLimit(filter.Limit)

	key := fmt.Sprintf("%s|%s|%d", filter.Status, filter.Sort, filter.Limit)
	if cached, ok := s.lists.Get(key); ok {
		s.metrics.RecordCache(true)
		return cached, nil
	}
	s.metrics.RecordCache(false)

	locations, err := s.repo.Find(ctx, filter)
	if err != nil {
		return nil, apperror.Dependency("list locations", err)
	}
	s.lists.Add(key, locations)
	return locations, nil
}

// Detail は公開中のロケーションを返し、閲覧数をベストエフォートで加算する。
func (s *locationQueryService) Detail(ctx context.Context, id string) (*domain.Location, error) {
	loc, ok := s.details.Get(id)
	s.metrics.RecordCache(ok)
	if !ok {
		found, err := s.repo.FindByID(ctx, id)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("location", id)
		}
		if err != nil {
			return nil, apperror.Dependency("load location", err)
		}
		loc = *found
		s.details.Add(id, loc)
	}
	if loc.Status == domain.LocationInactive {
		return nil, apperror.NotFound("location", id)
	}

	if s.counters != nil {
		if err := s.counters.Increment(ctx, domain.Target{Kind: domain.TargetLocation, ID: id}, domain.CounterView); err != nil {
			s.logger.Warn("failed to increment view count", "location_id", id, "error", err)
		}
	}
	return &loc, nil
}
