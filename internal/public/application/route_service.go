package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

type routeService struct {
	routes      RouteRepository
	locations   LocationRepository
	engagements EngagementRepository
	logger      *slog.Logger
	now         func() time.Time
}

func NewRouteService(routes RouteRepository, locations LocationRepository, engagements EngagementRepository, logger *slog.Logger) RouteService {
	if logger == nil {
		logger = slog.Default()
	}
	return &routeService{
		routes:      routes,
		locations:   locations,
		engagements: engagements,
		logger:      logger.With("component", "route"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create は停車地の順序どおりに距離と所要時間を計算してルートを保存する。
func (s *routeService) Create(ctx context.Context, cmd CreateRouteCommand) (*domain.Route, error) {
	errs := apperror.FieldErrors{}
	title, err := normalizeRouteTitle(cmd.Title)
	if err != nil {
		errs.Add("title", err.Error())
	}
	description, err := normalizeRouteDescription(cmd.Description)
	if err != nil {
		errs.Add("description", err.Error())
	}
	ids, err := normalizeStops(cmd.LocationIDs)
	if err != nil {
		errs.Add("locationIds", err.Error())
	}
	tags, err := normalizeRouteTags(cmd.Tags)
	if err != nil {
		errs.Add("tags", err.Error())
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	stats, err := s.computeStats(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.now()
	route := &domain.Route{
		ID:            uuid.NewString(),
		Title:         title,
		Description:   description,
		LocationIDs:   ids,
		Tags:          tags,
		IsPublic:      cmd.IsPublic,
		Status:        domain.RouteActive,
		Stats:         stats,
		CreatedBy:     cmd.UserID,
		CreatedByName: cmd.UserName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.routes.Create(ctx, route); err != nil {
		return nil, apperror.Dependency("create route", err)
	}
	return route, nil
}

// Update は作成者だけが実行できる。停車地が変わった場合は統計を計算し直す。
func (s *routeService) Update(ctx context.Context, cmd UpdateRouteCommand) (*domain.Route, error) {
	route, err := s.load(ctx, cmd.RouteID)
	if err != nil {
		return nil, err
	}
	if route.CreatedBy != cmd.UserID {
		return nil, apperror.Forbidden("only the route owner can update this route")
	}

	errs := apperror.FieldErrors{}
	changed := false
	if cmd.Title != nil {
		title, err := normalizeRouteTitle(*cmd.Title)
		if err != nil {
			errs.Add("title", err.Error())
		}
		route.Title = title
		changed = true
	}
	if cmd.Description != nil {
		description, err := normalizeRouteDescription(*cmd.Description)
		if err != nil {
			errs.Add("description", err.Error())
		}
		route.Description = description
		changed = true
	}
	if cmd.Tags != nil {
		tags, err := normalizeRouteTags(*cmd.Tags)
		if err != nil {
			errs.Add("tags", err.Error())
		}
		route.Tags = tags
		changed = true
	}
	if cmd.IsPublic != nil {
		route.IsPublic = *cmd.IsPublic
		changed = true
	}
	var stopsChanged bool
	if cmd.LocationIDs != nil {
		ids, err := normalizeStops(*cmd.LocationIDs)
		if err != nil {
			errs.Add("locationIds", err.Error())
		}
		route.LocationIDs = ids
		stopsChanged = true
		changed = true
	}
	if !changed {
		errs.Add("body", "no updatable fields provided")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	if stopsChanged {
		stats, err := s.computeStats(ctx, route.LocationIDs)
		if err != nil {
			return nil, err
		}
		route.Stats = stats
	}
	route.UpdatedAt = s.now()
	err = s.routes.Update(ctx, route)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NotFound("route", route.ID)
	}
	if err != nil {
		return nil, apperror.Dependency("update route", err)
	}
	s.logger.Info("route updated", "route_id", route.ID, "stops_changed", stopsChanged)
	return route, nil
}

// computeStats は停車地がすべて active であることを確かめ、並び順どおりに統計を計算する。
func (s *routeService) computeStats(ctx context.Context, ids []string) (domain.RouteStats, error) {
	locations, err := s.locations.FindByIDs(ctx, ids)
	if err != nil {
		return domain.RouteStats{}, apperror.Dependency("load route stops", err)
	}
	byID := make(map[string]domain.Location, len(locations))
	for _, loc := range locations {
		byID[loc.ID] = loc
	}
	stops := make([]domain.Coordinates, 0, len(ids))
	for _, id := range ids {
		loc, ok := byID[id]
		if !ok || loc.Status != domain.LocationActive {
			return domain.RouteStats{}, apperror.Validation(map[string]string{"locationIds": "unknown or inactive location: " + id})
		}
		stops = append(stops, loc.Coordinates)
	}
	return domain.ComputeRouteStats(stops), nil
}

// Detail は非公開ルートを作成者以外には見せない。
func (s *routeService) Detail(ctx context.Context, userID, id string) (*domain.Route, error) {
	route, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if route.CreatedBy != userID && (!route.IsPublic || route.Status != domain.RouteActive) {
		return nil, apperror.NotFound("route", id)
	}
	return route, nil
}

func (s *routeService) List(ctx context.Context, filter RouteFilter) ([]domain.Route, error) {
	switch filter.Sort {
	case "":
		filter.Sort = SortNewest
	case SortNewest, SortPopular:
	default:
		return nil, apperror.Validation(map[string]string{"sort": "sort must be newest or popular"})
	}
	filter.PublicOnly = true
	filter.Limit = NormalizeLimit(filter.Limit)
	routes, err := s.routes.Find(ctx, filter)
	if err != nil {
		return nil, apperror.Dependency("list routes", err)
	}
	return routes, nil
}

func (s *routeService) ListMine(ctx context.Context, userID string, limit int) ([]domain.Route, error) {
	routes, err := s.routes.Find(ctx, RouteFilter{CreatedBy: userID, Sort: SortNewest, Limit: NormalizeLimit(limit)})
	if err != nil {
		return nil, apperror.Dependency("list my routes", err)
	}
	return routes, nil
}

// Delete は作成者または管理者だけが実行できる。紐づく like/save 記録も削除する。
func (s *routeService) Delete(ctx context.Context, cmd DeleteRouteCommand) error {
	route, err := s.load(ctx, cmd.RouteID)
	if err != nil {
		return err
	}
	if route.CreatedBy != cmd.UserID && !cmd.IsAdmin {
		return apperror.Forbidden("only the route owner can delete this route")
	}
	if err := s.routes.Delete(ctx, route.ID); err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return apperror.Dependency("delete route", err)
	}
	if removed, err := s.engagements.DeleteByTarget(ctx, route.ID); err != nil {
		s.logger.Error("failed to delete route engagements", "route_id", route.ID, "error", err)
	} else if removed > 0 {
		s.logger.Info("deleted route engagements", "route_id", route.ID, "count", removed)
	}
	return nil
}

func (s *routeService) load(ctx context.Context, id string) (*domain.Route, error) {
	route, err := s.routes.FindByID(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NotFound("route", id)
	}
	if err != nil {
		return nil, apperror.Dependency("load route", err)
	}
	return route, nil
}

func normalizeRouteTitle(value string) (string, error) {
	title := strings.TrimSpace(value)
	if title == "" {
		return "", fmt.Errorf("title is required")
	}
	if utf8.RuneCountInString(title) > domain.MaxRouteTitleRunes {
		return "", fmt.Errorf("title must be at most %d characters", domain.MaxRouteTitleRunes)
	}
	return title, nil
}

func normalizeRouteDescription(value string) (string, error) {
	description := strings.TrimSpace(value)
	if utf8.RuneCountInString(description) > domain.MaxRouteDescriptionRunes {
		return "", fmt.Errorf("description must be at most %d characters", domain.MaxRouteDescriptionRunes)
	}
	return description, nil
}

func normalizeStops(values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one location is required")
	}
	if len(values) > domain.MaxRouteStops {
		return nil, fmt.Errorf("maximum %d locations allowed", domain.MaxRouteStops)
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, raw := range values {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, fmt.Errorf("location id must not be empty")
		}
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("duplicate location: %s", id)
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result, nil
}

func normalizeRouteTags(values []string) ([]string, error) {
	result := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		tag := strings.Join(strings.Fields(raw), " ")
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, tag)
	}
	if len(result) > domain.MaxRouteTags {
		return nil, fmt.Errorf("maximum %d tags allowed", domain.MaxRouteTags)
	}
	return result, nil
}
