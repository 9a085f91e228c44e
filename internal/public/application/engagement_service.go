package application

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
	"github.com/sngm3741/holiday-lights/api/internal/metrics"
	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

const (
	maxReportReasonRunes       = 500
	defaultReportFlagThreshold = 3
)

// EngagementServiceDeps wires the engagement use-cases.
type EngagementServiceDeps struct {
	Engagements         EngagementRepository
	Counters            CounterStore
	Locations           LocationRepository
	Routes              RouteRepository
	Metrics             metrics.Recorder
	Logger              *slog.Logger
	ReportFlagThreshold int
	Now                 func() time.Time
}

type engagementService struct {
	engagements EngagementRepository
	counters    CounterStore
	locations   LocationRepository
	routes      RouteRepository
	metrics     metrics.Recorder
	logger      *slog.Logger
	threshold   int
	now         func() time.Time
}

func NewEngagementService(deps EngagementServiceDeps) EngagementService {
	s := &engagementService{
		engagements: deps.Engagements,
		counters:    deps.Counters,
		locations:   deps.Locations,
		routes:      deps.Routes,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		threshold:   deps.ReportFlagThreshold,
		now:         deps.Now,
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.threshold <= 0 {
		s.threshold = defaultReportFlagThreshold
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	s.logger = s.logger.With("component", "engagement")
	return s
}

// React は (type, user, target) の記録を条件付きで作成し、作成できた場合だけカウンタを増やす。
// 既存なら競合に負けた側としてエラーにせず既存レコードを返す。
func (s *engagementService) React(ctx context.Context, userID string, t domain.EngagementType, target domain.Target) (domain.ReactResult, error) {
	field, err := domain.ToggleCounter(target.Kind, t)
	if err != nil {
		return domain.ReactResult{}, apperror.Validation(map[string]string{"type": err.Error()})
	}
	if err := s.ensureEngageable(ctx, userID, target); err != nil {
		return domain.ReactResult{}, err
	}

	record := domain.EngagementRecord{
		ID:        domain.RecordID(t, userID, target),
		Type:      t,
		UserID:    userID,
		Target:    target,
		CreatedAt: s.now(),
	}
	created, existing, err := s.createRecord(ctx, record)
	if err != nil {
		s.metrics.RecordEngagement(string(target.Kind), string(t), "error")
		return domain.ReactResult{}, err
	}
	if !created {
		s.metrics.RecordEngagement(string(target.Kind), string(t), "already")
		return domain.ReactResult{State: domain.StatePresent, AlreadyExisted: true, Record: existing}, nil
	}

	if err := s.counters.Increment(ctx, target, field); err != nil {
		// カウンタに反映できなかった記録は残さない。
		if _, delErr := s.engagements.Delete(ctx, record.ID); delErr != nil {
			s.logger.Error("failed to roll back engagement record", "record_id", record.ID, "error", delErr)
		}
		s.metrics.RecordEngagement(string(target.Kind), string(t), "error")
		return domain.ReactResult{}, apperror.Dependency("increment counter", err)
	}

	s.metrics.RecordEngagement(string(target.Kind), string(t), "created")
	return domain.ReactResult{State: domain.StatePresent, Record: &record}, nil
}

// UnReact は記録を削除し、実際に削除できた場合だけカウンタを減らす。
func (s *engagementService) UnReact(ctx context.Context, userID string, t domain.EngagementType, target domain.Target) (domain.ReactResult, error) {
	field, err := domain.ToggleCounter(target.Kind, t)
	if err != nil {
		return domain.ReactResult{}, apperror.Validation(map[string]string{"type": err.Error()})
	}

	id := domain.RecordID(t, userID, target)
	deleted, err := s.engagements.Delete(ctx, id)
	if err != nil {
		s.metrics.RecordEngagement(string(target.Kind), string(t), "error")
		return domain.ReactResult{}, apperror.Dependency("delete engagement", err)
	}
	if !deleted {
		s.metrics.RecordEngagement(string(target.Kind), string(t), "absent")
		return domain.ReactResult{State: domain.StateAbsent}, nil
	}

	if err := s.counters.Decrement(ctx, target, field); err != nil {
		// 記録はすでに消えているため、カウンタのずれはログに残して成功扱いにする。
		s.logger.Error("failed to decrement counter", "target", target.ID, "field", field, "error", err)
	}
	s.metrics.RecordEngagement(string(target.Kind), string(t), "removed")
	return domain.ReactResult{State: domain.StateAbsent}, nil
}

func (s *engagementService) Report(ctx context.Context, cmd ReportCommand) (domain.ReactResult, error) {
	reason := strings.TrimSpace(cmd.Reason)
	if utf8.RuneCountInString(reason) > maxReportReasonRunes {
		return domain.ReactResult{}, apperror.Validation(map[string]string{"reason": "reason must be at most 500 characters"})
	}
	target := domain.Target{Kind: domain.TargetLocation, ID: cmd.LocationID}
	if err := s.ensureEngageable(ctx, cmd.UserID, target); err != nil {
		return domain.ReactResult{}, err
	}

	record := domain.EngagementRecord{
		ID:        domain.RecordID(domain.EngagementReport, cmd.UserID, target),
		Type:      domain.EngagementReport,
		UserID:    cmd.UserID,
		Target:    target,
		Reason:    reason,
		CreatedAt: s.now(),
	}
	created, existing, err := s.createRecord(ctx, record)
	if err != nil {
		s.metrics.RecordEngagement(string(target.Kind), string(domain.EngagementReport), "error")
		return domain.ReactResult{}, err
	}
	if !created {
		s.metrics.RecordEngagement(string(target.Kind), string(domain.EngagementReport), "already")
		return domain.ReactResult{State: domain.StatePresent, AlreadyExisted: true, Record: existing}, nil
	}

	for _, field := range []domain.CounterField{domain.CounterReport, domain.CounterFeedback} {
		if err := s.counters.Increment(ctx, target, field); err != nil {
			s.logger.Error("failed to increment report counter", "location_id", target.ID, "field", field, "error", err)
		}
	}
	flagged, err := s.locations.FlagIfReported(ctx, target.ID, s.threshold)
	if err != nil {
		s.logger.Error("failed to evaluate report threshold", "location_id", target.ID, "error", err)
	} else if flagged {
		s.logger.Warn("location flagged by reports", "location_id", target.ID, "threshold", s.threshold)
	}

	s.metrics.RecordEngagement(string(target.Kind), string(domain.EngagementReport), "created")
	return domain.ReactResult{State: domain.StatePresent, Record: &record}, nil
}

func (s *engagementService) Status(ctx context.Context, userID string, target domain.Target) (EngagementStatus, error) {
	types := domain.ToggleTypes(target.Kind)
	if len(types) == 0 {
		return EngagementStatus{}, apperror.Validation(map[string]string{"targetType": "unsupported target type"})
	}
	if target.Kind == domain.TargetLocation {
		types = append(types, domain.EngagementReport)
	}

	ids := make([]string, 0, len(types))
	for _, t := range types {
		ids = append(ids, domain.RecordID(t, userID, target))
	}
	existing, err := s.engagements.ExistingIDs(ctx, ids)
	if err != nil {
		return EngagementStatus{}, apperror.Dependency("engagement status", err)
	}

	states := make(map[domain.EngagementType]bool, len(types))
	for i, t := range types {
		states[t] = existing[ids[i]]
	}
	return EngagementStatus{Target: target, States: states}, nil
}

// Favorites はお気に入り登録の新しい順にロケーションを返す。非公開になったものは除く。
func (s *engagementService) Favorites(ctx context.Context, userID string, limit int) ([]domain.Location, error) {
	records, err := s.engagements.ListByUser(ctx, userID, domain.EngagementFavorite, NormalizeLimit(limit))
	if err != nil {
		return nil, apperror.Dependency("list favorites", err)
	}
	if len(records) == 0 {
		return []domain.Location{}, nil
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.Target.ID)
	}
	locations, err := s.locations.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperror.Dependency("load favorite locations", err)
	}
	byID := make(map[string]domain.Location, len(locations))
	for _, loc := range locations {
		byID[loc.ID] = loc
	}

	result := make([]domain.Location, 0, len(ids))
	for _, id := range ids {
		loc, ok := byID[id]
		if !ok || loc.Status == domain.LocationInactive {
			continue
		}
		result = append(result, loc)
	}
	return result, nil
}

// SavedRoutes は保存したルートをいいね数の多い順に返す。非公開になった他人のルートは除く。
func (s *engagementService) SavedRoutes(ctx context.Context, userID string, limit int) ([]domain.Route, error) {
	records, err := s.engagements.ListByUser(ctx, userID, domain.EngagementSave, NormalizeLimit(limit))
	if err != nil {
		return nil, apperror.Dependency("list saved routes", err)
	}
	ids := make([]string, 0, len(records))
	savedAt := make(map[string]int, len(records))
	for _, r := range records {
		if r.Target.Kind == domain.TargetRoute {
			savedAt[r.Target.ID] = len(ids)
			ids = append(ids, r.Target.ID)
		}
	}
	if len(ids) == 0 {
		return []domain.Route{}, nil
	}

	routes, err := s.routes.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperror.Dependency("load saved routes", err)
	}
	result := make([]domain.Route, 0, len(routes))
	for _, route := range routes {
		if route.Engageable(userID) {
			result = append(result, route)
		}
	}
	// 同数なら保存の新しい順。
	sort.Slice(result, func(i, j int) bool {
		if result[i].LikeCount != result[j].LikeCount {
			return result[i].LikeCount > result[j].LikeCount
		}
		return savedAt[result[i].ID] < savedAt[result[j].ID]
	})
	return result, nil
}

// createRecord は条件付き作成の結果を (作成したか, 既存レコード) に変換する。
func (s *engagementService) createRecord(ctx context.Context, record domain.EngagementRecord) (bool, *domain.EngagementRecord, error) {
	err := s.engagements.Create(ctx, record)
	if err == nil {
		return true, nil, nil
	}
	if !errors.Is(err, apperror.ErrAlreadyExists) {
		return false, nil, apperror.Dependency("create engagement", err)
	}

	existing, err := s.engagements.FindByID(ctx, record.ID)
	switch {
	case err == nil:
		return false, existing, nil
	case errors.Is(err, apperror.ErrNotFound):
		// 直後に unReact されたケース。作成は相手側で成立していたので既存扱いのまま返す。
		return false, nil, nil
	default:
		return false, nil, apperror.Dependency("read engagement", err)
	}
}

func (s *engagementService) ensureEngageable(ctx context.Context, userID string, target domain.Target) error {
	switch target.Kind {
	case domain.TargetLocation:
		loc, err := s.locations.FindByID(ctx, target.ID)
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("location", target.ID)
		}
		if err != nil {
			return apperror.Dependency("load location", err)
		}
		if loc.Status == domain.LocationInactive {
			return apperror.NotFound("location", target.ID)
		}
		return nil
	case domain.TargetRoute:
		route, err := s.routes.FindByID(ctx, target.ID)
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("route", target.ID)
		}
		if err != nil {
			return apperror.Dependency("load route", err)
		}
		if !route.Engageable(userID) {
			return apperror.NotFound("route", target.ID)
		}
		return nil
	}
	return apperror.Validation(map[string]string{"targetType": "unsupported target type"})
}
