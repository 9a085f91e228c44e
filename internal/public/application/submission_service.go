package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
	"github.com/sngm3741/holiday-lights/api/internal/metrics"
	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

// SubmissionServiceDeps wires the submission use-cases.
type SubmissionServiceDeps struct {
	Submissions SubmissionRepository
	Locations   LocationRepository
	Detector    *DuplicateDetector
	Notifier    SubmissionNotifier
	Analysis    AnalysisEnqueuer
	Metrics     metrics.Recorder
	Logger      *slog.Logger
	Now         func() time.Time
	NewID       func() string
}

type submissionService struct {
	submissions SubmissionRepository
	locations   LocationRepository
	detector    *DuplicateDetector
	notifier    SubmissionNotifier
	analysis    AnalysisEnqueuer
	metrics     metrics.Recorder
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

func NewSubmissionService(deps SubmissionServiceDeps) SubmissionService {
	s := &submissionService{
		submissions: deps.Submissions,
		locations:   deps.Locations,
		detector:    deps.Detector,
		notifier:    deps.Notifier,
		analysis:    deps.Analysis,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         deps.Now,
		newID:       deps.NewID,
	}
	if s.detector == nil {
		s.detector = NewDuplicateDetector(deps.Locations, deps.Submissions)
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString() }
	}
	s.logger = s.logger.With("component", "submission")
	return s
}

// SubmitEntry は new_location 投稿を検証し、重複が無ければ pending で作成する。
func (s *submissionService) SubmitEntry(ctx context.Context, cmd SubmitEntryCommand) (*domain.Submission, error) {
	errs := apperror.FieldErrors{}
	address, err := domain.NewAddress(cmd.Address)
	if err != nil {
		errs.Add("address", err.Error())
	}
	description, err := domain.NewDescription(cmd.Description)
	if err != nil {
		errs.Add("description", err.Error())
	}
	coords, err := domain.NewCoordinates(cmd.Lat, cmd.Lng)
	if err != nil {
		errs.Add("coordinates", err.Error())
	}
	photos, err := domain.NewPhotoKeyList(cmd.Photos, cmd.UserID, 0, domain.MaxSubmissionPhotos)
	if err != nil {
		errs.Add("photos", err.Error())
	}
	if err := errs.Err(); err != nil {
		s.metrics.RecordSubmission(string(domain.SubmissionNewLocation), "invalid")
		return nil, err
	}

	result, err := s.detector.Check(ctx, coords, address.String())
	if err != nil {
		return nil, err
	}
	if result.IsDuplicate() {
		s.metrics.RecordSubmission(string(domain.SubmissionNewLocation), "duplicate")
		return nil, apperror.Duplicate(result.Message(), result)
	}

	now := s.now()
	sub := &domain.Submission{
		ID:              s.newID(),
		Type:            domain.SubmissionNewLocation,
		Status:          domain.SubmissionPending,
		Address:         address.String(),
		Coordinates:     coords,
		GeoKey:          domain.NewGeoKey(coords),
		AddressKey:      domain.NormalizeAddress(address.String()),
		Description:     description.String(),
		Photos:          append([]string{}, photos...),
		SubmittedBy:     cmd.UserID,
		SubmittedByName: cmd.UserName,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.submissions.Create(ctx, sub); err != nil {
		if errors.Is(err, apperror.ErrAlreadyExists) {
			// チェック後に別の投稿が先に作成された。
			dup := domain.DuplicateResult{Kind: domain.DuplicatePending}
			s.metrics.RecordSubmission(string(domain.SubmissionNewLocation), "duplicate")
			return nil, apperror.Duplicate(dup.Message(), dup)
		}
		s.metrics.RecordSubmission(string(domain.SubmissionNewLocation), "error")
		return nil, apperror.Dependency("create submission", err)
	}

	s.metrics.RecordSubmission(string(domain.SubmissionNewLocation), "created")
	s.afterCreate(ctx, *sub)
	return sub, nil
}

// SubmitPhotoUpdate は写真の無いロケーションへ写真を追加する投稿を作成する。
func (s *submissionService) SubmitPhotoUpdate(ctx context.Context, cmd SubmitPhotoUpdateCommand) (*domain.Submission, error) {
	locationID := strings.TrimSpace(cmd.LocationID)
	errs := apperror.FieldErrors{}
	if locationID == "" {
		errs.Add("locationId", "locationId is required")
	}
	photos, err := domain.NewPhotoKeyList(cmd.Photos, cmd.UserID, 1, domain.MaxSubmissionPhotos)
	if err != nil {
		errs.Add("photos", err.Error())
	}
	if err := errs.Err(); err != nil {
		s.metrics.RecordSubmission(string(domain.SubmissionPhotoUpdate), "invalid")
		return nil, err
	}

	loc, err := s.locations.FindByID(ctx, locationID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NotFound("location", locationID)
	}
	if err != nil {
		return nil, apperror.Dependency("load location", err)
	}
	if loc.Status == domain.LocationInactive {
		return nil, apperror.NotFound("location", locationID)
	}
	if loc.HasPhotos() {
		return nil, apperror.Conflict("LOCATION_HAS_PHOTOS", "This location already has photos")
	}

	pending, err := s.submissions.HasPendingPhotoUpdate(ctx, locationID, cmd.UserID)
	if err != nil {
		return nil, apperror.Dependency("check pending photo update", err)
	}
	if pending {
		return nil, pendingPhotoConflict()
	}

	now := s.now()
	sub := &domain.Submission{
		ID:               s.newID(),
		Type:             domain.SubmissionPhotoUpdate,
		Status:           domain.SubmissionPending,
		Address:          loc.Address,
		Coordinates:      loc.Coordinates,
		Photos:           append([]string{}, photos...),
		TargetLocationID: locationID,
		SubmittedBy:      cmd.UserID,
		SubmittedByName:  cmd.UserName,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.submissions.Create(ctx, sub); err != nil {
		if errors.Is(err, apperror.ErrAlreadyExists) {
			return nil, pendingPhotoConflict()
		}
		s.metrics.RecordSubmission(string(domain.SubmissionPhotoUpdate), "error")
		return nil, apperror.Dependency("create submission", err)
	}

	s.metrics.RecordSubmission(string(domain.SubmissionPhotoUpdate), "created")
	s.afterCreate(ctx, *sub)
	return sub, nil
}

func (s *submissionService) CheckDuplicate(ctx context.Context, cmd CheckDuplicateCommand) (domain.DuplicateResult, error) {
	coords, err := domain.NewCoordinates(cmd.Lat, cmd.Lng)
	if err != nil {
		return domain.DuplicateResult{}, apperror.Validation(map[string]string{"coordinates": err.Error()})
	}
	return s.detector.Check(ctx, coords, cmd.Address)
}

func (s *submissionService) CheckPendingPhoto(ctx context.Context, userID, locationID string) (bool, error) {
	pending, err := s.submissions.HasPendingPhotoUpdate(ctx, locationID, userID)
	if err != nil {
		return false, apperror.Dependency("check pending photo update", err)
	}
	return pending, nil
}

func (s *submissionService) ListMine(ctx context.Context, userID string, limit int) ([]domain.Submission, error) {
	subs, err := s.submissions.ListByUser(ctx, userID, NormalizeLimit(limit))
	if err != nil {
		return nil, apperror.Dependency("list submissions", err)
	}
	return subs, nil
}

// Stats はユーザーの投稿件数を status ごとに集計する。
func (s *submissionService) Stats(ctx context.Context, userID string) (domain.SubmissionStats, error) {
	counts, err := s.submissions.CountByStatus(ctx, userID)
	if err != nil {
		return domain.SubmissionStats{}, apperror.Dependency("count submissions", err)
	}
	return domain.NewSubmissionStats(counts), nil
}

const maxLeaderboardSize = 50

// Leaderboard は承認済み投稿の多い順に投稿者を並べる。
func (s *submissionService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 || limit > maxLeaderboardSize {
		limit = maxLeaderboardSize
	}
	counts, err := s.submissions.TopContributors(ctx, limit)
	if err != nil {
		return nil, apperror.Dependency("load leaderboard", err)
	}
	return domain.RankContributors(counts), nil
}

// afterCreate は管理者通知と写真解析の投入を行う。どちらも失敗しても投稿は成立している。
func (s *submissionService) afterCreate(ctx context.Context, sub domain.Submission) {
	if s.notifier != nil {
		s.notifier.NotifySubmission(ctx, sub)
	}
	if s.analysis == nil {
		return
	}
	for _, key := range sub.Photos {
		if !s.analysis.Enqueue(AnalysisJob{SubmissionID: sub.ID, PhotoKey: key}) {
			s.logger.Warn("analysis queue full, dropping job", "submission_id", sub.ID, "photo", key)
		}
	}
}

func pendingPhotoConflict() error {
	return apperror.Conflict("PENDING_PHOTO_UPDATE", "You already have a pending photo submission for this location")
}
