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

	admindomain "github.com/sngm3741/holiday-lights/api/internal/admin/domain"
	"github.com/sngm3741/holiday-lights/api/internal/apperror"
	"github.com/sngm3741/holiday-lights/api/internal/metrics"
)

const defaultClaimTTL = 5 * time.Minute

// ModerationServiceDeps wires the moderation use-cases.
type ModerationServiceDeps struct {
	Submissions SubmissionRepository
	Locations   LocationRepository
	Photos      PhotoStore
	Metrics     metrics.Recorder
	Logger      *slog.Logger
	ClaimTTL    time.Duration
	Now         func() time.Time
	NewToken    func() string
}

type moderationService struct {
	submissions SubmissionRepository
	locations   LocationRepository
	photos      PhotoStore
	metrics     metrics.Recorder
	logger      *slog.Logger
	claimTTL    time.Duration
	now         func() time.Time
	newToken    func() string
}

func NewModerationService(deps ModerationServiceDeps) ModerationService {
	s := &moderationService{
		submissions: deps.Submissions,
		locations:   deps.Locations,
		photos:      deps.Photos,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		claimTTL:    deps.ClaimTTL,
		now:         deps.Now,
		newToken:    deps.NewToken,
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.claimTTL <= 0 {
		s.claimTTL = defaultClaimTTL
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newToken == nil {
		s.newToken = uuid.NewString
	}
	s.logger = s.logger.With("component", "moderation")
	return s
}

func (s *moderationService) List(ctx context.Context, filter SubmissionFilter) ([]admindomain.Submission, error) {
	if filter.Status == "" {
		filter.Status = admindomain.SubmissionPending
	}
	filter.Limit = normalizeLimit(filter.Limit)
	subs, err := s.submissions.Find(ctx, filter)
	if err != nil {
		return nil, apperror.Dependency("list submissions", err)
	}
	return subs, nil
}

func (s *moderationService) Detail(ctx context.Context, id string) (*admindomain.Submission, error) {
	return s.load(ctx, id)
}

// Approve は pending の投稿を承認する。
// 写真は1枚ずつ staging から published へコピーし、失敗した写真はログに残して飛ばす。
// staging の削除はロケーションへの書き込みが成功してから行い、終端状態の書き込みは最後に一度だけ行う。
func (s *moderationService) Approve(ctx context.Context, cmd ApproveCommand) (*ApproveResult, error) {
	sub, token, err := s.claim(ctx, cmd.SubmissionID, cmd.ModeratorID, admindomain.SubmissionApproved)
	if err != nil {
		return nil, err
	}
	result, err := s.approve(ctx, sub, token, cmd.ModeratorID)
	if err != nil {
		s.release(ctx, sub.ID, token)
		return nil, err
	}
	return result, nil
}

func (s *moderationService) approve(ctx context.Context, sub *admindomain.Submission, token, moderatorID string) (*ApproveResult, error) {
	now := s.now()
	result := &ApproveResult{}
	var (
		copied photoCopies
		err    error
	)
	switch sub.Type {
	case admindomain.SubmissionNewLocation:
		result.LocationID, copied, err = s.publishNewLocation(ctx, sub, token, now, result)
	case admindomain.SubmissionPhotoUpdate:
		result.LocationID, copied, err = s.backfillPhotos(ctx, sub, token, now, result)
	default:
		err = apperror.Conflict("UNKNOWN_SUBMISSION_TYPE", fmt.Sprintf("unsupported submission type: %s", sub.Type))
	}
	if err != nil {
		return nil, err
	}
	s.deleteStaged(ctx, sub.ID, copied.staged)

	sub.Status = admindomain.SubmissionApproved
	sub.ReviewedBy = moderatorID
	sub.ReviewedAt = &now
	sub.LocationID = result.LocationID
	sub.ReviewClaim = nil
	sub.UpdatedAt = now
	if err := s.finalize(ctx, sub, token); err != nil {
		return nil, err
	}

	s.metrics.RecordTransition(string(admindomain.SubmissionApproved))
	s.logger.Info("submission approved",
		"submission_id", sub.ID,
		"location_id", result.LocationID,
		"moderator", moderatorID,
		"photos_moved", result.PhotosMoved,
		"photos_failed", result.PhotosFailed,
	)
	result.Submission = *sub
	return result, nil
}

// Reject は理由を記録して rejected にした後、staging の写真を削除する。公開領域には触れない。
// 削除は終端状態の書き込みに成功した場合だけ行う。
func (s *moderationService) Reject(ctx context.Context, cmd RejectCommand) (*admindomain.Submission, error) {
	reason, err := admindomain.NewRejectionReason(cmd.Reason)
	if err != nil {
		return nil, apperror.Validation(map[string]string{"reason": err.Error()})
	}
	sub, token, err := s.claim(ctx, cmd.SubmissionID, cmd.ModeratorID, admindomain.SubmissionRejected)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sub.Status = admindomain.SubmissionRejected
	sub.ReviewedBy = cmd.ModeratorID
	sub.ReviewedAt = &now
	sub.RejectionReason = string(reason)
	sub.ReviewClaim = nil
	sub.UpdatedAt = now
	if err := s.finalize(ctx, sub, token); err != nil {
		s.release(ctx, sub.ID, token)
		return nil, err
	}

	for _, key := range sub.Photos {
		if err := s.photos.Delete(ctx, key); err != nil {
			s.metrics.RecordPhotoOp("delete", "failed")
			s.logger.Warn("failed to delete staged photo", "submission_id", sub.ID, "key", key, "error", err)
			continue
		}
		s.metrics.RecordPhotoOp("delete", "ok")
	}

	s.metrics.RecordTransition(string(admindomain.SubmissionRejected))
	s.logger.Info("submission rejected", "submission_id", sub.ID, "moderator", cmd.ModeratorID)
	return sub, nil
}

// Edit は承認前の投稿の説明・タグ・品質を修正する。審査中（有効な claim がある）の投稿は編集できない。
func (s *moderationService) Edit(ctx context.Context, cmd EditSubmissionCommand) (*admindomain.Submission, error) {
	sub, err := s.load(ctx, cmd.SubmissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != admindomain.SubmissionPending {
		return nil, apperror.Conflict("SUBMISSION_NOT_PENDING", "Only pending submissions can be edited")
	}

	errs := apperror.FieldErrors{}
	changed := false
	if cmd.Description != nil {
		description := strings.TrimSpace(*cmd.Description)
		if utf8.RuneCountInString(description) > admindomain.MaxLocationDescription {
			errs.Add("description", fmt.Sprintf("description must be at most %d characters", admindomain.MaxLocationDescription))
		}
		sub.Description = description
		changed = true
	}
	if cmd.AIDescription != nil {
		description := strings.TrimSpace(*cmd.AIDescription)
		if utf8.RuneCountInString(description) > admindomain.MaxLocationDescription {
			errs.Add("aiDescription", fmt.Sprintf("aiDescription must be at most %d characters", admindomain.MaxLocationDescription))
		}
		sub.AIDescription = description
		changed = true
	}
	if cmd.DetectedTags != nil {
		tags, err := admindomain.NewTagList(*cmd.DetectedTags)
		if err != nil {
			errs.Add("detectedTags", err.Error())
		}
		sub.DetectedTags = tags.Strings()
		changed = true
	}
	if cmd.DisplayQuality != nil {
		quality, err := admindomain.NewDisplayQuality(*cmd.DisplayQuality)
		if err != nil {
			errs.Add("displayQuality", err.Error())
		}
		sub.DisplayQuality = quality
		changed = true
	}
	if !changed {
		errs.Add("body", "no editable fields provided")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	sub.UpdatedAt = s.now()
	err = s.submissions.UpdatePending(ctx, sub)
	if errors.Is(err, apperror.ErrPreconditionFailed) {
		return nil, apperror.Conflict("SUBMISSION_IN_REVIEW", "Submission changed, is under review or is no longer pending")
	}
	if err != nil {
		return nil, apperror.Dependency("edit submission", err)
	}
	sub.Version++
	s.logger.Info("submission edited", "submission_id", sub.ID)
	return sub, nil
}

// photoCopies は今回の実行で公開領域に置いた写真と、コピー元として削除してよい staging のキー。
type photoCopies struct {
	published []string
	staged    []string
}

func (s *moderationService) publishNewLocation(ctx context.Context, sub *admindomain.Submission, token string, now time.Time, result *ApproveResult) (string, photoCopies, error) {
	locationID := admindomain.DeriveLocationID(sub.ID)
	copied := s.copyPhotos(ctx, sub, locationID, result)
	if err := s.holdClaim(ctx, sub.ID, token, copied); err != nil {
		return "", photoCopies{}, err
	}

	loc := admindomain.NewLocationFromSubmission(*sub, copied.published, now)
	if err := s.locations.Insert(ctx, &loc); err != nil {
		if errors.Is(err, apperror.ErrAlreadyExists) {
			// 前回の承認が終端書き込みの前に中断していた。ロケーションは作成済み。
			s.logger.Info("location already created for submission", "submission_id", sub.ID, "location_id", locationID)
			return locationID, copied, nil
		}
		return "", photoCopies{}, apperror.Dependency("insert location", err)
	}
	return locationID, copied, nil
}

func (s *moderationService) backfillPhotos(ctx context.Context, sub *admindomain.Submission, token string, now time.Time, result *ApproveResult) (string, photoCopies, error) {
	loc, err := s.locations.FindByID(ctx, sub.TargetLocationID)
	if errors.Is(err, apperror.ErrNotFound) {
		return "", photoCopies{}, apperror.NotFound("location", sub.TargetLocationID)
	}
	if err != nil {
		return "", photoCopies{}, apperror.Dependency("load location", err)
	}
	if loc.PhotoSubmissionID == sub.ID {
		// 前回の実行で反映済み。残っている staging だけ片付ける。
		return loc.ID, photoCopies{staged: sub.Photos}, nil
	}
	if len(loc.Photos) > 0 {
		return "", photoCopies{}, apperror.Conflict("LOCATION_HAS_PHOTOS", "Target location already has photos")
	}

	copied := s.copyPhotos(ctx, sub, loc.ID, result)
	if err := s.holdClaim(ctx, sub.ID, token, copied); err != nil {
		return "", photoCopies{}, err
	}
	fill := admindomain.BuildPhotoBackfill(*loc, *sub, copied.published)
	if err := s.locations.ApplyPhotoBackfill(ctx, loc.ID, fill, now); err != nil {
		if errors.Is(err, apperror.ErrPreconditionFailed) {
			s.discardPublished(ctx, sub.ID, copied.published)
			return "", photoCopies{}, apperror.Conflict("LOCATION_HAS_PHOTOS", "Target location already has photos")
		}
		return "", photoCopies{}, apperror.Dependency("backfill location photos", err)
	}
	return loc.ID, copied, nil
}

// copyPhotos は写真ごとに staging から published へコピーする。staging はここでは消さない。
// コピー元が無くコピー先がある写真は、前回の実行で移動済みとして扱う。
func (s *moderationService) copyPhotos(ctx context.Context, sub *admindomain.Submission, locationID string, result *ApproveResult) photoCopies {
	copied := photoCopies{
		published: make([]string, 0, len(sub.Photos)),
		staged:    make([]string, 0, len(sub.Photos)),
	}
	for _, key := range sub.Photos {
		dst := admindomain.PublishedPhotoKey(locationID, key)
		if err := s.photos.Copy(ctx, key, dst); err != nil {
			if errors.Is(err, apperror.ErrNotFound) && s.published(ctx, dst) {
				result.PhotosMoved++
				s.metrics.RecordPhotoOp("move", "ok")
				copied.published = append(copied.published, dst)
				continue
			}
			result.PhotosFailed++
			s.metrics.RecordPhotoOp("move", "failed")
			s.logger.Warn("failed to move photo", "submission_id", sub.ID, "key", key, "error", err)
			continue
		}
		result.PhotosMoved++
		s.metrics.RecordPhotoOp("move", "ok")
		copied.published = append(copied.published, dst)
		copied.staged = append(copied.staged, key)
	}
	return copied
}

func (s *moderationService) published(ctx context.Context, key string) bool {
	ok, err := s.photos.Exists(ctx, key)
	if err != nil {
		s.logger.Warn("failed to stat published photo", "key", key, "error", err)
		return false
	}
	return ok
}

func (s *moderationService) deleteStaged(ctx context.Context, submissionID string, keys []string) {
	for _, key := range keys {
		if err := s.photos.Delete(ctx, key); err != nil {
			s.metrics.RecordPhotoOp("delete", "failed")
			s.logger.Warn("failed to delete staged photo after copy", "submission_id", submissionID, "key", key, "error", err)
		}
	}
}

func (s *moderationService) discardPublished(ctx context.Context, submissionID string, keys []string) {
	for _, key := range keys {
		if err := s.photos.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to discard published photo", "submission_id", submissionID, "key", key, "error", err)
		}
	}
}

// claim は状態遷移が可能かを確認したうえで審査権を取得し、発行した token を返す。
func (s *moderationService) claim(ctx context.Context, id, moderatorID string, to admindomain.SubmissionStatus) (*admindomain.Submission, string, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if err := sub.CheckTransition(to); err != nil {
		return nil, "", err
	}

	token := s.newToken()
	claimed, err := s.submissions.Claim(ctx, id, admindomain.ReviewClaim{
		By:        moderatorID,
		Token:     token,
		ExpiresAt: s.now().Add(s.claimTTL),
	})
	if errors.Is(err, apperror.ErrPreconditionFailed) {
		return nil, "", apperror.Conflict("SUBMISSION_IN_REVIEW", "Submission is already under review or is no longer pending")
	}
	if err != nil {
		return nil, "", apperror.Dependency("claim submission", err)
	}
	if err := claimed.CheckTransition(to); err != nil {
		return nil, "", err
	}
	return claimed, token, nil
}

// holdClaim はロケーションへ書き込む直前に審査権がまだ自分にあることを確かめ、期限を延長する。
// 失っていた場合、投稿が却下済みならこの実行で置いた公開写真を片付ける。
func (s *moderationService) holdClaim(ctx context.Context, id, token string, copied photoCopies) error {
	err := s.submissions.Renew(ctx, id, token, s.now().Add(s.claimTTL))
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperror.ErrPreconditionFailed) {
		return apperror.Dependency("renew review claim", err)
	}

	s.logger.Warn("review claim lost before location write", "submission_id", id)
	if current, loadErr := s.submissions.FindByID(ctx, id); loadErr == nil && current.Status == admindomain.SubmissionRejected {
		// 公開キーは投稿から決まるため、まだ審査中なら新しい保持者も同じキーを使う。消すのは却下済みの場合だけ。
		s.discardPublished(ctx, id, copied.published)
	}
	return apperror.Conflict("REVIEW_CLAIM_LOST", "Review claim expired or was taken over by another moderator")
}

func (s *moderationService) release(ctx context.Context, id, token string) {
	if err := s.submissions.Release(context.WithoutCancel(ctx), id, token); err != nil {
		s.logger.Warn("failed to release review claim", "submission_id", id, "error", err)
	}
}

func (s *moderationService) finalize(ctx context.Context, sub *admindomain.Submission, token string) error {
	err := s.submissions.Finalize(ctx, sub, token)
	if errors.Is(err, apperror.ErrPreconditionFailed) {
		return apperror.Conflict("SUBMISSION_NOT_PENDING", "Submission is no longer pending or the review claim was lost")
	}
	if err != nil {
		return apperror.Dependency("finalize submission", err)
	}
	return nil
}

func (s *moderationService) load(ctx context.Context, id string) (*admindomain.Submission, error) {
	sub, err := s.submissions.FindByID(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NotFound("submission", id)
	}
	if err != nil {
		return nil, apperror.Dependency("load submission", err)
	}
	return sub, nil
}
