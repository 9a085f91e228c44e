package application

import (
	"context"
	"io"
	"time"

	admindomain "github.com/sngm3741/holiday-lights/api/internal/admin/domain"
)

// SubmissionRepository exposes moderation access to submissions.
// 条件付き更新の前提が崩れた場合は apperror.ErrPreconditionFailed を返す。
type SubmissionRepository interface {
	Find(ctx context.Context, filter SubmissionFilter) ([]admindomain.Submission, error)
	FindByID(ctx context.Context, id string) (*admindomain.Submission, error)
	// Claim は pending かつ審査権が未取得か期限切れの場合だけ claim を書き込む。
	// 同じ審査者であっても有効な claim があれば取得できない。
	Claim(ctx context.Context, id string, claim admindomain.ReviewClaim) (*admindomain.Submission, error)
	// Renew は token の claim が期限内に残っている場合だけ期限を延長する。
	Renew(ctx context.Context, id, token string, expiresAt time.Time) error
	// Release は token の claim を解放する。すでに失っていれば何もしない。
	Release(ctx context.Context, id, token string) error
	// Finalize は pending かつ token の claim を保持している場合だけ終端状態を書き込む。
	Finalize(ctx context.Context, sub *admindomain.Submission, token string) error
	// UpdatePending は pending で version が一致し、有効な claim が無い場合だけ編集内容を書き込み version を進める。
	UpdatePending(ctx context.Context, sub *admindomain.Submission) error
	// SaveAnalysis は version が一致し pending の場合だけ解析結果を書き込み、version を進める。
	SaveAnalysis(ctx context.Context, sub *admindomain.Submission) error
}

// LocationRepository exposes admin operations on locations.
type LocationRepository interface {
	Find(ctx context.Context, filter LocationFilter) ([]admindomain.Location, error)
	FindByID(ctx context.Context, id string) (*admindomain.Location, error)
	// Insert は同じIDが存在する場合 apperror.ErrAlreadyExists を返す。
	Insert(ctx context.Context, loc *admindomain.Location) error
	// ApplyPhotoBackfill は写真が空のロケーションにだけ差分を適用する。
	ApplyPhotoBackfill(ctx context.Context, id string, fill admindomain.PhotoBackfill, now time.Time) error
	Update(ctx context.Context, loc *admindomain.Location) error
	Delete(ctx context.Context, id string) error
}

// PhotoStore はサーバー側コピーと削除を提供する Blob ストア。
// Copy はコピー元が無ければ apperror.ErrNotFound を返す。
type PhotoStore interface {
	Copy(ctx context.Context, srcKey, dstKey string) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// PhotoReader reads staged photos for analysis.
type PhotoReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// EngagementCleaner removes engagement records of a deleted target.
type EngagementCleaner interface {
	DeleteByTarget(ctx context.Context, targetID string) (int64, error)
}

// SubmissionFilter expresses moderation list criteria.
type SubmissionFilter struct {
	Status admindomain.SubmissionStatus
	Type   admindomain.SubmissionType
	Limit  int
}

// LocationFilter expresses admin location search criteria.
type LocationFilter struct {
	Status admindomain.LocationStatus
	Limit  int
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// ModerationService describes submission review use-cases.
type ModerationService interface {
	List(ctx context.Context, filter SubmissionFilter) ([]admindomain.Submission, error)
	Detail(ctx context.Context, id string) (*admindomain.Submission, error)
	Approve(ctx context.Context, cmd ApproveCommand) (*ApproveResult, error)
	Reject(ctx context.Context, cmd RejectCommand) (*admindomain.Submission, error)
	Edit(ctx context.Context, cmd EditSubmissionCommand) (*admindomain.Submission, error)
}

// EditSubmissionCommand は承認前の投稿の修正。nil のフィールドは変更しない。
type EditSubmissionCommand struct {
	SubmissionID   string
	Description    *string
	AIDescription  *string
	DetectedTags   *[]string
	DisplayQuality *string
}

// ApproveCommand identifies the submission and the moderator.
type ApproveCommand struct {
	SubmissionID string
	ModeratorID  string
}

// RejectCommand carries the moderator's reason.
type RejectCommand struct {
	SubmissionID string
	ModeratorID  string
	Reason       string
}

// ApproveResult は承認結果。写真移動の失敗数も返す。
type ApproveResult struct {
	Submission   admindomain.Submission
	LocationID   string
	PhotosMoved  int
	PhotosFailed int
}

// AnalysisService applies vision output to pending submissions.
type AnalysisService interface {
	Apply(ctx context.Context, submissionID string, result admindomain.AnalysisResult) error
}

// LocationService describes admin location use-cases.
type LocationService interface {
	List(ctx context.Context, filter LocationFilter) ([]admindomain.Location, error)
	Detail(ctx context.Context, id string) (*admindomain.Location, error)
	Update(ctx context.Context, id string, cmd UpdateLocationCommand) (*admindomain.Location, error)
	SoftDelete(ctx context.Context, id string) error
	HardDelete(ctx context.Context, id string) error
}

// UpdateLocationCommand は nil のフィールドを変更しない。
type UpdateLocationCommand struct {
	Status      *string
	Description *string
	Decorations *[]string
}
