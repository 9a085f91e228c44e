package application

import (
	"context"
	"io"

	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

// LocationRepository は Public コンテキストでロケーションを読み取るためのポート。
// 見つからない場合は apperror.ErrNotFound を返す。
type LocationRepository interface {
	Find(ctx context.Context, filter LocationFilter) ([]domain.Location, error)
	FindByID(ctx context.Context, id string) (*domain.Location, error)
	FindByIDs(ctx context.Context, ids []string) ([]domain.Location, error)
	// FindDuplicate は丸め座標または正規化住所が一致する active なロケーションを返す。無ければ nil。
	FindDuplicate(ctx context.Context, geo domain.GeoKey, addressKey string) (*domain.Location, error)
	// FlagIfReported は reportCount が threshold 以上の active ロケーションを flagged に遷移させる。
	FlagIfReported(ctx context.Context, id string, threshold int) (bool, error)
}

// CounterStore は対象エンティティの数値フィールドを原子的に増減する。
// Decrement は 0 未満にならず、すでに 0 なら何もしない。
type CounterStore interface {
	Increment(ctx context.Context, target domain.Target, field domain.CounterField) error
	Decrement(ctx context.Context, target domain.Target, field domain.CounterField) error
}

// EngagementRepository は EngagementRecord の条件付き作成・削除を提供する。
// Create は同じIDがすでに存在する場合 apperror.ErrAlreadyExists を返す。
type EngagementRepository interface {
	Create(ctx context.Context, record domain.EngagementRecord) error
	FindByID(ctx context.Context, id string) (*domain.EngagementRecord, error)
	Delete(ctx context.Context, id string) (bool, error)
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
	ListByUser(ctx context.Context, userID string, t domain.EngagementType, limit int) ([]domain.EngagementRecord, error)
	DeleteByTarget(ctx context.Context, targetID string) (int64, error)
}

// SubmissionRepository handles user-side submission reads/writes.
// Create は保留中の重複（部分ユニークインデックス違反）で apperror.ErrAlreadyExists を返す。
type SubmissionRepository interface {
	Create(ctx context.Context, sub *domain.Submission) error
	FindPendingDuplicate(ctx context.Context, geo domain.GeoKey, addressKey string) (*domain.Submission, error)
	HasPendingPhotoUpdate(ctx context.Context, locationID, userID string) (bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Submission, error)
	// CountByStatus はユーザーの投稿件数を status ごとに返す。
	CountByStatus(ctx context.Context, userID string) (map[domain.SubmissionStatus]int, error)
	// TopContributors は承認済み件数の多い投稿者を最大 limit 件返す。
	TopContributors(ctx context.Context, limit int) ([]domain.ContributorCount, error)
}

// RouteRepository persists curated routes.
type RouteRepository interface {
	Create(ctx context.Context, route *domain.Route) error
	FindByID(ctx context.Context, id string) (*domain.Route, error)
	FindByIDs(ctx context.Context, ids []string) ([]domain.Route, error)
	Find(ctx context.Context, filter RouteFilter) ([]domain.Route, error)
	// Update は作成者が一致する場合だけ編集可能なフィールドと統計を書き込む。カウンタには触れない。
	// 該当が無ければ apperror.ErrNotFound。
	Update(ctx context.Context, route *domain.Route) error
	Delete(ctx context.Context, id string) error
}

// BlobWriter は staging 領域へ写真を書き込む。
type BlobWriter interface {
	Put(ctx context.Context, key string, r io.Reader) error
}

// SubmissionNotifier は新規投稿を管理者へ通知する。呼び出し元をブロックしてはならない。
type SubmissionNotifier interface {
	NotifySubmission(ctx context.Context, sub domain.Submission)
}

// AnalysisJob は写真1枚分の解析依頼。
type AnalysisJob struct {
	SubmissionID string
	PhotoKey     string
}

// AnalysisEnqueuer は解析ジョブを非同期キューへ積む。満杯なら false を返して破棄する。
type AnalysisEnqueuer interface {
	Enqueue(job AnalysisJob) bool
}

// LocationFilter expresses list criteria for locations.
type LocationFilter struct {
	Status domain.LocationStatus
	Sort   string
	Limit  int
}

// RouteFilter expresses list criteria for routes.
type RouteFilter struct {
	PublicOnly bool
	CreatedBy  string
	Sort       string
	Limit      int
}

const (
	SortNewest  = "newest"
	SortPopular = "popular"

	DefaultListLimit = 100
	MaxListLimit     = 500
)

// NormalizeLimit clamps limit into (0, MaxListLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// EngagementService は like/favorite/save のトグルと通報を扱う。
type EngagementService interface {
	React(ctx context.Context, userID string, t domain.EngagementType, target domain.Target) (domain.ReactResult, error)
	UnReact(ctx context.Context, userID string, t domain.EngagementType, target domain.Target) (domain.ReactResult, error)
	Report(ctx context.Context, cmd ReportCommand) (domain.ReactResult, error)
	Status(ctx context.Context, userID string, target domain.Target) (EngagementStatus, error)
	Favorites(ctx context.Context, userID string, limit int) ([]domain.Location, error)
	SavedRoutes(ctx context.Context, userID string, limit int) ([]domain.Route, error)
}

// ReportCommand captures a location report.
type ReportCommand struct {
	UserID     string
	LocationID string
	Reason     string
}

// EngagementStatus は呼び出しユーザーが対象に対して持っている記録の一覧。
type EngagementStatus struct {
	Target domain.Target
	States map[domain.EngagementType]bool
}

// SubmissionService describes user-side submission use-cases.
type SubmissionService interface {
	SubmitEntry(ctx context.Context, cmd SubmitEntryCommand) (*domain.Submission, error)
	SubmitPhotoUpdate(ctx context.Context, cmd SubmitPhotoUpdateCommand) (*domain.Submission, error)
	CheckDuplicate(ctx context.Context, cmd CheckDuplicateCommand) (domain.DuplicateResult, error)
	CheckPendingPhoto(ctx context.Context, userID, locationID string) (bool, error)
	ListMine(ctx context.Context, userID string, limit int) ([]domain.Submission, error)
	Stats(ctx context.Context, userID string) (domain.SubmissionStats, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// SubmitEntryCommand captures a new_location submission.
type SubmitEntryCommand struct {
	UserID      string
	UserName    string
	Address     string
	Lat         *float64
	Lng         *float64
	Description string
	Photos      []string
}

// SubmitPhotoUpdateCommand captures a photo_update submission.
type SubmitPhotoUpdateCommand struct {
	UserID     string
	UserName   string
	LocationID string
	Photos     []string
}

// CheckDuplicateCommand is the advisory duplicate check input.
type CheckDuplicateCommand struct {
	Address string
	Lat     *float64
	Lng     *float64
}

// LocationQueryService はロケーション参照ユースケースを提供するリーダーモデル。
type LocationQueryService interface {
	List(ctx context.Context, filter LocationFilter) ([]domain.Location, error)
	Detail(ctx context.Context, id string) (*domain.Location, error)
}

// RouteService describes route use-cases.
type RouteService interface {
	Create(ctx context.Context, cmd CreateRouteCommand) (*domain.Route, error)
	Detail(ctx context.Context, userID, id string) (*domain.Route, error)
	List(ctx context.Context, filter RouteFilter) ([]domain.Route, error)
	ListMine(ctx context.Context, userID string, limit int) ([]domain.Route, error)
	Update(ctx context.Context, cmd UpdateRouteCommand) (*domain.Route, error)
	Delete(ctx context.Context, cmd DeleteRouteCommand) error
}

// CreateRouteCommand captures a new route.
type CreateRouteCommand struct {
	UserID      string
	UserName    string
	Title       string
	Description string
	LocationIDs []string
	Tags        []string
	IsPublic    bool
}

// UpdateRouteCommand は nil のフィールドを変更しない。
type UpdateRouteCommand struct {
	UserID      string
	RouteID     string
	Title       *string
	Description *string
	LocationIDs *[]string
	Tags        *[]string
	IsPublic    *bool
}

// DeleteRouteCommand identifies the caller for the ownership check.
type DeleteRouteCommand struct {
	UserID  string
	IsAdmin bool
	RouteID string
}

// PhotoService は未審査写真のアップロードを扱う。
type PhotoService interface {
	Upload(ctx context.Context, cmd UploadPhotoCommand) (string, error)
}

// UploadPhotoCommand carries one photo body.
type UploadPhotoCommand struct {
	UserID      string
	ContentType string
	Body        io.Reader
}
