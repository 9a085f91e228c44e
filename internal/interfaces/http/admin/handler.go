package admin

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	adminapp "github.com/sngm3741/holiday-lights/api/internal/admin/application"
	"github.com/sngm3741/holiday-lights/api/internal/infrastructure/messenger"
	"github.com/sngm3741/holiday-lights/api/internal/interfaces/http/common"
)

// FailedNotificationLister は送信できなかった管理者通知を新しい順に返す。
type FailedNotificationLister interface {
	Recent(ctx context.Context, limit int) ([]messenger.Failure, error)
}

// PhotoOpener reads staged photos for review.
type PhotoOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Handler wires admin HTTP endpoints to application services.
type Handler struct {
	logger        *slog.Logger
	moderation    adminapp.ModerationService
	locations     adminapp.LocationService
	notifications FailedNotificationLister
	photos        PhotoOpener
	sanitizer     *common.Sanitizer
	mediaBaseURL  string
}

// Config provides dependencies for Handler.
type Config struct {
	Logger        *slog.Logger
	Moderation    adminapp.ModerationService
	Locations     adminapp.LocationService
	Notifications FailedNotificationLister
	Photos        PhotoOpener
	Sanitizer     *common.Sanitizer
	MediaBaseURL  string
}

// NewHandler constructs an admin HTTP handler set.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sanitizer := cfg.Sanitizer
	if sanitizer == nil {
		sanitizer = common.NewSanitizer()
	}
	return &Handler{
		logger:        logger.With("component", "admin_http"),
		moderation:    cfg.Moderation,
		locations:     cfg.Locations,
		notifications: cfg.Notifications,
		photos:        cfg.Photos,
		sanitizer:     sanitizer,
		mediaBaseURL:  cfg.MediaBaseURL,
	}
}

// Register mounts admin routes onto router. 認証と管理者グループの確認は呼び出し側で済ませておくこと。
func (h *Handler) Register(r chi.Router) {
	r.Get("/submissions", h.submissionListHandler())
	r.Get("/submissions/{id}", h.submissionDetailHandler())
	r.Patch("/submissions/{id}", h.submissionEditHandler())
	r.Post("/submissions/{id}/approve", h.approveHandler())
	r.Post("/submissions/{id}/reject", h.rejectHandler())
	r.Get("/locations", h.locationListHandler())
	r.Get("/locations/{id}", h.locationDetailHandler())
	r.Patch("/locations/{id}", h.locationUpdateHandler())
	r.Delete("/locations/{id}", h.locationDeleteHandler())
	r.Get("/notifications/failed", h.failedNotificationsHandler())
	r.Get("/photos/*", h.stagedPhotoHandler())
}

func (h *Handler) moderator(w http.ResponseWriter, r *http.Request) (common.AuthenticatedUser, bool) {
	user, ok := common.UserFromContext(r.Context())
	if !ok || user.ID == "" {
		common.WriteUnauthorized(h.logger, w, "authentication required")
		return common.AuthenticatedUser{}, false
	}
	return user, true
}
