package public

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sngm3741/holiday-lights/api/internal/interfaces/http/common"
	publicapp "github.com/sngm3741/holiday-lights/api/internal/public/application"
)

// Handler wires public HTTP endpoints to application services.
type Handler struct {
	logger       *slog.Logger
	locations    publicapp.LocationQueryService
	engagements  publicapp.EngagementService
	submissions  publicapp.SubmissionService
	routes       publicapp.RouteService
	photos       publicapp.PhotoService
	sanitizer    *common.Sanitizer
	mediaBaseURL string
	adminGroup   string
}

// Config defines dependencies required by Handler.
type Config struct {
	Logger       *slog.Logger
	Locations    publicapp.LocationQueryService
	Engagements  publicapp.EngagementService
	Submissions  publicapp.SubmissionService
	Routes       publicapp.RouteService
	Photos       publicapp.PhotoService
	Sanitizer    *common.Sanitizer
	MediaBaseURL string
	AdminGroup   string
}

// Middlewares は Register で各ルートに差し込むミドルウェア。
// OptionalAuth はトークンがあれば検証し、無ければ匿名で通す。
type Middlewares struct {
	Auth         func(http.Handler) http.Handler
	OptionalAuth func(http.Handler) http.Handler
	RateLimit    func(http.Handler) http.Handler
}

// NewHandler constructs a public HTTP handler set.
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
		logger:       logger.With("component", "public_http"),
		locations:    cfg.Locations,
		engagements:  cfg.Engagements,
		submissions:  cfg.Submissions,
		routes:       cfg.Routes,
		photos:       cfg.Photos,
		sanitizer:    sanitizer,
		mediaBaseURL: cfg.MediaBaseURL,
		adminGroup:   cfg.AdminGroup,
	}
}

// Register mounts all public routes onto the router.
func (h *Handler) Register(r chi.Router, mw Middlewares) {
	auth := orPassThrough(mw.Auth)
	optional := orPassThrough(mw.OptionalAuth)
	limited := orPassThrough(mw.RateLimit)

	r.Get("/locations", h.locationListHandler())
	r.Get("/locations/{id}", h.locationDetailHandler())
	r.With(optional).Get("/routes", h.routeListHandler())
	r.With(optional).Get("/routes/{id}", h.routeDetailHandler())
	r.Get("/leaderboard", h.leaderboardHandler())

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Get("/auth/verify", h.authVerifyHandler())
		r.Get("/me/favorites", h.favoritesHandler())
		r.Get("/me/submissions", h.mySubmissionsHandler())
		r.Get("/me/routes", h.myRoutesHandler())
		r.Get("/me/saved-routes", h.savedRoutesHandler())
		r.Get("/me/profile", h.profileHandler())
		r.Get("/engagements/{targetType}/{targetId}", h.engagementStatusHandler())
		r.Get("/submissions/check-duplicate", h.checkDuplicateHandler())
		r.Get("/locations/{id}/pending-photo", h.pendingPhotoHandler())
		r.Patch("/routes/{id}", h.routeUpdateHandler())
		r.Delete("/routes/{id}", h.routeDeleteHandler())

		r.Group(func(r chi.Router) {
			r.Use(limited)
			r.Put("/engagements/{targetType}/{targetId}/{type}", h.reactHandler())
			r.Delete("/engagements/{targetType}/{targetId}/{type}", h.unReactHandler())
			r.Post("/locations/{id}/report", h.reportHandler())
			r.Post("/submissions", h.submitEntryHandler())
			r.Post("/locations/{id}/photo-submissions", h.submitPhotoUpdateHandler())
			r.Post("/photos", h.photoUploadHandler())
			r.Post("/routes", h.routeCreateHandler())
		})
	})
}

func orPassThrough(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw != nil {
		return mw
	}
	return func(next http.Handler) http.Handler { return next }
}

// currentUser は認証ミドルウェアの後段でのみ呼ぶ。取れなければ 401 を書いて false を返す。
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (common.AuthenticatedUser, bool) {
	user, ok := common.UserFromContext(r.Context())
	if !ok || user.ID == "" {
		common.WriteUnauthorized(h.logger, w, "authentication required")
		return common.AuthenticatedUser{}, false
	}
	return user, true
}
