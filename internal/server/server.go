package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	adminapp "github.com/sngm3741/holiday-lights/api/internal/admin/application"
	"github.com/sngm3741/holiday-lights/api/internal/config"
	"github.com/sngm3741/holiday-lights/api/internal/infrastructure/blob"
	"github.com/sngm3741/holiday-lights/api/internal/infrastructure/messenger"
	mongodoc "github.com/sngm3741/holiday-lights/api/internal/infrastructure/mongo"
	"github.com/sngm3741/holiday-lights/api/internal/infrastructure/vision"
	adminhttp "github.com/sngm3741/holiday-lights/api/internal/interfaces/http/admin"
	"github.com/sngm3741/holiday-lights/api/internal/interfaces/http/common"
	publichttp "github.com/sngm3741/holiday-lights/api/internal/interfaces/http/public"
	"github.com/sngm3741/holiday-lights/api/internal/metrics"
	publicapp "github.com/sngm3741/holiday-lights/api/internal/public/application"
	"github.com/sngm3741/holiday-lights/api/internal/worker/analysis"
)

const defaultMediaBaseURL = "/media"

// Server は HTTP サーバーとバックグラウンド処理のライフサイクルを管理するコンポジションルート。
// ドメインロジックは持たず、リポジトリ・サービス・ハンドラの組み立てと停止順序だけを扱う。
type Server struct {
	addr     string
	logger   *slog.Logger
	client   *mongo.Client
	handler  http.Handler
	pool     *analysis.Pool
	notifier *messenger.Notifier
	limiter  *common.RateLimiter
}

// New は Config と Mongo クライアントから依存を解決した Server を返す。
func New(cfg config.Config, client *mongo.Client, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db := client.Database(cfg.MongoDatabase)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(registry)

	blobs, err := blob.New(cfg.BlobDataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	auth, err := newAuthenticator(cfg, logger.With("component", "auth"))
	if err != nil {
		return nil, err
	}

	locationRepo := mongodoc.NewLocationRepository(db, cfg.LocationCollection)
	submissionRepo := mongodoc.NewSubmissionRepository(db, cfg.SubmissionCollection)
	engagementRepo := mongodoc.NewEngagementRepository(db, cfg.EngagementCollection)
	routeRepo := mongodoc.NewRouteRepository(db, cfg.RouteCollection)
	counters := mongodoc.NewCounterStore(db, cfg.LocationCollection, cfg.RouteCollection)
	failedNotifications := mongodoc.NewFailedNotificationRepository(db, cfg.FailedNotificationCollection)
	adminLocationRepo := mongodoc.NewAdminLocationRepository(db, cfg.LocationCollection)
	adminSubmissionRepo := mongodoc.NewAdminSubmissionRepository(db, cfg.SubmissionCollection)

	analysisService := adminapp.NewAnalysisService(adminSubmissionRepo, logger)

	var (
		pool     *analysis.Pool
		enqueuer publicapp.AnalysisEnqueuer
	)
	if cfg.VisionEndpoint != "" {
		pool = analysis.NewPool(analysis.Config{
			Workers:   cfg.AnalysisWorkers,
			QueueSize: cfg.AnalysisQueueSize,
		}, blobs, vision.NewClient(cfg.VisionEndpoint, cfg.VisionTimeout), analysisService, recorder, logger)
		enqueuer = pool
	} else {
		logger.Warn("VISION_ENDPOINT is not set; photo analysis disabled")
	}

	notifier := messenger.NewNotifier(messenger.Config{
		Endpoint:           cfg.MessengerEndpoint,
		DiscordDestination: cfg.DiscordDestination,
		SlackDestination:   cfg.SlackDestination,
		AdminReviewBaseURL: cfg.AdminReviewBaseURL,
		Timeout:            cfg.MessengerTimeout,
	}, failedNotifications, recorder, logger.With("component", "notifier"))

	locationQueries := publicapp.NewLocationQueryService(locationRepo, counters, cfg.LocationCacheTTL, recorder, logger)
	engagements := publicapp.NewEngagementService(publicapp.EngagementServiceDeps{
		Engagements:         engagementRepo,
		Counters:            counters,
		Locations:           locationRepo,
		Routes:              routeRepo,
		Metrics:             recorder,
		Logger:              logger,
		ReportFlagThreshold: cfg.ReportFlagThreshold,
	})
	submissions := publicapp.NewSubmissionService(publicapp.SubmissionServiceDeps{
		Submissions: submissionRepo,
		Locations:   locationRepo,
		Detector:    publicapp.NewDuplicateDetector(locationRepo, submissionRepo),
		Notifier:    notifier,
		Analysis:    enqueuer,
		Metrics:     recorder,
		Logger:      logger,
	})
	routes := publicapp.NewRouteService(routeRepo, locationRepo, engagementRepo, logger)
	photos := publicapp.NewPhotoService(blobs, recorder)

	moderation := adminapp.NewModerationService(adminapp.ModerationServiceDeps{
		Submissions: adminSubmissionRepo,
		Locations:   adminLocationRepo,
		Photos:      blobs,
		Metrics:     recorder,
		Logger:      logger,
		ClaimTTL:    cfg.ReviewClaimTTL,
	})
	adminLocations := adminapp.NewLocationService(adminLocationRepo, blobs, engagementRepo, logger)

	mediaBaseURL := cfg.MediaBaseURL
	if mediaBaseURL == "" {
		mediaBaseURL = defaultMediaBaseURL
	}
	sanitizer := common.NewSanitizer()
	limiter := common.NewRateLimiter(common.RateLimiterConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	}, logger)

	publicHandler := publichttp.NewHandler(publichttp.Config{
		Logger:       logger,
		Locations:    locationQueries,
		Engagements:  engagements,
		Submissions:  submissions,
		Routes:       routes,
		Photos:       photos,
		Sanitizer:    sanitizer,
		MediaBaseURL: mediaBaseURL,
		AdminGroup:   cfg.AdminGroup,
	})
	adminHandler := adminhttp.NewHandler(adminhttp.Config{
		Logger:        logger,
		Moderation:    moderation,
		Locations:     adminLocations,
		Notifications: failedNotifications,
		Photos:        blobs,
		Sanitizer:     sanitizer,
		MediaBaseURL:  mediaBaseURL,
	})

	srv := &Server{
		addr:     cfg.Addr,
		logger:   logger,
		client:   client,
		pool:     pool,
		notifier: notifier,
		limiter:  limiter,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(withCORS(cfg.AllowedOrigins))

	router.Get("/healthz", srv.healthHandler())
	router.Handle("/metrics", metrics.Handler(registry))
	if strings.HasPrefix(mediaBaseURL, "/") {
		router.Handle(mediaBaseURL+"/published/*", publishedMediaHandler(mediaBaseURL, blobs.Root()))
	}

	publicHandler.Register(router, publichttp.Middlewares{
		Auth:         auth.required,
		OptionalAuth: auth.optional,
		RateLimit:    limiter.Middleware,
	})
	router.Route("/admin", func(r chi.Router) {
		r.Use(auth.required, requireGroup(cfg.AdminGroup, logger))
		adminHandler.Register(r)
	})

	srv.handler = router
	return srv, nil
}

// Handler exposes the assembled router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run は解析ワーカーと HTTP サーバーを起動し、シグナルを受けるまでブロックする。
func (s *Server) Run() error {
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	if s.pool != nil {
		s.pool.Start(workerCtx)
	}

	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", "addr", s.addr)
		errChan <- httpServer.ListenAndServe()
	}()

	return s.waitForShutdown(httpServer, errChan)
}

// healthHandler は MongoDB への疎通のみを返す。
func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
			common.WriteJSON(s.logger, w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
		common.WriteJSON(s.logger, w, http.StatusOK, map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// publishedMediaHandler は公開済み写真だけを配信する。ディレクトリ一覧は返さない。
func publishedMediaHandler(baseURL, root string) http.Handler {
	files := http.StripPrefix(baseURL, http.FileServer(http.Dir(filepath.Clean(root))))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	})
}

// waitForShutdown は ListenAndServe の終了と OS シグナルを監視する。
// 停止順序は HTTP → 解析ワーカー → 通知 → レートリミッタ → MongoDB。
func (s *Server) waitForShutdown(httpServer *http.Server, errChan <-chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server stopped unexpectedly: %w", err)
		}
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown failed", "error", err)
		}
	}

	s.shutdown()
	return runErr
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn("analysis workers did not drain", "error", err)
		}
	}
	s.notifier.Wait()
	s.limiter.Stop()

	if err := s.client.Disconnect(ctx); err != nil {
		s.logger.Error("mongo disconnect failed", "error", err)
	}
	s.logger.Info("server stopped")
}
