package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// JWTConfig は HS256 検証用の issuer/secret ペア。
type JWTConfig struct {
	Issuer string
	Secret []byte
}

// Config holds runtime configuration shared across the application.
type Config struct {
	Addr           string
	LogLevel       string
	MongoURI       string
	MongoDatabase  string
	MongoTimeout   time.Duration
	RunMigrations  bool
	AllowedOrigins []string

	LocationCollection           string
	SubmissionCollection         string
	EngagementCollection         string
	RouteCollection              string
	FailedNotificationCollection string

	JWTConfigs  []JWTConfig
	JWTAudience string
	JWKSURL     string
	AdminGroup  string

	BlobDataDir  string
	MediaBaseURL string

	VisionEndpoint    string
	VisionTimeout     time.Duration
	AnalysisWorkers   int
	AnalysisQueueSize int

	MessengerEndpoint  string
	DiscordDestination string
	SlackDestination   string
	MessengerTimeout   time.Duration
	AdminReviewBaseURL string

	RateLimitPerMinute  int
	RateLimitBurst      int
	LocationCacheTTL    time.Duration
	ReportFlagThreshold int
	ReviewClaimTTL      time.Duration
}

// defaultCollections はマイグレーションの JSON に書かれたコレクション名と一致させる。
var defaultCollections = map[string]string{
	"LOCATION_COLLECTION":            "locations",
	"SUBMISSION_COLLECTION":          "submissions",
	"ENGAGEMENT_COLLECTION":          "engagements",
	"ROUTE_COLLECTION":               "routes",
	"FAILED_NOTIFICATION_COLLECTION": "failed_notifications",
}

// checkMigratedCollections はインデックスの無いコレクションで起動しないよう、
// マイグレーション実行時に既定以外のコレクション名を拒否する。
func checkMigratedCollections(cfg Config) error {
	actual := map[string]string{
		"LOCATION_COLLECTION":            cfg.LocationCollection,
		"SUBMISSION_COLLECTION":          cfg.SubmissionCollection,
		"ENGAGEMENT_COLLECTION":          cfg.EngagementCollection,
		"ROUTE_COLLECTION":               cfg.RouteCollection,
		"FAILED_NOTIFICATION_COLLECTION": cfg.FailedNotificationCollection,
	}
	for key, want := range defaultCollections {
		if actual[key] != want {
			return fmt.Errorf("%s=%q is not supported with MONGO_RUN_MIGRATIONS=true: migrations only index %q", key, actual[key], want)
		}
	}
	return nil
}

// Load reads environment variables and returns a fully populated Config.
func Load() (Config, error) {
	var jwtConfigs []JWTConfig
	if secret := strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")); secret != "" {
		jwtConfigs = append(jwtConfigs, JWTConfig{
			Issuer: strings.TrimSpace(os.Getenv("AUTH_JWT_ISSUER")),
			Secret: []byte(secret),
		})
	}
	jwksURL := strings.TrimSpace(os.Getenv("AUTH_JWKS_URL"))
	if len(jwtConfigs) == 0 && jwksURL == "" {
		return Config{}, errors.New("auth not configured: set AUTH_JWT_SECRET or AUTH_JWKS_URL")
	}

	cfg := Config{
		Addr:           envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		MongoURI:       envOrDefault("MONGO_URI", "mongodb://mongo:27017"),
		MongoDatabase:  envOrDefault("MONGO_DB", "holiday-lights"),
		AllowedOrigins: parseList("API_ALLOWED_ORIGINS", []string{"*"}),

		LocationCollection:           envOrDefault("LOCATION_COLLECTION", defaultCollections["LOCATION_COLLECTION"]),
		SubmissionCollection:         envOrDefault("SUBMISSION_COLLECTION", defaultCollections["SUBMISSION_COLLECTION"]),
		EngagementCollection:         envOrDefault("ENGAGEMENT_COLLECTION", defaultCollections["ENGAGEMENT_COLLECTION"]),
		RouteCollection:              envOrDefault("ROUTE_COLLECTION", defaultCollections["ROUTE_COLLECTION"]),
		FailedNotificationCollection: envOrDefault("FAILED_NOTIFICATION_COLLECTION", defaultCollections["FAILED_NOTIFICATION_COLLECTION"]),

		JWTConfigs:  jwtConfigs,
		JWTAudience: strings.TrimSpace(os.Getenv("AUTH_JWT_AUDIENCE")),
		JWKSURL:     jwksURL,
		AdminGroup:  envOrDefault("AUTH_ADMIN_GROUP", "Admins"),

		BlobDataDir:  envOrDefault("BLOB_DATA_DIR", "./data/blobs"),
		MediaBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("MEDIA_BASE_URL")), "/"),

		VisionEndpoint: strings.TrimSpace(os.Getenv("VISION_ENDPOINT")),

		MessengerEndpoint:  strings.TrimRight(envOrDefault("MESSENGER_GATEWAY_URL", "http://messenger-gateway:3000"), "/"),
		DiscordDestination: strings.TrimSpace(os.Getenv("MESSENGER_DISCORD_DESTINATION")),
		SlackDestination:   strings.TrimSpace(os.Getenv("MESSENGER_SLACK_DESTINATION")),
		AdminReviewBaseURL: strings.TrimSpace(os.Getenv("ADMIN_REVIEW_BASE_URL")),
	}

	var err error
	if cfg.MongoTimeout, err = envDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RunMigrations, err = envBool("MONGO_RUN_MIGRATIONS", true); err != nil {
		return Config{}, err
	}
	if cfg.RunMigrations {
		if err := checkMigratedCollections(cfg); err != nil {
			return Config{}, err
		}
	}
	if cfg.VisionTimeout, err = envDuration("VISION_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.AnalysisWorkers, err = envInt("ANALYSIS_WORKERS", 2); err != nil {
		return Config{}, err
	}
	if cfg.AnalysisQueueSize, err = envInt("ANALYSIS_QUEUE_SIZE", 64); err != nil {
		return Config{}, err
	}
	if cfg.MessengerTimeout, err = envDuration("MESSENGER_GATEWAY_TIMEOUT", 3*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerMinute, err = envInt("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = envInt("RATE_LIMIT_BURST", 20); err != nil {
		return Config{}, err
	}
	if cfg.LocationCacheTTL, err = envDuration("LOCATION_CACHE_TTL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ReportFlagThreshold, err = envInt("REPORT_FLAG_THRESHOLD", 3); err != nil {
		return Config{}, err
	}
	if cfg.ReviewClaimTTL, err = envDuration("REVIEW_CLAIM_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer: %q", key, raw)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration: %q", key, raw)
	}
	return v, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %q", key, raw)
	}
	return v, nil
}

func parseList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}

	if len(values) == 0 {
		return fallback
	}
	return values
}
