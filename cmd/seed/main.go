// Command seed は開発環境向けにロケーション・ルート・エンゲージメント・未審査投稿を投入する。
// エンゲージメントは EngagementService 経由で作るため、カウンタと記録が常に一致する。
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	admindomain "github.com/sngm3741/holiday-lights/api/internal/admin/domain"
	mongodoc "github.com/sngm3741/holiday-lights/api/internal/infrastructure/mongo"
	"github.com/sngm3741/holiday-lights/api/internal/logger"
	publicapp "github.com/sngm3741/holiday-lights/api/internal/public/application"
	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

type seedOptions struct {
	envName         string
	locationCount   int
	routeCount      int
	userCount       int
	engagementCount int
	pendingCount    int
	dropCollections bool
	randomSeed      int64
}

type collections struct {
	locations   string
	submissions string
	engagements string
	routes      string
}

type metro struct {
	name     string
	lat, lng float64
	streets  []string
}

var metros = []metro{
	{name: "Dallas, TX", lat: 32.7767, lng: -96.7970, streets: []string{"Swiss Ave", "Lakewood Blvd", "Gaston Ave", "Abrams Rd"}},
	{name: "Austin, TX", lat: 30.2672, lng: -97.7431, streets: []string{"37th St", "Duval St", "Speedway", "Avenue H"}},
	{name: "Plano, TX", lat: 33.0198, lng: -96.6989, streets: []string{"Deerfield Dr", "Custer Rd", "Parker Rd", "Legacy Dr"}},
}

var decorationPool = []string{
	"Inflatable Santa", "Inflatable Snowman", "Light Tunnel", "Animated Reindeer",
	"Music Synced Lights", "Candy Canes", "Icicle Lights", "Nativity Scene",
	"Projection Display", "Wreath", "Lit Archway", "Star Topper",
}

var descriptions = []string{
	"Whole yard synced to music every 30 minutes after dark.",
	"Classic white icicles with a glowing nativity scene.",
	"Walk-through light tunnel, bring the kids!",
	"Over 50,000 lights and a giant inflatable lineup.",
	"",
}

func main() {
	opts := parseFlags()
	log := logger.Setup(os.Stdout, "info")

	if err := loadEnvFiles(opts.envName); err != nil {
		log.Error("環境変数の読み込みに失敗しました", "error", err)
		os.Exit(1)
	}

	cols := collections{
		locations:   envOrDefault("LOCATION_COLLECTION", "locations"),
		submissions: envOrDefault("SUBMISSION_COLLECTION", "submissions"),
		engagements: envOrDefault("ENGAGEMENT_COLLECTION", "engagements"),
		routes:      envOrDefault("ROUTE_COLLECTION", "routes"),
	}
	mongoURI := envOrDefault("MONGO_URI", "mongodb://localhost:27017")
	dbName := envOrDefault("MONGO_DB", "holiday-lights")

	if err := run(opts, cols, mongoURI, dbName, log); err != nil {
		log.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(opts seedOptions, cols collections, mongoURI, dbName string, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return fmt.Errorf("MongoDB 接続に失敗しました: %w", err)
	}
	defer func() {
		_ = client.Disconnect(context.Background())
	}()
	db := client.Database(dbName)

	if opts.dropCollections {
		for _, name := range []string{cols.locations, cols.submissions, cols.engagements, cols.routes} {
			if err := db.Collection(name).Drop(ctx); err != nil {
				return fmt.Errorf("%s の削除に失敗しました: %w", name, err)
			}
		}
		log.Info("既存コレクションを削除しました")
	}
	if err := mongodoc.RunMigrations(mongoURI, dbName, log); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(opts.randomSeed))
	users := generateUsers(opts.userCount)
	now := time.Now().UTC()

	adminLocations := mongodoc.NewAdminLocationRepository(db, cols.locations)
	locations := generateLocations(rng, users, opts.locationCount, now)
	for i := range locations {
		if err := adminLocations.Insert(ctx, &locations[i]); err != nil {
			return fmt.Errorf("ロケーションの挿入に失敗しました: %w", err)
		}
	}

	routeRepo := mongodoc.NewRouteRepository(db, cols.routes)
	routes := generateRoutes(rng, users, locations, opts.routeCount, now)
	for i := range routes {
		if err := routeRepo.Create(ctx, &routes[i]); err != nil {
			return fmt.Errorf("ルートの挿入に失敗しました: %w", err)
		}
	}

	locationRepo := mongodoc.NewLocationRepository(db, cols.locations)
	engagementRepo := mongodoc.NewEngagementRepository(db, cols.engagements)
	engagements := publicapp.NewEngagementService(publicapp.EngagementServiceDeps{
		Engagements: engagementRepo,
		Counters:    mongodoc.NewCounterStore(db, cols.locations, cols.routes),
		Locations:   locationRepo,
		Routes:      routeRepo,
		Logger:      log,
	})
	reacted, err := seedEngagements(ctx, rng, engagements, users, locations, routes, opts.engagementCount)
	if err != nil {
		return err
	}

	submissionRepo := mongodoc.NewSubmissionRepository(db, cols.submissions)
	pending := generatePendingSubmissions(rng, users, opts.pendingCount, now)
	for i := range pending {
		if err := submissionRepo.Create(ctx, &pending[i]); err != nil {
			return fmt.Errorf("投稿の挿入に失敗しました: %w", err)
		}
	}

	log.Info("seed completed",
		"locations", len(locations),
		"routes", len(routes),
		"engagements", reacted,
		"pending_submissions", len(pending),
		"database", dbName,
		"env", opts.envName,
		"random_seed", opts.randomSeed,
	)
	return nil
}

func parseFlags() seedOptions {
	var opts seedOptions
	flag.StringVar(&opts.envName, "env", "local", "env ディレクトリ内の env ファイル名 (例: local, staging)")
	flag.IntVar(&opts.locationCount, "locations", 30, "生成するロケーション数")
	flag.IntVar(&opts.routeCount, "routes", 5, "生成するルート数")
	flag.IntVar(&opts.userCount, "users", 8, "生成するユーザー数")
	flag.IntVar(&opts.engagementCount, "engagements", 120, "試行する like/favorite/save の回数")
	flag.IntVar(&opts.pendingCount, "pending", 5, "生成する未審査投稿数")
	flag.BoolVar(&opts.dropCollections, "drop", true, "既存コレクションを削除してから投入する")
	flag.Int64Var(&opts.randomSeed, "seed", time.Now().UnixNano(), "乱数シード（再現用）")
	flag.Parse()

	if opts.locationCount <= 0 {
		fmt.Fprintln(os.Stderr, "locations は 1 以上を指定してください")
		os.Exit(2)
	}
	if opts.userCount <= 0 {
		opts.userCount = 1
	}
	opts.routeCount = max(opts.routeCount, 0)
	opts.engagementCount = max(opts.engagementCount, 0)
	opts.pendingCount = max(opts.pendingCount, 0)
	return opts
}

type seedUser struct {
	id   string
	name string
}

func generateUsers(n int) []seedUser {
	users := make([]seedUser, n)
	for i := range users {
		users[i] = seedUser{id: fmt.Sprintf("seed-user-%02d", i+1), name: fmt.Sprintf("Elf %d", i+1)}
	}
	return users
}

func jitter(rng *rand.Rand, spread float64) float64 {
	return (rng.Float64()*2 - 1) * spread
}

func randomAddress(rng *rand.Rand, m metro) string {
	return fmt.Sprintf("%d %s, %s", 100+rng.Intn(9800), m.streets[rng.Intn(len(m.streets))], m.name)
}

func pickDecorations(rng *rand.Rand) []string {
	picked := make([]string, 0, 4)
	for _, i := range rng.Perm(len(decorationPool))[:1+rng.Intn(4)] {
		picked = append(picked, decorationPool[i])
	}
	return admindomain.DeduplicateTags(picked)
}

var qualities = []admindomain.DisplayQuality{
	admindomain.QualityMinimal,
	admindomain.QualityModerate,
	admindomain.QualityImpressive,
	admindomain.QualitySpectacular,
}

func generateLocations(rng *rand.Rand, users []seedUser, n int, now time.Time) []admindomain.Location {
	out := make([]admindomain.Location, 0, n)
	for i := 0; i < n; i++ {
		m := metros[rng.Intn(len(metros))]
		user := users[rng.Intn(len(users))]
		created := now.Add(-time.Duration(rng.Intn(30*24)) * time.Hour)
		out = append(out, admindomain.Location{
			ID:      uuid.NewString(),
			Address: randomAddress(rng, m),
			Coordinates: admindomain.Coordinates{
				Lat: m.lat + jitter(rng, 0.08),
				Lng: m.lng + jitter(rng, 0.08),
			},
			Description:    descriptions[rng.Intn(len(descriptions))],
			Decorations:    pickDecorations(rng),
			DisplayQuality: qualities[rng.Intn(len(qualities))],
			Status:         admindomain.LocationActive,
			CreatedBy:      user.id,
			CreatedByName:  user.name,
			CreatedAt:      created,
			UpdatedAt:      created,
		})
	}
	return out
}

func generateRoutes(rng *rand.Rand, users []seedUser, locations []admindomain.Location, n int, now time.Time) []domain.Route {
	out := make([]domain.Route, 0, n)
	for i := 0; i < n && len(locations) >= 2; i++ {
		size := min(2+rng.Intn(5), len(locations))
		ids := make([]string, 0, size)
		stops := make([]domain.Coordinates, 0, size)
		for _, idx := range rng.Perm(len(locations))[:size] {
			loc := locations[idx]
			ids = append(ids, loc.ID)
			stops = append(stops, domain.Coordinates{Lat: loc.Coordinates.Lat, Lng: loc.Coordinates.Lng})
		}
		user := users[rng.Intn(len(users))]
		out = append(out, domain.Route{
			ID:            uuid.NewString(),
			Title:         fmt.Sprintf("%s's Light Tour #%d", user.name, i+1),
			LocationIDs:   ids,
			Tags:          []string{"family friendly"},
			IsPublic:      rng.Intn(5) != 0,
			Status:        domain.RouteActive,
			Stats:         domain.ComputeRouteStats(stops),
			CreatedBy:     user.id,
			CreatedByName: user.name,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return out
}

// seedEngagements は既存の組み合わせに当たっても AlreadyExisted になるだけなので、試行回数をそのまま回す。
func seedEngagements(ctx context.Context, rng *rand.Rand, svc publicapp.EngagementService, users []seedUser, locations []admindomain.Location, routes []domain.Route, attempts int) (int, error) {
	created := 0
	for i := 0; i < attempts; i++ {
		user := users[rng.Intn(len(users))]
		var target domain.Target
		if len(routes) > 0 && rng.Intn(4) == 0 {
			route := routes[rng.Intn(len(routes))]
			if !route.Engageable(user.id) {
				continue
			}
			target = domain.Target{Kind: domain.TargetRoute, ID: route.ID}
		} else {
			target = domain.Target{Kind: domain.TargetLocation, ID: locations[rng.Intn(len(locations))].ID}
		}
		types := domain.ToggleTypes(target.Kind)
		res, err := svc.React(ctx, user.id, types[rng.Intn(len(types))], target)
		if err != nil {
			return created, fmt.Errorf("エンゲージメントの作成に失敗しました: %w", err)
		}
		if !res.AlreadyExisted {
			created++
		}
	}
	return created, nil
}

func generatePendingSubmissions(rng *rand.Rand, users []seedUser, n int, now time.Time) []domain.Submission {
	out := make([]domain.Submission, 0, n)
	for i := 0; i < n; i++ {
		m := metros[rng.Intn(len(metros))]
		user := users[rng.Intn(len(users))]
		coords := domain.Coordinates{Lat: m.lat + jitter(rng, 0.1), Lng: m.lng + jitter(rng, 0.1)}
		address := randomAddress(rng, m)
		out = append(out, domain.Submission{
			ID:              uuid.NewString(),
			Type:            domain.SubmissionNewLocation,
			Status:          domain.SubmissionPending,
			Address:         address,
			Coordinates:     coords,
			GeoKey:          domain.NewGeoKey(coords),
			AddressKey:      domain.NormalizeAddress(address),
			Description:     descriptions[rng.Intn(len(descriptions))],
			SubmittedBy:     user.id,
			SubmittedByName: user.name,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return out
}

// loadEnvFiles は env/shared.env と env/<name>.env を読み込む。存在しないファイルは無視する。
func loadEnvFiles(envName string) error {
	base := filepath.Clean(filepath.Join("..", "env"))
	for _, file := range []string{
		filepath.Join(base, "shared.env"),
		filepath.Join(base, envName+".env"),
	} {
		if err := loadEnvFile(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if !ok {
			continue
		}
		if err := os.Setenv(strings.TrimSpace(key), strings.Trim(strings.TrimSpace(value), `"'`)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
