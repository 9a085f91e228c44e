package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

func newTestEngagementService(store *memStore) EngagementService {
	return NewEngagementService(EngagementServiceDeps{
		Engagements:         fakeEngagements{store},
		Counters:            fakeCounters{store},
		Locations:           fakeLocations{store},
		Routes:              fakeRoutes{store},
		ReportFlagThreshold: 2,
		Now:                 func() time.Time { return time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC) },
	})
}

func seedLocation(store *memStore, id string) domain.Target {
	store.addLocation(domain.Location{ID: id, Address: "1 Main St", Status: domain.LocationActive})
	return domain.Target{Kind: domain.TargetLocation, ID: id}
}

func TestEngagementService_React_ConcurrentCallsCountOnce(t *testing.T) {
	store := newMemStore()
	target := seedLocation(store, "loc-1")
	svc := newTestEngagementService(store)

	const callers = 16
	results := make([]domain.ReactResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.React(context.Background(), "user-1", domain.EngagementLike, target)
			if err != nil {
				t.Errorf("React() error = %v", err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	if got := (fakeEngagements{store}).count(); got != 1 {
		t.Fatalf("engagement records = %d, want 1", got)
	}
	if got := store.location("loc-1").LikeCount; got != 1 {
		t.Fatalf("likeCount = %d, want 1", got)
	}
	created := 0
	for _, res := range results {
		if res.State != domain.StatePresent {
			t.Errorf("State = %s, want present", res.State)
		}
		if !res.AlreadyExisted {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("fresh creations = %d, want 1", created)
	}
}

func TestEngagementService_ReactUnReactReact_RestoresCounter(t *testing.T) {
	store := newMemStore()
	target := seedLocation(store, "loc-1")
	svc := newTestEngagementService(store)
	ctx := context.Background()

	if _, err := svc.React(ctx, "user-1", domain.EngagementFavorite, target); err != nil {
		t.Fatal(err)
	}
	afterFirst := store.location("loc-1").SaveCount

	res, err := svc.UnReact(ctx, "user-1", domain.EngagementFavorite, target)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != domain.StateAbsent {
		t.Fatalf("State = %s, want absent", res.State)
	}
	if got := store.location("loc-1").SaveCount; got != 0 {
		t.Fatalf("saveCount after unReact = %d, want 0", got)
	}

	if _, err := svc.React(ctx, "user-1", domain.EngagementFavorite, target); err != nil {
		t.Fatal(err)
	}
	if got := store.location("loc-1").SaveCount; got != afterFirst {
		t.Fatalf("saveCount = %d, want %d", got, afterFirst)
	}
}

func TestEngagementService_UnReact_NeverGoesNegative(t *testing.T) {
	store := newMemStore()
	target := seedLocation(store, "loc-1")
	svc := newTestEngagementService(store)
	ctx := context.Background()

	if _, err := svc.React(ctx, "user-1", domain.EngagementLike, target); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		res, err := svc.UnReact(ctx, "user-1", domain.EngagementLike, target)
		if err != nil {
			t.Fatalf("UnReact() error = %v", err)
		}
		if res.State != domain.StateAbsent {
			t.Fatalf("State = %s", res.State)
		}
	}
	if got := store.location("loc-1").LikeCount; got != 0 {
		t.Fatalf("likeCount = %d, want 0", got)
	}
}

func TestEngagementService_React_RejectsUnsupportedType(t *testing.T) {
	store := newMemStore()
	target := seedLocation(store, "loc-1")
	svc := newTestEngagementService(store)

	_, err := svc.React(context.Background(), "user-1", domain.EngagementSave, target)
	if !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEngagementService_React_MissingOrInactiveTarget(t *testing.T) {
	store := newMemStore()
	store.addLocation(domain.Location{ID: "gone", Status: domain.LocationInactive})
	svc := newTestEngagementService(store)
	ctx := context.Background()

	for _, id := range []string{"missing", "gone"} {
		_, err := svc.React(ctx, "user-1", domain.EngagementLike, domain.Target{Kind: domain.TargetLocation, ID: id})
		if !apperror.Is(err, apperror.KindNotFound) {
			t.Errorf("%s: expected not found, got %v", id, err)
		}
	}
}

func TestEngagementService_React_PrivateRouteOnlyForOwner(t *testing.T) {
	store := newMemStore()
	store.routes["r1"] = &domain.Route{ID: "r1", CreatedBy: "owner", IsPublic: false, Status: domain.RouteActive}
	svc := newTestEngagementService(store)
	target := domain.Target{Kind: domain.TargetRoute, ID: "r1"}
	ctx := context.Background()

	if _, err := svc.React(ctx, "stranger", domain.EngagementSave, target); !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not found for stranger, got %v", err)
	}
	if _, err := svc.React(ctx, "owner", domain.EngagementSave, target); err != nil {
		t.Fatalf("owner React() error = %v", err)
	}
	if store.routes["r1"].SaveCount != 1 {
		t.Fatalf("saveCount = %d, want 1", store.routes["r1"].SaveCount)
	}
}

func TestEngagementService_React_RollsBackRecordWhenCounterFails(t *testing.T) {
	store := newMemStore()
	target := seedLocation(store, "loc-1")
	store.incrementErr = errStoreDown
	svc := newTestEngagementService(store)

	_, err := svc.React(context.Background(), "user-1", domain.EngagementLike, target)
	if !apperror.Is(err, apperror.KindDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if got := (fakeEngagements{store}).count(); got != 0 {
		t.Fatalf("engagement records = %d, want 0 after rollback", got)
	}
}

func TestEngagementService_Report_IsIdempotentAndFlags(t *testing.T) {
	store := newMemStore()
	seedLocation(store, "loc-1")
	svc := newTestEngagementService(store)
	ctx := context.Background()

	first, err := svc.Report(ctx, ReportCommand{UserID: "u1", LocationID: "loc-1", Reason: "lights are off"})
	if err != nil || first.AlreadyExisted {
		t.Fatalf("first report = %+v, %v", first, err)
	}
	again, err := svc.Report(ctx, ReportCommand{UserID: "u1", LocationID: "loc-1"})
	if err != nil || !again.AlreadyExisted {
		t.Fatalf("repeat report = %+v, %v", again, err)
	}
	loc := store.location("loc-1")
	if loc.ReportCount != 1 || loc.FeedbackCount != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", loc.ReportCount, loc.FeedbackCount)
	}
	if loc.Status != domain.LocationActive {
		t.Fatalf("status = %s, want active below threshold", loc.Status)
	}

	if _, err := svc.Report(ctx, ReportCommand{UserID: "u2", LocationID: "loc-1"}); err != nil {
		t.Fatal(err)
	}
	if got := store.location("loc-1").Status; got != domain.LocationFlagged {
		t.Fatalf("status = %s, want flagged", got)
	}
}

func TestEngagementService_Status(t *testing.T) {
	store := newMemStore()
	target := seedLocation(store, "loc-1")
	svc := newTestEngagementService(store)
	ctx := context.Background()

	if _, err := svc.React(ctx, "user-1", domain.EngagementLike, target); err != nil {
		t.Fatal(err)
	}
	status, err := svc.Status(ctx, "user-1", target)
	if err != nil {
		t.Fatal(err)
	}
	if !status.States[domain.EngagementLike] || status.States[domain.EngagementFavorite] || status.States[domain.EngagementReport] {
		t.Fatalf("States = %v", status.States)
	}
}

func TestEngagementService_Favorites_SkipsInactive(t *testing.T) {
	store := newMemStore()
	svc := newTestEngagementService(store)
	ctx := context.Background()
	a := seedLocation(store, "a")
	b := seedLocation(store, "b")

	if _, err := svc.React(ctx, "user-1", domain.EngagementFavorite, a); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.React(ctx, "user-1", domain.EngagementFavorite, b); err != nil {
		t.Fatal(err)
	}
	store.mu.Lock()
	store.locations["b"].Status = domain.LocationInactive
	store.mu.Unlock()

	favorites, err := svc.Favorites(ctx, "user-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(favorites) != 1 || favorites[0].ID != "a" {
		t.Fatalf("favorites = %+v", favorites)
	}
}

func TestEngagementService_SavedRoutes(t *testing.T) {
	store := newMemStore()
	svc := newTestEngagementService(store)
	ctx := context.Background()
	store.routes["quiet"] = &domain.Route{ID: "quiet", CreatedBy: "other", IsPublic: true, Status: domain.RouteActive, LikeCount: 1}
	store.routes["popular"] = &domain.Route{ID: "popular", CreatedBy: "other", IsPublic: true, Status: domain.RouteActive, LikeCount: 9}
	store.routes["hidden"] = &domain.Route{ID: "hidden", CreatedBy: "other", IsPublic: true, Status: domain.RouteActive}
	store.routes["mine"] = &domain.Route{ID: "mine", CreatedBy: "user-1", Status: domain.RouteActive}

	for _, id := range []string{"quiet", "popular", "hidden", "mine"} {
		if _, err := svc.React(ctx, "user-1", domain.EngagementSave, domain.Target{Kind: domain.TargetRoute, ID: id}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	store.mu.Lock()
	store.routes["hidden"].IsPublic = false
	store.mu.Unlock()

	routes, err := svc.SavedRoutes(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("SavedRoutes() error = %v", err)
	}
	got := make([]string, 0, len(routes))
	for _, r := range routes {
		got = append(got, r.ID)
	}
	if len(got) != 3 || got[0] != "popular" {
		t.Fatalf("saved routes = %v", got)
	}
	for _, id := range got {
		if id == "hidden" {
			t.Fatal("a route made private by someone else must be skipped")
		}
	}

	empty, err := svc.SavedRoutes(ctx, "nobody", 0)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty = %v, %v", empty, err)
	}
}
