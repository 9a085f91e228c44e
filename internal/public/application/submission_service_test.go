package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

func floatPtr(v float64) *float64 { return &v }

type submissionFixture struct {
	store    *memStore
	notifier *recordingNotifier
	queue    *recordingQueue
	svc      SubmissionService
}

func newSubmissionFixture() *submissionFixture {
	store := newMemStore()
	f := &submissionFixture{store: store, notifier: &recordingNotifier{}, queue: &recordingQueue{}}
	seq := 0
	f.svc = NewSubmissionService(SubmissionServiceDeps{
		Submissions: fakeSubmissions{store},
		Locations:   fakeLocations{store},
		Notifier:    f.notifier,
		Analysis:    f.queue,
		Now:         func() time.Time { return time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC) },
		NewID: func() string {
			seq++
			return fmt.Sprintf("sub-%d", seq)
		},
	})
	return f
}

func validEntry() SubmitEntryCommand {
	return SubmitEntryCommand{
		UserID:      "user-1",
		UserName:    "Holly",
		Address:     "314 Magnolia St, Dallas TX",
		Lat:         floatPtr(32.77670),
		Lng:         floatPtr(-96.79700),
		Description: "Huge synchronized light show with music",
		Photos:      []string{"staging/user-1/a.jpg", "staging/user-1/b.jpg"},
	}
}

func TestSubmissionService_SubmitEntry_CreatesPendingAndQueuesAnalysis(t *testing.T) {
	f := newSubmissionFixture()

	sub, err := f.svc.SubmitEntry(context.Background(), validEntry())
	if err != nil {
		t.Fatalf("SubmitEntry() error = %v", err)
	}
	if sub.Status != domain.SubmissionPending || sub.Type != domain.SubmissionNewLocation {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if sub.GeoKey != (domain.GeoKey{LatE4: 327767, LngE4: -967970}) {
		t.Fatalf("GeoKey = %+v", sub.GeoKey)
	}
	if sub.AddressKey != "314 magnolia st, dallas tx" {
		t.Fatalf("AddressKey = %q", sub.AddressKey)
	}
	if len(f.notifier.subs) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.notifier.subs))
	}
	if len(f.queue.jobs) != 2 || f.queue.jobs[0].SubmissionID != sub.ID {
		t.Fatalf("jobs = %+v", f.queue.jobs)
	}
}

func TestSubmissionService_SubmitEntry_Validation(t *testing.T) {
	f := newSubmissionFixture()
	cmd := validEntry()
	cmd.Address = "Magnolia Street"
	cmd.Description = "too short"
	cmd.Lat = nil
	cmd.Photos = []string{"staging/someone-else/a.jpg"}

	_, err := f.svc.SubmitEntry(context.Background(), cmd)
	var appErr *apperror.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperror.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"address", "description", "coordinates", "photos"} {
		if _, ok := appErr.Fields[field]; !ok {
			t.Errorf("missing field error for %s: %v", field, appErr.Fields)
		}
	}
}

func TestSubmissionService_SubmitEntry_DuplicateOfLocation(t *testing.T) {
	f := newSubmissionFixture()
	f.store.addLocation(domain.Location{
		ID:          "loc-1",
		Address:     "1 Elsewhere Rd",
		Coordinates: domain.Coordinates{Lat: 32.77669, Lng: -96.79701},
		Status:      domain.LocationActive,
	})

	_, err := f.svc.SubmitEntry(context.Background(), validEntry())
	var appErr *apperror.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperror.KindDuplicate {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	result, ok := appErr.Details.(domain.DuplicateResult)
	if !ok || result.Kind != domain.DuplicateLocation || result.Location.ID != "loc-1" {
		t.Fatalf("Details = %#v", appErr.Details)
	}
}

func TestSubmissionService_SubmitEntry_DuplicateOfPendingByAddress(t *testing.T) {
	f := newSubmissionFixture()
	ctx := context.Background()
	if _, err := f.svc.SubmitEntry(ctx, validEntry()); err != nil {
		t.Fatal(err)
	}

	cmd := validEntry()
	cmd.UserID = "user-2"
	cmd.Photos = nil
	cmd.Address = "  314  MAGNOLIA st, Dallas TX "
	cmd.Lat = floatPtr(40.0)
	cmd.Lng = floatPtr(-100.0)

	_, err := f.svc.SubmitEntry(ctx, cmd)
	var appErr *apperror.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperror.KindDuplicate {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if result := appErr.Details.(domain.DuplicateResult); result.Kind != domain.DuplicatePending || result.SubmissionID != "sub-1" {
		t.Fatalf("Details = %#v", result)
	}
}

func TestSubmissionService_SubmitEntry_NearbyPointIsNotDuplicate(t *testing.T) {
	f := newSubmissionFixture()
	f.store.addLocation(domain.Location{
		ID:          "loc-1",
		Address:     "1 Elsewhere Rd",
		Coordinates: domain.Coordinates{Lat: 32.77770, Lng: -96.79700},
		Status:      domain.LocationActive,
	})

	if _, err := f.svc.SubmitEntry(context.Background(), validEntry()); err != nil {
		t.Fatalf("SubmitEntry() error = %v", err)
	}
}

func TestSubmissionService_SubmitPhotoUpdate(t *testing.T) {
	f := newSubmissionFixture()
	ctx := context.Background()
	f.store.addLocation(domain.Location{ID: "bare", Address: "5 Pine Ln", Status: domain.LocationActive})
	f.store.addLocation(domain.Location{ID: "full", Address: "6 Pine Ln", Status: domain.LocationActive, Photos: []string{"published/full/x.jpg"}})

	cmd := SubmitPhotoUpdateCommand{UserID: "user-1", LocationID: "bare", Photos: []string{"staging/user-1/p.jpg"}}
	sub, err := f.svc.SubmitPhotoUpdate(ctx, cmd)
	if err != nil {
		t.Fatalf("SubmitPhotoUpdate() error = %v", err)
	}
	if sub.TargetLocationID != "bare" || sub.Type != domain.SubmissionPhotoUpdate {
		t.Fatalf("unexpected submission: %+v", sub)
	}

	if _, err := f.svc.SubmitPhotoUpdate(ctx, cmd); !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("second pending update: expected conflict, got %v", err)
	}
	pending, err := f.svc.CheckPendingPhoto(ctx, "user-1", "bare")
	if err != nil || !pending {
		t.Fatalf("CheckPendingPhoto() = %v, %v", pending, err)
	}

	cmd.LocationID = "full"
	if _, err := f.svc.SubmitPhotoUpdate(ctx, cmd); !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("location with photos: expected conflict, got %v", err)
	}
	cmd.LocationID = "missing"
	if _, err := f.svc.SubmitPhotoUpdate(ctx, cmd); !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("missing location: expected not found, got %v", err)
	}
	cmd.LocationID = "bare"
	cmd.Photos = nil
	if _, err := f.svc.SubmitPhotoUpdate(ctx, cmd); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("no photos: expected validation error, got %v", err)
	}
}

func TestSubmissionService_FullQueueDoesNotFailSubmission(t *testing.T) {
	f := newSubmissionFixture()
	f.queue.full = true

	if _, err := f.svc.SubmitEntry(context.Background(), validEntry()); err != nil {
		t.Fatalf("SubmitEntry() error = %v", err)
	}
	mine, err := f.svc.ListMine(context.Background(), "user-1", 0)
	if err != nil || len(mine) != 1 {
		t.Fatalf("ListMine() = %v, %v", mine, err)
	}
}

func TestSubmissionService_CheckDuplicate(t *testing.T) {
	f := newSubmissionFixture()
	f.store.addLocation(domain.Location{ID: "loc-1", Address: "314 Magnolia St", Status: domain.LocationActive})

	result, err := f.svc.CheckDuplicate(context.Background(), CheckDuplicateCommand{
		Address: "314 magnolia st",
		Lat:     floatPtr(10),
		Lng:     floatPtr(10),
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != domain.DuplicateLocation {
		t.Fatalf("Kind = %s, want location", result.Kind)
	}

	if _, err := f.svc.CheckDuplicate(context.Background(), CheckDuplicateCommand{Address: "x"}); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmissionService_StatsAndLeaderboard(t *testing.T) {
	f := newSubmissionFixture()
	seed := []domain.Submission{
		{ID: "s1", SubmittedBy: "user-1", SubmittedByName: "Holly", Status: domain.SubmissionApproved},
		{ID: "s2", SubmittedBy: "user-1", SubmittedByName: "Holly", Status: domain.SubmissionApproved},
		{ID: "s3", SubmittedBy: "user-1", Status: domain.SubmissionRejected},
		{ID: "s4", SubmittedBy: "user-1", Status: domain.SubmissionPending},
		{ID: "s5", SubmittedBy: "user-2", SubmittedByName: "Ivy", Status: domain.SubmissionApproved},
		{ID: "s6", SubmittedBy: "user-3", Status: domain.SubmissionPending},
	}
	for i := range seed {
		f.store.submissions[seed[i].ID] = &seed[i]
	}
	ctx := context.Background()

	stats, err := f.svc.Stats(ctx, "user-1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats != (domain.SubmissionStats{Total: 4, Approved: 2, Pending: 1, Rejected: 1}) {
		t.Fatalf("stats = %+v", stats)
	}

	board, err := f.svc.Leaderboard(ctx, 0)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("board = %+v", board)
	}
	if board[0].UserID != "user-1" || board[0].Rank != 1 || board[0].Approved != 2 || board[0].Badge == nil {
		t.Errorf("first = %+v", board[0])
	}
	if board[1].UserName != "Ivy" || board[1].Rank != 2 {
		t.Errorf("second = %+v", board[1])
	}
}
