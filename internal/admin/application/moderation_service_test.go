package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	admindomain "github.com/sngm3741/holiday-lights/api/internal/admin/domain"
	"github.com/sngm3741/holiday-lights/api/internal/apperror"
)

var fixedNow = time.Date(2025, 12, 5, 20, 0, 0, 0, time.UTC)

func pendingEntry() admindomain.Submission {
	return admindomain.Submission{
		ID:             "sub-1",
		Type:           admindomain.SubmissionNewLocation,
		Status:         admindomain.SubmissionPending,
		Address:        "314 Magnolia St",
		Description:    "Huge synchronized light show with music",
		Photos:         []string{"staging/user-1/a.jpg", "staging/user-1/b.jpg"},
		SubmittedBy:    "user-1",
		DetectedTags:   []string{"snowman figures", "inflatable snowmen"},
		AIDescription:  "Bright yard",
		DisplayQuality: admindomain.QualityImpressive,
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type moderationFixture struct {
	clock     *testClock
	subs      *fakeSubmissionRepo
	locations *fakeLocationRepo
	photos    *fakePhotoStore
	svc       ModerationService
}

func newModerationFixture(sub admindomain.Submission, locs ...admindomain.Location) *moderationFixture {
	f := &moderationFixture{
		clock:     &testClock{now: fixedNow},
		subs:      newFakeSubmissionRepo(sub),
		locations: newFakeLocationRepo(locs...),
		photos:    newFakePhotoStore(sub.Photos...),
	}
	f.subs.now = f.clock.Now
	f.svc = NewModerationService(ModerationServiceDeps{
		Submissions: f.subs,
		Locations:   f.locations,
		Photos:      f.photos,
		ClaimTTL:    time.Minute,
		Now:         f.clock.Now,
	})
	return f
}

func errorCode(err error) string {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func TestModerationService_ApproveNewLocation(t *testing.T) {
	f := newModerationFixture(pendingEntry())

	result, err := f.svc.Approve(context.Background(), ApproveCommand{SubmissionID: "sub-1", ModeratorID: "mod-1"})
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if result.LocationID != admindomain.DeriveLocationID("sub-1") || result.PhotosMoved != 2 {
		t.Fatalf("result = %+v", result)
	}

	loc, ok := f.locations.get(result.LocationID)
	if !ok {
		t.Fatal("location not created")
	}
	if len(loc.Photos) != 2 || loc.Photos[0] != "published/"+result.LocationID+"/a.jpg" {
		t.Errorf("Photos = %v", loc.Photos)
	}
	if len(loc.Decorations) != 1 || loc.Decorations[0] != "inflatable snowmen" {
		t.Errorf("Decorations = %v", loc.Decorations)
	}
	if loc.AIDescription != "Bright yard" || loc.DisplayQuality != admindomain.QualityImpressive {
		t.Errorf("AI fields not copied: %+v", loc)
	}
	if f.photos.countPrefix("staging/") != 0 {
		t.Error("staged photos should be removed after move")
	}

	sub := f.subs.get("sub-1")
	if sub.Status != admindomain.SubmissionApproved || sub.ReviewedBy != "mod-1" || sub.ReviewedAt == nil {
		t.Errorf("submission not finalized: %+v", sub)
	}
	if sub.LocationID != result.LocationID || sub.ReviewClaim != nil {
		t.Errorf("LocationID/ReviewClaim = %q/%v", sub.LocationID, sub.ReviewClaim)
	}
}

func TestModerationService_ApproveTwiceConflicts(t *testing.T) {
	f := newModerationFixture(pendingEntry())
	ctx := context.Background()

	if _, err := f.svc.Approve(ctx, ApproveCommand{SubmissionID: "sub-1", ModeratorID: "mod-1"}); err != nil {
		t.Fatal(err)
	}
	copies := f.photos.copies

	_, err := f.svc.Approve(ctx, ApproveCommand{SubmissionID: "sub-1", ModeratorID: "mod-2"})
	if !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if f.locations.inserts != 1 {
		t.Fatalf("locations inserted = %d, want 1", f.locations.inserts)
	}
	if f.photos.copies != copies {
		t.Fatal("second approval must not move photos again")
	}
}

func TestModerationService_ConcurrentApprovalsCreateOneLocation(t *testing.T) {
	f := newModerationFixture(pendingEntry())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, moderator := range []string{"mod-1", "mod-2"} {
		wg.Add(1)
		go func(i int, moderator string) {
			defer wg.Done()
			_, errs[i] = f.svc.Approve(context.Background(), ApproveCommand{SubmissionID: "sub-1", ModeratorID: moderator})
		}(i, moderator)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !apperror.Is(err, apperror.KindConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || f.locations.inserts != 1 {
		t.Fatalf("succeeded = %d, inserts = %d", succeeded, f.locations.inserts)
	}
}

func TestModerationService_ApproveToleratesPartialPhotoFailure(t *testing.T) {
	f := newModerationFixture(pendingEntry())
	f.photos.failCopy["staging/user-1/a.jpg"] = true

	result, err := f.svc.Approve(context.Background(), ApproveCommand{SubmissionID: "sub-1", ModeratorID: "mod-1"})
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if result.PhotosMoved != 1 || result.PhotosFailed != 1 {
		t.Fatalf("moved/failed = %d/%d", result.PhotosMoved, result.PhotosFailed)
	}
	loc, _ := f.locations.get(result.LocationID)
	if len(loc.Photos) != 1 || loc.Photos[0] != "published/"+result.LocationID+"/b.jpg" {
		t.Fatalf("Photos = %v", loc.Photos)
	}
	if f.subs.get("sub-1").Status != admindomain.SubmissionApproved {
		t.Fatal("submission must still be approved")
	}
}

func TestModerationService_ApproveRetryAfterInterruptedRun(t *testing.T) {
	sub := pendingEntry()
	existing := admindomain.NewLocationFromSubmission(sub, []string{"published/x/a.jpg"}, fixedNow)
	f := newModerationFixture(sub, existing)

	result, err := f.svc.Approve(context.Background(), ApproveCommand{SubmissionID: "sub-1", ModeratorID: "mod-1"})
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if result.LocationID != existing.ID || f.locations.inserts != 0 {
		t.Fatalf("result = %+v, inserts = %d", result, f.locations.inserts)
	}
	if f.subs.get("sub-1").Status != admindomain.SubmissionApproved {
		t.Fatal("submission must be approved")
	}
}

func TestModerationService_ClaimedByAnotherModerator(t *testing.T) {
	sub := pendingEntry()
	sub.ReviewClaim = &admindomain.ReviewClaim{By: "mod-1", ExpiresAt: fixedNow.Add(time.Minute)}
	f := newModerationFixture(sub)

	_, err := f.svc.Approve(context.Background(), ApproveCommand{SubmissionID: "sub-1", ModeratorID: "mod-2"})
	if !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	sub.ReviewClaim.ExpiresAt = fixedNow.Add(-time.Minute)
	f = newModerationFixture(sub)
	if _, err := f.svc.Approve(context.Background(), ApproveCommand{SubmissionID: "sub-1", ModeratorID: "mod-2"}); err != nil {
		t.Fatalf("expired claim should be taken over: %v", err)
	}
}

func TestModerationService_ApprovePhotoUpdate(t *testing.T) {
	sub := admindomain.Submission{
		ID:               "sub-2",
		Type:             admindomain.SubmissionPhotoUpdate,
		Status:           admindomain.SubmissionPending,
		Photos:           []string{"staging/user-1/p.jpg"},
		TargetLocationID: "loc-1",
		DetectedTags:     []string{"inflatable snowmen"},
		AIDescription:    "A longer and better description",
		DisplayQuality:   admindomain.QualityModerate,
	}
	loc := admindomain.Location{ID: "loc-1", Status: admindomain.LocationActive, Decorations: []string{"snowman figures"}, DisplayQuality: admindomain.QualityImpressive}
	f := newModerationFixture(sub, loc)

	result, err := f.svc.Approve(context.Background(), ApproveCommand{SubmissionID: "sub-2", ModeratorID: "mod-1"})
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if result.LocationID != "loc-1" || f.locations.inserts != 0 {
		t.Fatalf("photo update must not create a location: %+v", result)
	}
	updated, _ := f.locations.get("loc-1")
	if len(updated.Photos) != 1 || updated.Photos[0] != "published/loc-1/p.jpg" {
		t.Errorf("Photos = %v", updated.Photos)
	}
	if len(updated.Decorations) != 1 || updated.Decorations[0] != "inflatable snowmen" {
		t.Errorf("Decorations = %v", updated.Decorations)
	}
	if updated.DisplayQuality != admindomain.QualityImpressive || updated.AIDescription != "A longer and better description" {
		t.Errorf("AI fields = %q/%q", updated.DisplayQuality, updated.AIDescription)
	}
}

func TestModerationService_ApprovePhotoUpdateTargetHasPhotos(t *testing.T) {
	sub := admindomain.Submission{
		ID:               "sub-2",
		Type:             admindomain.SubmissionPhotoUpdate,
		Status:           admindomain.SubmissionPending,
		Photos:           []string{"staging/user-1/p.jpg"},
		TargetLocationID: "loc-1",
	}
	loc := admindomain.Location{ID: "loc-1", Photos: []string{"published/loc-1/old.jpg"}}
	f := newModerationFixture(sub, loc)

	_, err := f.svc.Approve(context.Background(), ApproveCommand{SubmissionID: "sub-2", ModeratorID: "mod-1"})
	if !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if f.subs.get("sub-2").Status != admindomain.SubmissionPending {
		t.Fatal("submission must stay pending")
	}
	if !f.photos.has("staging/user-1/p.jpg") {
		t.Fatal("staged photo must be kept")
	}
}

func TestModerationService_RejectDeletesStagedPhotos(t *testing.T) {
	f := newModerationFixture(pendingEntry())

	sub, err := f.svc.Reject(context.Background(), RejectCommand{SubmissionID: "sub-1", ModeratorID: "mod-1", Reason: " Not a holiday display "})
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if sub.Status != admindomain.SubmissionRejected || sub.RejectionReason != "Not a holiday display" {
		t.Fatalf("submission = %+v", sub)
	}
	if f.photos.countPrefix("staging/") != 0 {
		t.Fatal("staged photos must be deleted")
	}
	if f.photos.countPrefix("published/") != 0 || f.locations.inserts != 0 {
		t.Fatal("reject must not touch the published area")
	}

	if _, err := f.svc.Reject(context.Background(), RejectCommand{SubmissionID: "sub-1", ModeratorID: "mod-1", Reason: "again"}); !apperror.Is(err, apperror.KindConflict) {
		t.Fatalf("second reject: expected conflict, got %v", err)
	}
}

func TestModerationService_RejectRequiresReason(t *testing.T) {
	f := newModerationFixture(pendingEntry())
	_, err := f.svc.Reject(context.Background(), RejectCommand{SubmissionID: "sub-1", ModeratorID: "mod-1"})
	if !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestModerationService_UnknownSubmission(t *testing.T) {
	f := newModerationFixture(pendingEntry())
	_, err := f.svc.Approve(context.Background(), ApproveCommand{SubmissionID: "nope", ModeratorID: "mod-1"})
	if !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestModerationService_ApproveRetryAfterFailedInsert(t *testing.T) {
	f := newModerationFixture(pendingEntry())
	f.locations.failInserts = 1
	ctx := context.Background()

	if _, err := f.svc.Approve(ctx, ApproveCommand{SubmissionID: "sub-1", ModeratorID: "mod-1"}); !apperror.Is(err, apperror.KindDependency) {
		t.Fatalf("first Approve: expected dependency error, got %v", err)
	}
	sub := f.subs.get("sub-1")
	if sub.Status != admindomain.SubmissionPending || sub.ReviewClaim != nil {
		t.Fatalf("after failed insert: status = %s, claim = %+v", sub.Status, sub.ReviewClaim)
	}
	if f.photos.countPrefix("staging/") != 2 {
		t.Fatal("staged photos must survive a failed insert")
	}

	result, err := f.svc.Approve(ctx, ApproveCommand{SubmissionID: "sub-1", ModeratorID: "mod-1"})
	if err != nil {
		t.Fatalf("retry Approve() error = %v", err)
	}
	if result.PhotosMoved != 2 || result.PhotosFailed != 0 {
		t.Fatalf("moved/failed = %d/%d", result.PhotosMoved, result.PhotosFailed)
	}
	loc, ok := f.locations.get(result.LocationID)
	if !ok || len(loc.Photos) != 2 {
		t.Fatalf("location photos = %v", loc.Photos)
	}
	if f.photos.countPrefix("staging/") != 0 || f.photos.countPrefix("published/") != 2 {
		t.Fatalf("staging = %d, published = %d", f.photos.countPrefix("staging/"), f.photos.countPrefix("published/"))
	}
}

func TestModerationService_ApproveRetryAfterFailedFinalize(t *testing.T) {
	f := newModerationFixture(pendingEntry())
	f.subs.failFinalize = 1
	ctx := context.Background()

	if _, err := f.svc.Approve(ctx, ApproveCommand{SubmissionID: "sub-1", ModeratorID: "mod-1"}); !apperror.Is(err, apperror.KindDependency) {
		t.Fatalf("first Approve: expected dependency error, got %v", err)
	}
	if f.photos.countPrefix("staging/") != 0 {
		t.Fatal("staging is cleaned once the location is written")
	}

	result, err := f.svc.Approve(ctx, ApproveCommand{SubmissionID: "sub-1", ModeratorID: "mod-2"})
	if err != nil {
		t.Fatalf("retry Approve() error = %v", err)
	}
	if result.PhotosMoved != 2 || result.PhotosFailed != 0 {
		t.Fatalf("already published photos should count as moved: %d/%d", result.PhotosMoved, result.PhotosFailed)
	}
	loc, _ := f.locations.get(result.LocationID)
	if f.locations.inserts != 1 || len(loc.Photos) != 2 {
		t.Fatalf("inserts = %d, photos = %v", f.locations.inserts, loc.Photos)
	}
	if got := f.subs.get("sub-1"); got.Status != admindomain.SubmissionApproved || got.ReviewedBy != "mod-2" {
		t.Fatalf("submission = %+v", got)
	}
}

func TestModerationService_PhotoUpdateRetryAfterFailedBackfill(t *testing.T) {
	sub := admindomain.Submission{
		ID:               "sub-2",
		Type:             admindomain.SubmissionPhotoUpdate,
		Status:           admindomain.SubmissionPending,
		Photos:           []string{"staging/user-1/p.jpg", "staging/user-1/q.jpg"},
		TargetLocationID: "loc-1",
	}
	f := newModerationFixture(sub, admindomain.Location{ID: "loc-1", Status: admindomain.LocationActive})
	f.locations.failBackfills = 1
	ctx := context.Background()

	if _, err := f.svc.Approve(ctx, ApproveCommand{SubmissionID: "sub-2", ModeratorID: "mod-1"}); !apperror.Is(err, apperror.KindDependency) {
		t.Fatalf("first Approve: expected dependency error, got %v", err)
	}
	if f.photos.countPrefix("staging/") != 2 {
		t.Fatal("staged photos must survive a failed backfill")
	}

	if _, err := f.svc.Approve(ctx, ApproveCommand{SubmissionID: "sub-2", ModeratorID: "mod-1"}); err != nil {
		t.Fatalf("retry Approve() error = %v", err)
	}
	loc, _ := f.locations.get("loc-1")
	if len(loc.Photos) != 2 || loc.PhotoSubmissionID != "sub-2" {
		t.Fatalf("location = %+v", loc)
	}
	if f.photos.countPrefix("staging/") != 0 {
		t.Fatal("staged photos should be removed after the backfill")
	}
}

func TestModerationService_SameModeratorCannotReenterClaim(t *testing.T) {
	sub := pendingEntry()
	sub.ReviewClaim = &admindomain.ReviewClaim{By: "mod-1", Token: "other-tab", ExpiresAt: fixedNow.Add(time.Minute)}
	f := newModerationFixture(sub)

	_, err := f.svc.Approve(context.Background(), ApproveCommand{SubmissionID: "sub-1", ModeratorID: "mod-1"})
	if code := errorCode(err); code != "SUBMISSION_IN_REVIEW" {
		t.Fatalf("code = %q (%v), want SUBMISSION_IN_REVIEW", code, err)
	}
	if f.photos.copies != 0 {
		t.Fatal("photos must not be touched without the claim")
	}
	if got := f.subs.get("sub-1").ReviewClaim; got == nil || got.Token != "other-tab" {
		t.Fatalf("existing claim must be kept: %+v", got)
	}
}

func TestModerationService_ConcurrentApprovalsBySameModerator(t *testing.T) {
	f := newModerationFixture(pendingEntry())
	entered := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once
	f.photos.onCopy = func(string) {
		once.Do(func() {
			close(entered)
			<-proceed
		})
	}

	type outcome struct {
		result *ApproveResult
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		result, err := f.svc.Approve(context.Background(), ApproveCommand{SubmissionID: "sub-1", ModeratorID: "mod-1"})
		first <- outcome{result, err}
	}()

	<-entered
	_, err := f.svc.Approve(context.Background(), ApproveCommand{SubmissionID: "sub-1", ModeratorID: "mod-1"})
	close(proceed)
	if code := errorCode(err); code != "SUBMISSION_IN_REVIEW" {
		t.Fatalf("second request code = %q (%v), want SUBMISSION_IN_REVIEW", code, err)
	}

	got := <-first
	if got.err != nil {
		t.Fatalf("first request error = %v", got.err)
	}
	loc, _ := f.locations.get(got.result.LocationID)
	if len(loc.Photos) != 2 || f.photos.countPrefix("published/") != 2 {
		t.Fatalf("location photos = %v, published = %d", loc.Photos, f.photos.countPrefix("published/"))
	}
}

func TestModerationService_ExpiredHolderLosesToReject(t *testing.T) {
	f := newModerationFixture(pendingEntry())
	ctx := context.Background()
	var rejectErr error
	f.photos.onCopy = func(src string) {
		if src != "staging/user-1/b.jpg" {
			return
		}
		// mod-1 の claim が切れた後に mod-2 が却下する。
		f.clock.Advance(2 * time.Minute)
		_, rejectErr = f.svc.Reject(ctx, RejectCommand{SubmissionID: "sub-1", ModeratorID: "mod-2", Reason: "Duplicate of an existing entry"})
	}

	_, err := f.svc.Approve(ctx, ApproveCommand{SubmissionID: "sub-1", ModeratorID: "mod-1"})
	if rejectErr != nil {
		t.Fatalf("Reject() error = %v", rejectErr)
	}
	if code := errorCode(err); code != "REVIEW_CLAIM_LOST" {
		t.Fatalf("code = %q (%v), want REVIEW_CLAIM_LOST", code, err)
	}
	if f.locations.inserts != 0 {
		t.Fatal("a location must not be created for a rejected submission")
	}
	if n := f.photos.countPrefix("published/"); n != 0 {
		t.Fatalf("published copies left behind: %d", n)
	}
	if got := f.subs.get("sub-1"); got.Status != admindomain.SubmissionRejected || got.ReviewedBy != "mod-2" {
		t.Fatalf("submission = %+v", got)
	}
}

func TestModerationService_RejectKeepsPhotosWhenFinalizeFails(t *testing.T) {
	f := newModerationFixture(pendingEntry())
	f.subs.failFinalize = 1

	_, err := f.svc.Reject(context.Background(), RejectCommand{SubmissionID: "sub-1", ModeratorID: "mod-1", Reason: "blurry"})
	if !apperror.Is(err, apperror.KindDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if f.photos.countPrefix("staging/") != 2 {
		t.Fatal("staged photos must be kept until the rejection is recorded")
	}
	if got := f.subs.get("sub-1"); got.Status != admindomain.SubmissionPending || got.ReviewClaim != nil {
		t.Fatalf("submission = %+v", got)
	}
}

func TestModerationService_Edit(t *testing.T) {
	f := newModerationFixture(pendingEntry())
	description := "  Corrected description  "
	quality := "Spectacular"
	tags := []string{"projection lights", "Projection Lights", "inflatable snowmen"}

	sub, err := f.svc.Edit(context.Background(), EditSubmissionCommand{
		SubmissionID:   "sub-1",
		Description:    &description,
		DetectedTags:   &tags,
		DisplayQuality: &quality,
	})
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if sub.Description != "Corrected description" || sub.DisplayQuality != admindomain.QualitySpectacular {
		t.Errorf("submission = %+v", sub)
	}
	if len(sub.DetectedTags) != 2 {
		t.Errorf("DetectedTags = %v", sub.DetectedTags)
	}
	stored := f.subs.get("sub-1")
	if stored.Version != 1 || stored.AIDescription != "Bright yard" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestModerationService_EditRejectsInvalidInput(t *testing.T) {
	f := newModerationFixture(pendingEntry())
	quality := "dazzling"
	cases := []struct {
		name string
		cmd  EditSubmissionCommand
	}{
		{"no fields", EditSubmissionCommand{SubmissionID: "sub-1"}},
		{"bad quality", EditSubmissionCommand{SubmissionID: "sub-1", DisplayQuality: &quality}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Edit(context.Background(), tc.cmd); !apperror.Is(err, apperror.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestModerationService_EditGuards(t *testing.T) {
	description := "new"

	claimed := pendingEntry()
	claimed.ReviewClaim = &admindomain.ReviewClaim{By: "mod-1", Token: "t", ExpiresAt: fixedNow.Add(time.Minute)}
	f := newModerationFixture(claimed)
	_, err := f.svc.Edit(context.Background(), EditSubmissionCommand{SubmissionID: "sub-1", Description: &description})
	if code := errorCode(err); code != "SUBMISSION_IN_REVIEW" {
		t.Fatalf("claimed: code = %q (%v)", code, err)
	}

	approved := pendingEntry()
	approved.Status = admindomain.SubmissionApproved
	f = newModerationFixture(approved)
	_, err = f.svc.Edit(context.Background(), EditSubmissionCommand{SubmissionID: "sub-1", Description: &description})
	if code := errorCode(err); code != "SUBMISSION_NOT_PENDING" {
		t.Fatalf("approved: code = %q (%v)", code, err)
	}
}
