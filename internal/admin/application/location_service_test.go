package application

import (
	"context"
	"testing"

	admindomain "github.com/sngm3741/holiday-lights/api/internal/admin/domain"
	"github.com/sngm3741/holiday-lights/api/internal/apperror"
)

func strPtr(v string) *string { return &v }

func TestLocationService_Update(t *testing.T) {
	repo := newFakeLocationRepo(admindomain.Location{ID: "loc-1", Status: admindomain.LocationFlagged})
	svc := NewLocationService(repo, newFakePhotoStore(), &fakeEngagementCleaner{}, nil)
	ctx := context.Background()

	tags := []string{"reindeer figures", "white reindeer figures"}
	loc, err := svc.Update(ctx, "loc-1", UpdateLocationCommand{
		Status:      strPtr("active"),
		Description: strPtr("  Reviewed and restored  "),
		Decorations: &tags,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if loc.Status != admindomain.LocationActive || loc.Description != "Reviewed and restored" {
		t.Errorf("loc = %+v", loc)
	}
	if len(loc.Decorations) != 1 {
		t.Errorf("Decorations = %v", loc.Decorations)
	}

	if _, err := svc.Update(ctx, "loc-1", UpdateLocationCommand{Status: strPtr("archived")}); !apperror.Is(err, apperror.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Update(ctx, "nope", UpdateLocationCommand{}); !apperror.Is(err, apperror.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLocationService_SoftDelete(t *testing.T) {
	repo := newFakeLocationRepo(admindomain.Location{ID: "loc-1", Status: admindomain.LocationActive})
	svc := NewLocationService(repo, newFakePhotoStore(), &fakeEngagementCleaner{}, nil)

	if err := svc.SoftDelete(context.Background(), "loc-1"); err != nil {
		t.Fatal(err)
	}
	loc, ok := repo.get("loc-1")
	if !ok || loc.Status != admindomain.LocationInactive {
		t.Fatalf("loc = %+v, exists = %v", loc, ok)
	}
}

func TestLocationService_HardDelete(t *testing.T) {
	repo := newFakeLocationRepo(admindomain.Location{ID: "loc-1", Status: admindomain.LocationActive})
	photos := newFakePhotoStore("published/loc-1/a.jpg", "published/loc-1/b.jpg", "published/loc-2/c.jpg")
	cleaner := &fakeEngagementCleaner{}
	svc := NewLocationService(repo, photos, cleaner, nil)

	if err := svc.HardDelete(context.Background(), "loc-1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := repo.get("loc-1"); ok {
		t.Fatal("location must be removed")
	}
	if photos.countPrefix("published/loc-1/") != 0 || !photos.has("published/loc-2/c.jpg") {
		t.Fatal("only the location's published photos must be removed")
	}
	if len(cleaner.deleted) != 1 || cleaner.deleted[0] != "loc-1" {
		t.Fatalf("engagement cleanup = %v", cleaner.deleted)
	}
}
