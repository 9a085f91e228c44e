package application

import (
	"context"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
	"github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

// DuplicateDetector は公開済みロケーションと審査待ち投稿の両方から重複を探す。
type DuplicateDetector struct {
	locations   LocationRepository
	submissions SubmissionRepository
}

func NewDuplicateDetector(locations LocationRepository, submissions SubmissionRepository) *DuplicateDetector {
	return &DuplicateDetector{locations: locations, submissions: submissions}
}

// Check は座標（4桁丸め）と正規化住所のどちらか一方でも一致すれば重複とみなす。
// 公開済みロケーションとの一致を優先する。
func (d *DuplicateDetector) Check(ctx context.Context, coords domain.Coordinates, address string) (domain.DuplicateResult, error) {
	geo := domain.NewGeoKey(coords)
	addressKey := domain.NormalizeAddress(address)

	loc, err := d.locations.FindDuplicate(ctx, geo, addressKey)
	if err != nil {
		return domain.DuplicateResult{}, apperror.Dependency("find duplicate location", err)
	}
	if loc != nil {
		return domain.DuplicateResult{Kind: domain.DuplicateLocation, Location: loc}, nil
	}

	sub, err := d.submissions.FindPendingDuplicate(ctx, geo, addressKey)
	if err != nil {
		return domain.DuplicateResult{}, apperror.Dependency("find duplicate submission", err)
	}
	if sub != nil {
		return domain.DuplicateResult{Kind: domain.DuplicatePending, SubmissionID: sub.ID}, nil
	}
	return domain.DuplicateResult{Kind: domain.DuplicateNone}, nil
}
