package domain

import (
	"time"

	"github.com/google/uuid"
)

// locationNamespace は投稿IDからロケーションIDを導出するための UUIDv5 名前空間。
var locationNamespace = uuid.MustParse("6c0d8a4e-3f1b-5b7e-9a52-7d4f2e8c1b90")

// DeriveLocationID は投稿IDから決定的にロケーションIDを導出する。
// 承認が途中で失敗して再実行されても、同じロケーションが二重に作られない。
func DeriveLocationID(submissionID string) string {
	return uuid.NewSHA1(locationNamespace, []byte(submissionID)).String()
}

// Location is the moderation-side write model of a published display.
type Location struct {
	ID                string
	Address           string
	Coordinates       Coordinates
	Description       string
	Photos            []string
	Decorations       []string
	AIDescription     string
	DisplayQuality    DisplayQuality
	Status            LocationStatus
	LikeCount         int
	ReportCount       int
	CreatedBy         string
	CreatedByName     string
	SubmissionID      string
	// PhotoSubmissionID は写真を補完した photo_update 投稿のID。
	PhotoSubmissionID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewLocationFromSubmission は承認された new_location 投稿から公開ロケーションを組み立てる。
// カウンタはすべて 0 から始まる。
func NewLocationFromSubmission(sub Submission, photos []string, now time.Time) Location {
	return Location{
		ID:             DeriveLocationID(sub.ID),
		Address:        sub.Address,
		Coordinates:    sub.Coordinates,
		Description:    sub.Description,
		Photos:         append([]string{}, photos...),
		Decorations:    MergeTags(nil, sub.DetectedTags),
		AIDescription:  sub.AIDescription,
		DisplayQuality: sub.DisplayQuality,
		Status:         LocationActive,
		CreatedBy:      sub.SubmittedBy,
		CreatedByName:  sub.SubmittedByName,
		SubmissionID:   sub.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// PhotoBackfill は photo_update 承認時に既存ロケーションへ反映する差分。
type PhotoBackfill struct {
	SubmissionID   string
	Photos         []string
	Decorations    []string
	AIDescription  string
	DisplayQuality DisplayQuality
}

// BuildPhotoBackfill は写真の無いロケーションに対し、投稿の写真と解析結果をマージした差分を作る。
// 説明文と品質はロケーション側に値が無いか、投稿側が上回る場合だけ採用する。
func BuildPhotoBackfill(loc Location, sub Submission, photos []string) PhotoBackfill {
	fill := PhotoBackfill{
		SubmissionID:   sub.ID,
		Photos:         append([]string{}, photos...),
		Decorations:    MergeTags(loc.Decorations, sub.DetectedTags),
		AIDescription:  loc.AIDescription,
		DisplayQuality: loc.DisplayQuality,
	}
	if sub.AIDescription != "" && len(sub.AIDescription) > len(loc.AIDescription) {
		fill.AIDescription = sub.AIDescription
	}
	if sub.DisplayQuality.Rank() > loc.DisplayQuality.Rank() {
		fill.DisplayQuality = sub.DisplayQuality
	}
	return fill
}
