package domain

import (
	"fmt"
	"time"

	"github.com/sngm3741/holiday-lights/api/internal/apperror"
)

// SubmissionType distinguishes new entries from photo backfills.
type SubmissionType string

const (
	SubmissionNewLocation SubmissionType = "new_location"
	SubmissionPhotoUpdate SubmissionType = "photo_update"
)

// SubmissionStatus is the moderation state.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// validTransitions は許可される状態遷移の一覧。approved / rejected は終端。
var validTransitions = map[SubmissionStatus][]SubmissionStatus{
	SubmissionPending: {SubmissionApproved, SubmissionRejected},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to SubmissionStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64
	Lng float64
}

// ReviewClaim は審査者が一時的に保持する処理権。期限切れは誰でも再取得できる。
// Token は取得ごとに発行され、同じ審査者の別リクエストとも区別する。
type ReviewClaim struct {
	By        string
	Token     string
	ExpiresAt time.Time
}

// HeldBy reports whether the claim is still owned by token at now.
func (c *ReviewClaim) HeldBy(token string, now time.Time) bool {
	return c != nil && c.Token == token && c.ExpiresAt.After(now)
}

// Submission aggregates data required for moderation.
type Submission struct {
	ID               string
	Type             SubmissionType
	Status           SubmissionStatus
	Address          string
	Coordinates      Coordinates
	Description      string
	Photos           []string
	TargetLocationID string
	SubmittedBy      string
	SubmittedByName  string
	DetectedTags     []string
	AIDescription    string
	DisplayQuality   DisplayQuality
	FlaggedForReview bool
	Version          int64
	ReviewClaim      *ReviewClaim
	ReviewedBy       string
	ReviewedAt       *time.Time
	RejectionReason  string
	LocationID       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CheckTransition は to への遷移が可能かを検証し、不可なら ConflictError を返す。
func (s Submission) CheckTransition(to SubmissionStatus) error {
	if CanTransition(s.Status, to) {
		return nil
	}
	return apperror.Conflict("SUBMISSION_NOT_PENDING", fmt.Sprintf("submission %s is already %s", s.ID, s.Status))
}
