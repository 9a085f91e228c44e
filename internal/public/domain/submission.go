package domain

import "time"

// MaxSubmissionPhotos is the photo limit per submission.
const MaxSubmissionPhotos = 3

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

// Submission is the user-facing view of a submission.
type Submission struct {
	ID               string
	Type             SubmissionType
	Status           SubmissionStatus
	Address          string
	Coordinates      Coordinates
	GeoKey           GeoKey
	AddressKey       string
	Description      string
	Photos           []string
	TargetLocationID string
	SubmittedBy      string
	SubmittedByName  string
	LocationID       string
	RejectionReason  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
