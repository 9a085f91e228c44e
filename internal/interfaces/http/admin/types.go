package admin

import (
	"strings"
	"time"

	adminapp "github.com/sngm3741/holiday-lights/api/internal/admin/application"
	admindomain "github.com/sngm3741/holiday-lights/api/internal/admin/domain"
	"github.com/sngm3741/holiday-lights/api/internal/infrastructure/messenger"
)

type coordinatesResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type reviewClaimResponse struct {
	By        string `json:"by"`
	ExpiresAt string `json:"expiresAt"`
}

type submissionResponse struct {
	ID               string               `json:"id"`
	Type             string               `json:"type"`
	Status           string               `json:"status"`
	Address          string               `json:"address,omitempty"`
	Coordinates      coordinatesResponse  `json:"coordinates"`
	Description      string               `json:"description,omitempty"`
	Photos           []string             `json:"photos"`
	TargetLocationID string               `json:"targetLocationId,omitempty"`
	SubmittedBy      string               `json:"submittedBy"`
	SubmittedByName  string               `json:"submittedByName,omitempty"`
	DetectedTags     []string             `json:"detectedTags"`
	AIDescription    string               `json:"aiDescription,omitempty"`
	DisplayQuality   string               `json:"displayQuality,omitempty"`
	FlaggedForReview bool                 `json:"flaggedForReview"`
	ReviewClaim      *reviewClaimResponse `json:"reviewClaim,omitempty"`
	ReviewedBy       string               `json:"reviewedBy,omitempty"`
	ReviewedAt       string               `json:"reviewedAt,omitempty"`
	RejectionReason  string               `json:"rejectionReason,omitempty"`
	LocationID       string               `json:"locationId,omitempty"`
	CreatedAt        string               `json:"createdAt"`
}

type approveResponse struct {
	Submission   submissionResponse `json:"submission"`
	LocationID   string             `json:"locationId"`
	PhotosMoved  int                `json:"photosMoved"`
	PhotosFailed int                `json:"photosFailed"`
}

type locationResponse struct {
	ID                string              `json:"id"`
	Address           string              `json:"address"`
	Coordinates       coordinatesResponse `json:"coordinates"`
	Description       string              `json:"description,omitempty"`
	Photos            []string            `json:"photos"`
	Decorations       []string            `json:"decorations"`
	AIDescription     string              `json:"aiDescription,omitempty"`
	DisplayQuality    string              `json:"displayQuality,omitempty"`
	Status            string              `json:"status"`
	LikeCount         int                 `json:"likeCount"`
	ReportCount       int                 `json:"reportCount"`
	CreatedBy         string              `json:"createdBy"`
	CreatedByName     string              `json:"createdByName,omitempty"`
	SubmissionID      string              `json:"submissionId,omitempty"`
	PhotoSubmissionID string              `json:"photoSubmissionId,omitempty"`
	CreatedAt         string              `json:"createdAt"`
	UpdatedAt         string              `json:"updatedAt,omitempty"`
}

type failedNotificationResponse struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submissionId"`
	Channel      string `json:"channel"`
	Payload      string `json:"payload"`
	Error        string `json:"error"`
	CreatedAt    string `json:"createdAt"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// updateLocationRequest は指定されたフィールドだけを変更する。
type editSubmissionRequest struct {
	Description    *string   `json:"description"`
	AIDescription  *string   `json:"aiDescription"`
	DetectedTags   *[]string `json:"detectedTags"`
	DisplayQuality *string   `json:"displayQuality"`
}

type updateLocationRequest struct {
	Status      *string   `json:"status"`
	Description *string   `json:"description"`
	Decorations *[]string `json:"decorations"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func mediaURL(baseURL, key string) string {
	if strings.Contains(key, "://") {
		return key
	}
	if baseURL == "" {
		baseURL = "/media"
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(key, "/")
}

// buildSubmissionResponse は写真を staging のキーのまま返す。中身は /admin/photos/{key} で取得する。
func buildSubmissionResponse(sub admindomain.Submission) submissionResponse {
	resp := submissionResponse{
		ID:               sub.ID,
		Type:             string(sub.Type),
		Status:           string(sub.Status),
		Address:          sub.Address,
		Coordinates:      coordinatesResponse{Lat: sub.Coordinates.Lat, Lng: sub.Coordinates.Lng},
		Description:      sub.Description,
		Photos:           append([]string{}, sub.Photos...),
		TargetLocationID: sub.TargetLocationID,
		SubmittedBy:      sub.SubmittedBy,
		SubmittedByName:  sub.SubmittedByName,
		DetectedTags:     append([]string{}, sub.DetectedTags...),
		AIDescription:    sub.AIDescription,
		DisplayQuality:   string(sub.DisplayQuality),
		FlaggedForReview: sub.FlaggedForReview,
		ReviewedBy:       sub.ReviewedBy,
		RejectionReason:  sub.RejectionReason,
		LocationID:       sub.LocationID,
		CreatedAt:        formatTime(sub.CreatedAt),
	}
	if sub.ReviewedAt != nil {
		resp.ReviewedAt = formatTime(*sub.ReviewedAt)
	}
	if sub.ReviewClaim != nil {
		resp.ReviewClaim = &reviewClaimResponse{By: sub.ReviewClaim.By, ExpiresAt: formatTime(sub.ReviewClaim.ExpiresAt)}
	}
	return resp
}

func buildApproveResponse(result adminapp.ApproveResult) approveResponse {
	return approveResponse{
		Submission:   buildSubmissionResponse(result.Submission),
		LocationID:   result.LocationID,
		PhotosMoved:  result.PhotosMoved,
		PhotosFailed: result.PhotosFailed,
	}
}

func (h *Handler) buildLocationResponse(loc admindomain.Location) locationResponse {
	photos := make([]string, 0, len(loc.Photos))
	for _, key := range loc.Photos {
		photos = append(photos, mediaURL(h.mediaBaseURL, key))
	}
	return locationResponse{
		ID:                loc.ID,
		Address:           loc.Address,
		Coordinates:       coordinatesResponse{Lat: loc.Coordinates.Lat, Lng: loc.Coordinates.Lng},
		Description:       loc.Description,
		Photos:            photos,
		Decorations:       append([]string{}, loc.Decorations...),
		AIDescription:     loc.AIDescription,
		DisplayQuality:    string(loc.DisplayQuality),
		Status:            string(loc.Status),
		LikeCount:         loc.LikeCount,
		ReportCount:       loc.ReportCount,
		CreatedBy:         loc.CreatedBy,
		CreatedByName:     loc.CreatedByName,
		SubmissionID:      loc.SubmissionID,
		PhotoSubmissionID: loc.PhotoSubmissionID,
		CreatedAt:         formatTime(loc.CreatedAt),
		UpdatedAt:         formatTime(loc.UpdatedAt),
	}
}

func buildFailedNotificationResponse(f messenger.Failure) failedNotificationResponse {
	return failedNotificationResponse{
		ID:           f.ID,
		SubmissionID: f.SubmissionID,
		Channel:      f.Channel,
		Payload:      f.Payload,
		Error:        f.Error,
		CreatedAt:    formatTime(f.CreatedAt),
	}
}
