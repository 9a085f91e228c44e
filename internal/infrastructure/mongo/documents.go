package mongo

import (
	"time"
)

// CoordinatesDocument は緯度経度の埋め込みドキュメント。
type CoordinatesDocument struct {
	Lat float64 `bson:"lat"`
	Lng float64 `bson:"lng"`
}

// GeoKeyDocument は 4 桁丸め座標を整数で持つ重複判定用キー。
type GeoKeyDocument struct {
	LatE4 int64 `bson:"latE4"`
	LngE4 int64 `bson:"lngE4"`
}

// LocationDocument は公開ロケーションのスキーマ。Public/Admin の両方が同じコレクションを読む。
type LocationDocument struct {
	ID                string              `bson:"_id"`
	Address           string              `bson:"address"`
	AddressKey        string              `bson:"addressKey"`
	Coordinates       CoordinatesDocument `bson:"coordinates"`
	GeoKey            GeoKeyDocument      `bson:"geoKey"`
	Status            string              `bson:"status"`
	Description       string              `bson:"description,omitempty"`
	Photos            []string            `bson:"photos"`
	Decorations       []string            `bson:"decorations,omitempty"`
	AIDescription     string              `bson:"aiDescription,omitempty"`
	DisplayQuality    string              `bson:"displayQuality,omitempty"`
	LikeCount         int                 `bson:"likeCount"`
	ReportCount       int                 `bson:"reportCount"`
	FeedbackCount     int                 `bson:"feedbackCount"`
	ViewCount         int                 `bson:"viewCount"`
	SaveCount         int                 `bson:"saveCount"`
	AverageRating     float64             `bson:"averageRating"`
	CreatedBy         string              `bson:"createdBy"`
	CreatedByName     string              `bson:"createdByName,omitempty"`
	SubmissionID      string              `bson:"submissionId,omitempty"`
	PhotoSubmissionID string              `bson:"photoSubmissionId,omitempty"`
	CreatedAt         time.Time           `bson:"createdAt"`
	UpdatedAt         time.Time           `bson:"updatedAt"`
}

// ReviewClaimDocument は審査者の一時的な処理権。
type ReviewClaimDocument struct {
	By        string    `bson:"by"`
	Token     string    `bson:"token"`
	ExpiresAt time.Time `bson:"expiresAt"`
}

// SubmissionDocument は投稿のスキーマ。geoKey/addressKey は new_location の場合だけ保存する。
type SubmissionDocument struct {
	ID               string               `bson:"_id"`
	Type             string               `bson:"type"`
	Status           string               `bson:"status"`
	Address          string               `bson:"address,omitempty"`
	AddressKey       string               `bson:"addressKey,omitempty"`
	Coordinates      CoordinatesDocument  `bson:"coordinates"`
	GeoKey           *GeoKeyDocument      `bson:"geoKey,omitempty"`
	Description      string               `bson:"description,omitempty"`
	Photos           []string             `bson:"photos"`
	TargetLocationID string               `bson:"targetLocationId,omitempty"`
	SubmittedBy      string               `bson:"submittedBy"`
	SubmittedByName  string               `bson:"submittedByName,omitempty"`
	DetectedTags     []string             `bson:"detectedTags,omitempty"`
	AIDescription    string               `bson:"aiDescription,omitempty"`
	DisplayQuality   string               `bson:"displayQuality,omitempty"`
	FlaggedForReview bool                 `bson:"flaggedForReview"`
	Version          int64                `bson:"version"`
	ReviewClaim      *ReviewClaimDocument `bson:"reviewClaim,omitempty"`
	ReviewedBy       string               `bson:"reviewedBy,omitempty"`
	ReviewedAt       *time.Time           `bson:"reviewedAt,omitempty"`
	RejectionReason  string               `bson:"rejectionReason,omitempty"`
	LocationID       string               `bson:"locationId,omitempty"`
	CreatedAt        time.Time            `bson:"createdAt"`
	UpdatedAt        time.Time            `bson:"updatedAt"`
}

// EngagementDocument は (targetKind, type, userId, targetId) から導出したIDを _id に持つ。
type EngagementDocument struct {
	ID         string    `bson:"_id"`
	Type       string    `bson:"type"`
	UserID     string    `bson:"userId"`
	TargetKind string    `bson:"targetKind"`
	TargetID   string    `bson:"targetId"`
	Reason     string    `bson:"reason,omitempty"`
	CreatedAt  time.Time `bson:"createdAt"`
}

// RouteStatsDocument はルートの距離・所要時間の埋め込みドキュメント。
type RouteStatsDocument struct {
	TotalStops       int     `bson:"totalStops"`
	DistanceMiles    float64 `bson:"distanceMiles"`
	EstimatedMinutes int     `bson:"estimatedMinutes"`
}

// RouteDocument はルートのスキーマ。
type RouteDocument struct {
	ID            string             `bson:"_id"`
	Title         string             `bson:"title"`
	Description   string             `bson:"description,omitempty"`
	LocationIDs   []string           `bson:"locationIds"`
	Tags          []string           `bson:"tags,omitempty"`
	IsPublic      bool               `bson:"isPublic"`
	Status        string             `bson:"status"`
	Stats         RouteStatsDocument `bson:"stats"`
	LikeCount     int                `bson:"likeCount"`
	SaveCount     int                `bson:"saveCount"`
	CreatedBy     string             `bson:"createdBy"`
	CreatedByName string             `bson:"createdByName,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}

// FailedNotificationDocument は再送を使い切った管理者通知の記録。
type FailedNotificationDocument struct {
	ID           string    `bson:"_id"`
	SubmissionID string    `bson:"submissionId"`
	Channel      string    `bson:"channel"`
	Payload      string    `bson:"payload"`
	Error        string    `bson:"error"`
	CreatedAt    time.Time `bson:"createdAt"`
}
