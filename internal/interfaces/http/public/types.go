package public

import (
	"strings"
	"time"

	"github.com/sngm3741/holiday-lights/api/internal/interfaces/http/common"
	publicapp "github.com/sngm3741/holiday-lights/api/internal/public/application"
	publicdomain "github.com/sngm3741/holiday-lights/api/internal/public/domain"
)

type coordinatesResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type locationResponse struct {
	ID             string              `json:"id"`
	Address        string              `json:"address"`
	Coordinates    coordinatesResponse `json:"coordinates"`
	Status         string              `json:"status"`
	Description    string              `json:"description,omitempty"`
	Photos         []string            `json:"photos"`
	Decorations    []string            `json:"decorations"`
	AIDescription  string              `json:"aiDescription,omitempty"`
	DisplayQuality string              `json:"displayQuality,omitempty"`
	LikeCount      int                 `json:"likeCount"`
	ReportCount    int                 `json:"reportCount"`
	ViewCount      int                 `json:"viewCount"`
	SaveCount      int                 `json:"saveCount"`
	AverageRating  float64             `json:"averageRating"`
	CreatedByName  string              `json:"createdByName,omitempty"`
	CreatedAt      string              `json:"createdAt"`
}

type locationListResponse struct {
	Items []locationResponse `json:"items"`
	Count int                `json:"count"`
}

type engagementResponse struct {
	TargetType     string `json:"targetType"`
	TargetID       string `json:"targetId"`
	Type           string `json:"type"`
	State          string `json:"state"`
	AlreadyExisted bool   `json:"alreadyExisted"`
	CreatedAt      string `json:"createdAt,omitempty"`
}

type engagementStatusResponse struct {
	TargetType string          `json:"targetType"`
	TargetID   string          `json:"targetId"`
	States     map[string]bool `json:"states"`
}

type submissionResponse struct {
	ID               string              `json:"id"`
	Type             string              `json:"type"`
	Status           string              `json:"status"`
	Address          string              `json:"address,omitempty"`
	Coordinates      coordinatesResponse `json:"coordinates"`
	Description      string              `json:"description,omitempty"`
	Photos           []string            `json:"photos"`
	TargetLocationID string              `json:"targetLocationId,omitempty"`
	LocationID       string              `json:"locationId,omitempty"`
	RejectionReason  string              `json:"rejectionReason,omitempty"`
	CreatedAt        string              `json:"createdAt"`
}

type duplicateResponse struct {
	IsDuplicate      bool              `json:"isDuplicate"`
	Kind             string            `json:"kind"`
	Message          string            `json:"message"`
	ExistingLocation *locationResponse `json:"existingLocation,omitempty"`
	SubmissionID     string            `json:"submissionId,omitempty"`
}

type routeStatsResponse struct {
	TotalStops       int     `json:"totalStops"`
	DistanceMiles    float64 `json:"distanceMiles"`
	EstimatedMinutes int     `json:"estimatedMinutes"`
}

type routeResponse struct {
	ID            string             `json:"id"`
	Title         string             `json:"title"`
	Description   string             `json:"description,omitempty"`
	LocationIDs   []string           `json:"locationIds"`
	Tags          []string           `json:"tags"`
	IsPublic      bool               `json:"isPublic"`
	Status        string             `json:"status"`
	Stats         routeStatsResponse `json:"stats"`
	LikeCount     int                `json:"likeCount"`
	SaveCount     int                `json:"saveCount"`
	CreatedBy     string             `json:"createdBy"`
	CreatedByName string             `json:"createdByName,omitempty"`
	CreatedAt     string             `json:"createdAt"`
}

type badgeResponse struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

type submissionStatsResponse struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
	Rejected int `json:"rejected"`
}

type profileResponse struct {
	ID       string                  `json:"id"`
	Name     string                  `json:"name,omitempty"`
	Username string                  `json:"username,omitempty"`
	IsAdmin  bool                    `json:"isAdmin"`
	Stats    submissionStatsResponse `json:"stats"`
	Badge    *badgeResponse          `json:"badge,omitempty"`
}

type leaderboardEntryResponse struct {
	Rank     int            `json:"rank"`
	UserID   string         `json:"userId"`
	UserName string         `json:"userName"`
	Approved int            `json:"approvedCount"`
	Badge    *badgeResponse `json:"badge,omitempty"`
}

type submitEntryRequest struct {
	Address     string   `json:"address"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	Description string   `json:"description"`
	Photos      []string `json:"photos"`
}

type submitPhotoUpdateRequest struct {
	Photos []string `json:"photos"`
}

type reportRequest struct {
	Reason string `json:"reason"`
}

type createRouteRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	LocationIDs []string `json:"locationIds"`
	Tags        []string `json:"tags"`
	IsPublic    bool     `json:"isPublic"`
}

// updateRouteRequest は省略された項目を変更しない。
type updateRouteRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	LocationIDs *[]string `json:"locationIds"`
	Tags        *[]string `json:"tags"`
	IsPublic    *bool     `json:"isPublic"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// mediaURL は公開済み写真のキーを配信URLへ変換する。すでに URL のものはそのまま返す。
func mediaURL(baseURL, key string) string {
	if strings.Contains(key, "://") {
		return key
	}
	if baseURL == "" {
		baseURL = "/media"
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(key, "/")
}

func (h *Handler) buildLocationResponse(loc publicdomain.Location) locationResponse {
	photos := make([]string, 0, len(loc.Photos))
	for _, key := range loc.Photos {
		photos = append(photos, mediaURL(h.mediaBaseURL, key))
	}
	return locationResponse{
		ID:             loc.ID,
		Address:        loc.Address,
		Coordinates:    coordinatesResponse{Lat: loc.Coordinates.Lat, Lng: loc.Coordinates.Lng},
		Status:         string(loc.Status),
		Description:    loc.Description,
		Photos:         photos,
		Decorations:    loc.DisplayTags(),
		AIDescription:  loc.AIDescription,
		DisplayQuality: loc.DisplayQuality,
		LikeCount:      loc.LikeCount,
		ReportCount:    loc.ReportCount,
		ViewCount:      loc.ViewCount,
		SaveCount:      loc.SaveCount,
		AverageRating:  loc.AverageRating,
		CreatedByName:  loc.CreatedByName,
		CreatedAt:      formatTime(loc.CreatedAt),
	}
}

func (h *Handler) buildLocationList(locations []publicdomain.Location) locationListResponse {
	items := make([]locationResponse, 0, len(locations))
	for _, loc := range locations {
		items = append(items, h.buildLocationResponse(loc))
	}
	return locationListResponse{Items: items, Count: len(items)}
}

func buildEngagementResponse(target publicdomain.Target, t publicdomain.EngagementType, result publicdomain.ReactResult) engagementResponse {
	resp := engagementResponse{
		TargetType:     string(target.Kind),
		TargetID:       target.ID,
		Type:           string(t),
		State:          string(result.State),
		AlreadyExisted: result.AlreadyExisted,
	}
	if result.Record != nil {
		resp.CreatedAt = formatTime(result.Record.CreatedAt)
	}
	return resp
}

func buildEngagementStatusResponse(status publicapp.EngagementStatus) engagementStatusResponse {
	states := make(map[string]bool, len(status.States))
	for t, present := range status.States {
		states[string(t)] = present
	}
	return engagementStatusResponse{
		TargetType: string(status.Target.Kind),
		TargetID:   status.Target.ID,
		States:     states,
	}
}

func buildSubmissionResponse(sub publicdomain.Submission) submissionResponse {
	return submissionResponse{
		ID:               sub.ID,
		Type:             string(sub.Type),
		Status:           string(sub.Status),
		Address:          sub.Address,
		Coordinates:      coordinatesResponse{Lat: sub.Coordinates.Lat, Lng: sub.Coordinates.Lng},
		Description:      sub.Description,
		Photos:           append([]string{}, sub.Photos...),
		TargetLocationID: sub.TargetLocationID,
		LocationID:       sub.LocationID,
		RejectionReason:  sub.RejectionReason,
		CreatedAt:        formatTime(sub.CreatedAt),
	}
}

func (h *Handler) buildDuplicateResponse(result publicdomain.DuplicateResult) duplicateResponse {
	resp := duplicateResponse{
		IsDuplicate:  result.IsDuplicate(),
		Kind:         string(result.Kind),
		Message:      result.Message(),
		SubmissionID: result.SubmissionID,
	}
	if resp.Kind == "" {
		resp.Kind = string(publicdomain.DuplicateNone)
	}
	if result.Location != nil {
		loc := h.buildLocationResponse(*result.Location)
		resp.ExistingLocation = &loc
	}
	return resp
}

func buildRouteResponse(route publicdomain.Route) routeResponse {
	return routeResponse{
		ID:          route.ID,
		Title:       route.Title,
		Description: route.Description,
		LocationIDs: append([]string{}, route.LocationIDs...),
		Tags:        append([]string{}, route.Tags...),
		IsPublic:    route.IsPublic,
		Status:      string(route.Status),
		Stats: routeStatsResponse{
			TotalStops:       route.Stats.TotalStops,
			DistanceMiles:    route.Stats.DistanceMiles,
			EstimatedMinutes: route.Stats.EstimatedMinutes,
		},
		LikeCount:     route.LikeCount,
		SaveCount:     route.SaveCount,
		CreatedBy:     route.CreatedBy,
		CreatedByName: route.CreatedByName,
		CreatedAt:     formatTime(route.CreatedAt),
	}
}

func buildRouteList(routes []publicdomain.Route) []routeResponse {
	items := make([]routeResponse, 0, len(routes))
	for _, route := range routes {
		items = append(items, buildRouteResponse(route))
	}
	return items
}

func buildBadgeResponse(badge *publicdomain.Badge) *badgeResponse {
	if badge == nil {
		return nil
	}
	return &badgeResponse{Type: badge.Type, Label: badge.Label}
}

func buildProfileResponse(user common.AuthenticatedUser, isAdmin bool, stats publicdomain.SubmissionStats) profileResponse {
	return profileResponse{
		ID:       user.ID,
		Name:     user.Name,
		Username: user.Username,
		IsAdmin:  isAdmin,
		Stats: submissionStatsResponse{
			Total:    stats.Total,
			Approved: stats.Approved,
			Pending:  stats.Pending,
			Rejected: stats.Rejected,
		},
		Badge: buildBadgeResponse(publicdomain.BadgeFor(stats.Approved)),
	}
}
