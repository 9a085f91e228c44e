package domain

import (
	"math"
	"time"
)

const (
	MaxRouteTitleRunes       = 100
	MaxRouteDescriptionRunes = 500
	MaxRouteStops            = 20
	MaxRouteTags             = 10

	minutesPerStop = 10
	minutesPerMile = 2
	earthRadiusMi  = 3959.0
)

// RouteStatus is the visibility state of a route.
type RouteStatus string

const (
	RouteActive   RouteStatus = "active"
	RouteInactive RouteStatus = "inactive"
)

// Route is a curated, ordered list of locations.
type Route struct {
	ID            string
	Title         string
	Description   string
	LocationIDs   []string
	Tags          []string
	IsPublic      bool
	Status        RouteStatus
	Stats         RouteStats
	LikeCount     int
	SaveCount     int
	CreatedBy     string
	CreatedByName string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RouteStats summarizes distance and estimated time.
type RouteStats struct {
	TotalStops       int
	DistanceMiles    float64
	EstimatedMinutes int
}

// Engageable reports whether userID may react to the route.
func (r Route) Engageable(userID string) bool {
	if r.CreatedBy == userID {
		return true
	}
	return r.IsPublic && r.Status == RouteActive
}

// ComputeRouteStats は停車地を順にたどった距離（マイル）と所要時間の目安を返す。
// 1 停車地あたり 10 分、移動 1 マイルあたり 2 分で見積もる。
func ComputeRouteStats(stops []Coordinates) RouteStats {
	var distance float64
	for i := 1; i < len(stops); i++ {
		distance += HaversineMiles(stops[i-1], stops[i])
	}
	return RouteStats{
		TotalStops:       len(stops),
		DistanceMiles:    math.Round(distance*10) / 10,
		EstimatedMinutes: len(stops)*minutesPerStop + int(distance*minutesPerMile),
	}
}

// HaversineMiles returns the great-circle distance between a and b.
func HaversineMiles(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMi * math.Asin(math.Min(1, math.Sqrt(h)))
}
