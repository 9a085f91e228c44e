package domain

import "time"

// MaxDisplayTags caps the decorations shown for a location.
const MaxDisplayTags = 10

// LocationStatus is the publication state of a location.
type LocationStatus string

const (
	LocationActive   LocationStatus = "active"
	LocationFlagged  LocationStatus = "flagged"
	LocationInactive LocationStatus = "inactive"
)

// Valid reports whether s is a known status.
func (s LocationStatus) Valid() bool {
	switch s {
	case LocationActive, LocationFlagged, LocationInactive:
		return true
	}
	return false
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Location represents a published display.
type Location struct {
	ID             string
	Address        string
	Coordinates    Coordinates
	Status         LocationStatus
	Description    string
	Photos         []string
	Decorations    []string
	AIDescription  string
	DisplayQuality string
	LikeCount      int
	ReportCount    int
	FeedbackCount  int
	ViewCount      int
	SaveCount      int
	AverageRating  float64
	CreatedBy      string
	CreatedByName  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DisplayTags returns decorations capped at MaxDisplayTags.
func (l Location) DisplayTags() []string {
	if len(l.Decorations) <= MaxDisplayTags {
		return append([]string{}, l.Decorations...)
	}
	return append([]string{}, l.Decorations[:MaxDisplayTags]...)
}

// HasPhotos reports whether the location already has published photos.
func (l Location) HasPhotos() bool {
	return len(l.Photos) > 0
}
