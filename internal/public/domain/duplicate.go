package domain

import (
	"math"
	"strings"
)

// coordinateScale は 4 桁丸め（約 11m）に相当する倍率。
const coordinateScale = 1e4

// GeoKey は 4 桁に丸めた座標を整数で保持する比較用キー。
// 浮動小数のまま保存すると等値比較が不安定になるため整数化する。
type GeoKey struct {
	LatE4 int64
	LngE4 int64
}

// NewGeoKey rounds c to four decimal places.
func NewGeoKey(c Coordinates) GeoKey {
	return GeoKey{
		LatE4: int64(math.Round(c.Lat * coordinateScale)),
		LngE4: int64(math.Round(c.Lng * coordinateScale)),
	}
}

// RoundCoordinate rounds v to four decimal places.
func RoundCoordinate(v float64) float64 {
	return math.Round(v*coordinateScale) / coordinateScale
}

// NormalizeAddress lowercases, trims and collapses whitespace.
func NormalizeAddress(address string) string {
	return strings.Join(strings.Fields(strings.ToLower(address)), " ")
}

// DuplicateKind is the tri-state outcome of a duplicate check.
type DuplicateKind string

const (
	DuplicateNone     DuplicateKind = "none"
	DuplicateLocation DuplicateKind = "location"
	DuplicatePending  DuplicateKind = "pending_submission"
)

// DuplicateCandidate は比較対象となる既存エントリ。
type DuplicateCandidate struct {
	ID         string
	GeoKey     GeoKey
	AddressKey string
}

// Matches reports whether either the rounded coordinates or the normalized address are equal.
func (c DuplicateCandidate) Matches(geo GeoKey, addressKey string) bool {
	if c.GeoKey == geo {
		return true
	}
	return addressKey != "" && c.AddressKey == addressKey
}

// DuplicateResult is returned by the duplicate detector.
type DuplicateResult struct {
	Kind         DuplicateKind
	Location     *Location
	SubmissionID string
}

// IsDuplicate reports whether any match was found.
func (r DuplicateResult) IsDuplicate() bool {
	return r.Kind == DuplicateLocation || r.Kind == DuplicatePending
}

// Message returns a user-facing explanation of the result.
func (r DuplicateResult) Message() string {
	switch r.Kind {
	case DuplicateLocation:
		return "This display already exists. You can add photos to the existing entry instead."
	case DuplicatePending:
		return "This display has already been submitted and is under review."
	default:
		return "No duplicate found."
	}
}
