package domain

import (
	"fmt"
	"math"
	"net/url"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinDescriptionRunes = 20
	MaxDescriptionRunes = 2000
	MaxAddressRunes     = 200
)

// Address is a validated street address.
type Address string

// NewAddress は「番地 + 通り名」の形式を検証する。
// 先頭トークンに数字を含み、残りが 2 文字以上かつ英字を含む必要がある。
func NewAddress(value string) (Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("address is required")
	}
	if utf8.RuneCountInString(trimmed) > MaxAddressRunes {
		return "", fmt.Errorf("address must be at most %d characters", MaxAddressRunes)
	}
	parts := strings.Fields(trimmed)
	if len(parts) < 2 {
		return "", fmt.Errorf("address must include street number and street name")
	}
	if !strings.ContainsFunc(parts[0], unicode.IsDigit) {
		return "", fmt.Errorf("address must start with a street number")
	}
	remaining := strings.Join(parts[1:], " ")
	if utf8.RuneCountInString(remaining) < 2 || !strings.ContainsFunc(remaining, unicode.IsLetter) {
		return "", fmt.Errorf("address must include street name")
	}
	return Address(trimmed), nil
}

func (a Address) String() string {
	return string(a)
}

// Description is validated free text.
type Description string

func NewDescription(value string) (Description, error) {
	trimmed := strings.TrimSpace(value)
	n := utf8.RuneCountInString(trimmed)
	if n < MinDescriptionRunes {
		return "", fmt.Errorf("description must be at least %d characters", MinDescriptionRunes)
	}
	if n > MaxDescriptionRunes {
		return "", fmt.Errorf("description must be at most %d characters", MaxDescriptionRunes)
	}
	return Description(trimmed), nil
}

func (d Description) String() string {
	return string(d)
}

// NewCoordinates validates lat/lng presence and range.
func NewCoordinates(lat, lng *float64) (Coordinates, error) {
	if lat == nil || lng == nil {
		return Coordinates{}, fmt.Errorf("coordinates are required")
	}
	if math.IsNaN(*lat) || *lat < -90 || *lat > 90 {
		return Coordinates{}, fmt.Errorf("lat must be between -90 and 90")
	}
	if math.IsNaN(*lng) || *lng < -180 || *lng > 180 {
		return Coordinates{}, fmt.Errorf("lng must be between -180 and 180")
	}
	return Coordinates{Lat: *lat, Lng: *lng}, nil
}

// StagingPrefix は未審査写真を置くユーザー単位の名前空間。
func StagingPrefix(userID string) string {
	return "staging/" + url.PathEscape(userID) + "/"
}

// PhotoKeyList is a validated list of staged photo keys.
type PhotoKeyList []string

// NewPhotoKeyList は写真キーがすべて userID の staging 配下にあり、重複がないことを検証する。
func NewPhotoKeyList(values []string, userID string, minCount, maxCount int) (PhotoKeyList, error) {
	if len(values) < minCount {
		return nil, fmt.Errorf("at least %d photo(s) required", minCount)
	}
	if maxCount > 0 && len(values) > maxCount {
		return nil, fmt.Errorf("maximum %d photos allowed", maxCount)
	}
	prefix := StagingPrefix(userID)
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, raw := range values {
		key := strings.TrimSpace(raw)
		if !strings.HasPrefix(key, prefix) || path.Clean(key) != key || strings.Contains(key, "..") {
			return nil, fmt.Errorf("invalid photo key: %s", raw)
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, key)
	}
	return PhotoKeyList(result), nil
}
