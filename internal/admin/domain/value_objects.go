package domain

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"
)

const (
	MaxTagRunes             = 50
	MaxRejectionReasonRunes = 500
	MaxLocationDescription  = 2000
)

// DisplayQuality is the vision model's assessment of a display.
type DisplayQuality string

const (
	QualityUnknown     DisplayQuality = ""
	QualityMinimal     DisplayQuality = "minimal"
	QualityModerate    DisplayQuality = "moderate"
	QualityImpressive  DisplayQuality = "impressive"
	QualitySpectacular DisplayQuality = "spectacular"
)

var qualityRank = map[DisplayQuality]int{
	QualityMinimal:     1,
	QualityModerate:    2,
	QualityImpressive:  3,
	QualitySpectacular: 4,
}

func NewDisplayQuality(value string) (DisplayQuality, error) {
	q := DisplayQuality(strings.ToLower(strings.TrimSpace(value)))
	if q == QualityUnknown {
		return QualityUnknown, nil
	}
	if _, ok := qualityRank[q]; !ok {
		return "", fmt.Errorf("invalid display quality: %s", value)
	}
	return q, nil
}

// Rank orders qualities; unknown values rank 0.
func (q DisplayQuality) Rank() int {
	return qualityRank[q]
}

// LocationStatus is the publication state managed by moderators.
type LocationStatus string

const (
	LocationActive   LocationStatus = "active"
	LocationFlagged  LocationStatus = "flagged"
	LocationInactive LocationStatus = "inactive"
)

func NewLocationStatus(value string) (LocationStatus, error) {
	s := LocationStatus(strings.TrimSpace(value))
	switch s {
	case LocationActive, LocationFlagged, LocationInactive:
		return s, nil
	}
	return "", fmt.Errorf("invalid location status: %s", value)
}

type Tag string

func NewTag(value string) (Tag, error) {
	trimmed := strings.Join(strings.Fields(value), " ")
	if trimmed == "" {
		return "", fmt.Errorf("tag is required")
	}
	if utf8.RuneCountInString(trimmed) > MaxTagRunes {
		return "", fmt.Errorf("tag must be at most %d characters", MaxTagRunes)
	}
	return Tag(trimmed), nil
}

type TagList []Tag

// NewTagList は各タグを検証したうえで MergeTags と同じ重複除去を適用する。
func NewTagList(values []string) (TagList, error) {
	if len(values) == 0 {
		return nil, nil
	}
	cleaned := make([]string, 0, len(values))
	for _, raw := range values {
		tag, err := NewTag(raw)
		if err != nil {
			return nil, err
		}
		cleaned = append(cleaned, string(tag))
	}
	merged := MergeTags(nil, cleaned)
	result := make([]Tag, 0, len(merged))
	for _, v := range merged {
		result = append(result, Tag(v))
	}
	return TagList(result), nil
}

func (l TagList) Strings() []string {
	result := make([]string, 0, len(l))
	for _, v := range l {
		result = append(result, string(v))
	}
	return result
}

type RejectionReason string

func NewRejectionReason(value string) (RejectionReason, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("rejection reason is required")
	}
	if utf8.RuneCountInString(trimmed) > MaxRejectionReasonRunes {
		return "", fmt.Errorf("rejection reason must be at most %d characters", MaxRejectionReasonRunes)
	}
	return RejectionReason(trimmed), nil
}

// PublishedPrefix は審査済み写真をロケーション単位で置く名前空間。
func PublishedPrefix(locationID string) string {
	return "published/" + url.PathEscape(locationID) + "/"
}

// PublishedPhotoKey は staging のキーを locationID 配下の公開キーへ写像する。ファイル名は維持する。
func PublishedPhotoKey(locationID, stagedKey string) string {
	return PublishedPrefix(locationID) + path.Base(stagedKey)
}

type PhotoKeyList []string

// NewPublishedPhotoList は写真キーがすべて locationID の公開領域にあることを検証する。
func NewPublishedPhotoList(values []string, locationID string, limit int) (PhotoKeyList, error) {
	if limit > 0 && len(values) > limit {
		return nil, fmt.Errorf("photos must be <= %d", limit)
	}
	prefix := PublishedPrefix(locationID)
	result := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		key := strings.TrimSpace(raw)
		if !strings.HasPrefix(key, prefix) || path.Clean(key) != key {
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
