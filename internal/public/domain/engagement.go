package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TargetKind identifies what an engagement points at.
type TargetKind string

const (
	TargetLocation TargetKind = "location"
	TargetRoute    TargetKind = "route"
)

// EngagementType is a per-user reaction type.
type EngagementType string

const (
	EngagementLike     EngagementType = "like"
	EngagementFavorite EngagementType = "favorite"
	EngagementSave     EngagementType = "save"
	EngagementReport   EngagementType = "report"
)

// EngagementState は (type, user, target) ごとの状態。present / absent の2値のみ。
type EngagementState string

const (
	StatePresent EngagementState = "present"
	StateAbsent  EngagementState = "absent"
)

// CounterField names a numeric counter on a location or route.
type CounterField string

const (
	CounterLike     CounterField = "likeCount"
	CounterReport   CounterField = "reportCount"
	CounterFeedback CounterField = "feedbackCount"
	CounterView     CounterField = "viewCount"
	CounterSave     CounterField = "saveCount"
)

// Target is an engageable entity reference.
type Target struct {
	Kind TargetKind
	ID   string
}

// EngagementRecord is a single user's reaction to a target.
type EngagementRecord struct {
	ID        string
	Type      EngagementType
	UserID    string
	Target    Target
	Reason    string
	CreatedAt time.Time
}

// ReactResult is returned by react/unReact/report.
type ReactResult struct {
	State          EngagementState
	AlreadyExisted bool
	Record         *EngagementRecord
}

// toggleCounters は対象種別ごとに許可されるトグル種別と、その増減対象カウンタ。
var toggleCounters = map[TargetKind]map[EngagementType]CounterField{
	TargetLocation: {
		EngagementLike:     CounterLike,
		EngagementFavorite: CounterSave,
	},
	TargetRoute: {
		EngagementLike: CounterLike,
		EngagementSave: CounterSave,
	},
}

// ToggleCounter returns the counter a toggle type maintains on the given target kind.
func ToggleCounter(kind TargetKind, t EngagementType) (CounterField, error) {
	byType, ok := toggleCounters[kind]
	if !ok {
		return "", fmt.Errorf("unsupported target kind: %s", kind)
	}
	field, ok := byType[t]
	if !ok {
		return "", fmt.Errorf("type %q is not supported for %s", t, kind)
	}
	return field, nil
}

// ToggleTypes lists the toggle types valid for a target kind.
func ToggleTypes(kind TargetKind) []EngagementType {
	switch kind {
	case TargetLocation:
		return []EngagementType{EngagementLike, EngagementFavorite}
	case TargetRoute:
		return []EngagementType{EngagementLike, EngagementSave}
	}
	return nil
}

// RecordID は (type, userId, target) から決定的にレコードIDを導出する。
// 同じ三つ組は必ず同じIDになり、条件付き作成の一意性はこのIDだけで担保される。
// 各要素はエスケープしてから連結するため、区切り文字を含む値でも衝突しない。
func RecordID(t EngagementType, userID string, target Target) string {
	parts := []string{
		string(target.Kind),
		string(t),
		url.QueryEscape(userID),
		url.QueryEscape(target.ID),
	}
	return strings.Join(parts, "#")
}
