package domain

import (
	"sort"
	"unicode/utf8"
)

// Badge は承認済み投稿数に応じた称号。
type Badge struct {
	Type  string
	Label string
}

var contributorBadges = []struct {
	threshold int
	badge     Badge
}{
	{50, Badge{Type: "expert", Label: "Expert"}},
	{15, Badge{Type: "enthusiast", Label: "Enthusiast"}},
	{5, Badge{Type: "scout", Label: "Scout"}},
	{1, Badge{Type: "first-light", Label: "First Light"}},
}

// BadgeFor は approved 件数で得られる最上位の称号を返す。0 件なら nil。
func BadgeFor(approved int) *Badge {
	for _, b := range contributorBadges {
		if approved >= b.threshold {
			badge := b.badge
			return &badge
		}
	}
	return nil
}

// SubmissionStats is a user's submission count per moderation state.
type SubmissionStats struct {
	Total    int
	Approved int
	Pending  int
	Rejected int
}

func NewSubmissionStats(counts map[SubmissionStatus]int) SubmissionStats {
	stats := SubmissionStats{
		Approved: counts[SubmissionApproved],
		Pending:  counts[SubmissionPending],
		Rejected: counts[SubmissionRejected],
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats
}

// ContributorCount は投稿者ごとの承認済み件数の集計結果。
type ContributorCount struct {
	UserID   string
	UserName string
	Approved int
}

// LeaderboardEntry is one ranked contributor.
type LeaderboardEntry struct {
	Rank     int
	UserID   string
	UserName string
	Approved int
	Badge    *Badge
}

// RankContributors は承認件数の多い順（同数は UserID 順）に 1 から順位を振る。
// 表示名が無い投稿者は "Contributor-" と ID の先頭 8 文字で表す。
func RankContributors(counts []ContributorCount) []LeaderboardEntry {
	sorted := append([]ContributorCount{}, counts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Approved != sorted[j].Approved {
			return sorted[i].Approved > sorted[j].Approved
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	entries := make([]LeaderboardEntry, 0, len(sorted))
	for i, c := range sorted {
		name := c.UserName
		if name == "" {
			name = "Contributor-" + truncateRunes(c.UserID, 8)
		}
		entries = append(entries, LeaderboardEntry{
			Rank:     i + 1,
			UserID:   c.UserID,
			UserName: name,
			Approved: c.Approved,
			Badge:    BadgeFor(c.Approved),
		})
	}
	return entries
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
