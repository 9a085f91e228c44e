package domain

import "strings"

// AnalysisResult は写真解析サービスの出力契約。
type AnalysisResult struct {
	Tags           []string
	Description    string
	DisplayQuality DisplayQuality
	IsValidDisplay bool
}

// ApplyAnalysis は1枚分の解析結果を投稿へ反映する。
// タグは常にマージし、有効な展示と判定された場合のみ説明文と品質を更新する。
// 無効判定は処理を止めず flaggedForReview を立てる。
func (s *Submission) ApplyAnalysis(result AnalysisResult) {
	s.DetectedTags = MergeTags(s.DetectedTags, result.Tags)

	if !result.IsValidDisplay {
		s.FlaggedForReview = true
		return
	}

	description := strings.TrimSpace(result.Description)
	if description != "" && (s.AIDescription == "" || len(description) > len(s.AIDescription)) {
		s.AIDescription = description
	}
	if result.DisplayQuality.Rank() > s.DisplayQuality.Rank() {
		s.DisplayQuality = result.DisplayQuality
	}
}
