package common

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は利用者の自由入力からタグをすべて取り除く。
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Text はタグを除去し、エスケープされた実体参照を元に戻して前後の空白を落とす。
// 出力は JSON としてのみ返すため、ここでは HTML エスケープを残さない。
func (s *Sanitizer) Text(value string) string {
	if value == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(value)))
}

// Strings applies Text to each element and drops empty results.
func (s *Sanitizer) Strings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if cleaned := s.Text(v); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}
