package domain

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// MaxTags is the cap applied after merging.
const MaxTags = 10

const (
	minStemRunes    = 4
	stemPrefixRatio = 0.7
)

// genericQualifiers は「何の」飾りかを表さない汎用語。
// 短い方のタグに含まれる場合、他の語が完全一致または語幹一致しているときに限り一致扱いにする。
var genericQualifiers = map[string]struct{}{
	"figure":      {},
	"figures":     {},
	"decoration":  {},
	"decorations": {},
	"display":     {},
	"displays":    {},
	"item":        {},
	"items":       {},
	"piece":       {},
	"pieces":      {},
}

// MergeTags は既存タグと新規タグを和集合にし、意味的に重複するタグを除いて返す。
// 大文字小文字だけが異なる完全一致は先に現れた表記を残す。
func MergeTags(existing, proposed []string) []string {
	union := make([]string, 0, len(existing)+len(proposed))
	seen := make(map[string]struct{}, len(existing)+len(proposed))
	for _, list := range [][]string{existing, proposed} {
		for _, raw := range list {
			tag := strings.Join(strings.Fields(raw), " ")
			if tag == "" {
				continue
			}
			key := strings.ToLower(tag)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			union = append(union, tag)
		}
	}
	return DeduplicateTags(union)
}

// DeduplicateTags removes semantically redundant tags, sorts the rest and caps at MaxTags.
func DeduplicateTags(tags []string) []string {
	sorted := append([]string{}, tags...)
	sort.Strings(sorted)

	words := make([][]string, len(sorted))
	for i, tag := range sorted {
		words[i] = wordSet(tag)
	}

	removed := make([]bool, len(sorted))
	for i := range sorted {
		if removed[i] {
			continue
		}
		for j := i + 1; j < len(sorted); j++ {
			if removed[j] {
				continue
			}
			switch {
			case isProperSubset(words[i], words[j]):
				removed[i] = true
			case isProperSubset(words[j], words[i]):
				removed[j] = true
			case shorterTag(sorted[i], words[i], sorted[j], words[j]):
				removed[i] = nearDuplicate(words[i], words[j])
			default:
				removed[j] = nearDuplicate(words[j], words[i])
			}
			if removed[i] {
				break
			}
		}
	}

	result := make([]string, 0, len(sorted))
	for i, tag := range sorted {
		if !removed[i] {
			result = append(result, tag)
		}
	}
	if len(result) > MaxTags {
		result = result[:MaxTags]
	}
	return result
}

// nearDuplicate は short が long の単複・綴り揺れによる言い換えかを判定する。
// 共通語があるか双方 2 語以下のときだけ判定し、short の語がすべて一致かつ 2 語以上一致した場合に true。
func nearDuplicate(short, long []string) bool {
	overlap := intersect(short, long)
	if len(overlap) == 0 && (len(short) > 2 || len(long) > 2) {
		return false
	}

	unmatchedShort := difference(short, overlap)
	unmatchedLong := difference(long, overlap)

	stems := 0
	var generics int
	for _, w := range unmatchedShort {
		if stemMatchAny(w, unmatchedLong) {
			stems++
			continue
		}
		if _, ok := genericQualifiers[w]; ok {
			generics++
		}
	}
	if len(overlap)+stems == 0 {
		generics = 0
	}

	total := len(overlap) + stems + generics
	return total >= 2 && total == len(short)
}

func stemMatchAny(word string, candidates []string) bool {
	for _, c := range candidates {
		if stemMatch(word, c) {
			return true
		}
	}
	return false
}

// stemMatch は両語が 4 文字以上で、max(4, 短い方の 70%) 文字の接頭辞が一致するかを見る。
func stemMatch(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < minStemRunes || len(rb) < minStemRunes {
		return false
	}
	minLen := min(len(ra), len(rb))
	prefix := max(minStemRunes, int(float64(minLen)*stemPrefixRatio))
	if prefix > minLen {
		return false
	}
	return string(ra[:prefix]) == string(rb[:prefix])
}

// shorterTag は a が b より「記述の少ない」タグなら true。語数、文字数の順で比較し、同点なら a を捨てる。
func shorterTag(a string, aw []string, b string, bw []string) bool {
	if len(aw) != len(bw) {
		return len(aw) < len(bw)
	}
	return utf8.RuneCountInString(a) <= utf8.RuneCountInString(b)
}

func wordSet(tag string) []string {
	fields := strings.Fields(strings.ToLower(tag))
	seen := make(map[string]struct{}, len(fields))
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		result = append(result, f)
	}
	return result
}

func isProperSubset(a, b []string) bool {
	if len(a) >= len(b) {
		return false
	}
	return len(intersect(a, b)) == len(a)
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, w := range b {
		set[w] = struct{}{}
	}
	var result []string
	for _, w := range a {
		if _, ok := set[w]; ok {
			result = append(result, w)
		}
	}
	return result
}

func difference(a, remove []string) []string {
	set := make(map[string]struct{}, len(remove))
	for _, w := range remove {
		set[w] = struct{}{}
	}
	var result []string
	for _, w := range a {
		if _, ok := set[w]; !ok {
			result = append(result, w)
		}
	}
	return result
}
