package transcription

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// hallucinationDenyList lists common Whisper artifacts produced on
// near-silent or noisy windows, ported in spirit from the deny-list
// implied by the original service's transcript-manager filtering.
var hallucinationDenyList = map[string]bool{
	"you":                     true,
	"thank you.":              true,
	"thank you":               true,
	"thanks for watching!":    true,
	"thanks for watching":     true,
	"foreign":                 true,
	"bye.":                    true,
	"bye":                     true,
	"subtitles by the amara.org community": true,
}

// isHallucination reports whether the normalized text matches a known
// Whisper artifact.
func isHallucination(text string) bool {
	return hallucinationDenyList[strings.ToLower(strings.TrimSpace(text))]
}

// normalizedHash computes a stable dedup key: lowercase, collapse
// whitespace, first 16 hex chars of MD5.
func normalizedHash(text string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := md5.Sum([]byte(norm))
	return hex.EncodeToString(sum[:])[:16]
}

// wordSet returns the lowercased word set of text.
func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

// jaccard computes the Jaccard similarity of two word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// removeOverlap strips a leading run of newWords that overlaps the
// tail of lastFinalConcatenated, per spec §4.4 step 3: try descending
// overlap sizes from min(20, len(new)/2+5) down to 3; for each size k,
// compare the first k words of new against every k-word window in the
// last ≤50 words of the final-text tail (plus explicitly against the
// tail's own final k words) using Jaccard similarity over lowercased
// word sets. The largest k with similarity ≥ 0.5 wins.
func removeOverlap(newText, lastFinalConcatenated string) string {
	newWords := strings.Fields(newText)
	if len(newWords) == 0 {
		return newText
	}

	tailWords := lastNWords(strings.Fields(lastFinalConcatenated), 50)
	if len(tailWords) == 0 {
		return newText
	}

	maxK := len(newWords)/2 + 5
	if maxK > 20 {
		maxK = 20
	}
	if maxK > len(newWords) {
		maxK = len(newWords)
	}

	bestK := 0
	for k := maxK; k >= 3; k-- {
		if k > len(newWords) {
			continue
		}
		head := wordSet(newWords[:k])

		found := false
		for start := 0; start+k <= len(tailWords); start++ {
			window := wordSet(tailWords[start : start+k])
			if jaccard(head, window) >= 0.5 {
				found = true
				break
			}
		}
		if !found && k <= len(tailWords) {
			finalK := wordSet(tailWords[len(tailWords)-k:])
			if jaccard(head, finalK) >= 0.5 {
				found = true
			}
		}
		if found {
			bestK = k
			break
		}
	}

	if bestK == 0 {
		return newText
	}
	stripped := strings.Join(newWords[bestK:], " ")
	return stripped
}

func lastNWords(words []string, n int) []string {
	if len(words) <= n {
		return words
	}
	return words[len(words)-n:]
}

// nGrams3 computes the set of 3-grams (consecutive lowercased-word
// triples joined by a space) in text.
func nGrams3(words []string) map[string]struct{} {
	set := make(map[string]struct{})
	for i := 0; i+3 <= len(words); i++ {
		g := strings.ToLower(words[i]) + " " + strings.ToLower(words[i+1]) + " " + strings.ToLower(words[i+2])
		set[g] = struct{}{}
	}
	return set
}

// isNearDuplicate reports whether newText's 3-gram set overlaps the
// last ≤100 words of lastFinalConcatenated's 3-gram set by at least
// 35% relative to the new text's own 3-gram count.
func isNearDuplicate(newText, lastFinalConcatenated string) bool {
	newGrams := nGrams3(strings.Fields(newText))
	if len(newGrams) == 0 {
		return false
	}
	tailGrams := nGrams3(lastNWords(strings.Fields(lastFinalConcatenated), 100))

	intersect := 0
	for g := range newGrams {
		if _, ok := tailGrams[g]; ok {
			intersect++
		}
	}
	return float64(intersect)/float64(len(newGrams)) >= 0.35
}

// endsWithSentenceTerminal reports whether text ends in one of the
// recognized sentence-terminal punctuation marks across the target
// languages (Latin, CJK, Devanagari).
func endsWithSentenceTerminal(text string) bool {
	text = strings.TrimRight(text, " \t\n")
	if text == "" {
		return false
	}
	terminals := []string{".", "!", "?", "。", "？", "！", "।"}
	for _, t := range terminals {
		if strings.HasSuffix(text, t) {
			return true
		}
	}
	return false
}
