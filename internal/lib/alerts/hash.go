package alerts

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

// ContentHasher fingerprints raw notices so the same hazard reported
// with minor text variations enhances only once.
type ContentHasher struct{}

// NewContentHasher creates a content hasher.
func NewContentHasher() *ContentHasher {
	return &ContentHasher{}
}

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	punctuationRe = regexp.MustCompile(`[.,;:!?()\-]`)
	clockRe       = regexp.MustCompile(`at \d{1,2}:\d{2}`)
	dateRe        = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`)
	abbrevRe      = regexp.MustCompile(`\b(hwy|rd|brg|nr)\b`)
)

var abbrevExpansions = map[string]string{
	"hwy": "highway",
	"rd":  "road",
	"brg": "bridge",
	"nr":  "near",
}

// HashRawAlert creates a content hash for deduplication.
func (h *ContentHasher) HashRawAlert(raw RawAlert) string {
	signature := fmt.Sprintf("%s|%s|%s|%s",
		h.normalizeText(raw.Title),
		h.normalizeText(raw.Description),
		h.normalizeText(raw.Location),
		raw.Source,
	)
	hash := sha256.Sum256([]byte(signature))
	return fmt.Sprintf("%x", hash)
}

// normalizeText cleans text for consistent hashing: report refreshes
// tweak clock times and punctuation without changing the hazard.
func (h *ContentHasher) normalizeText(text string) string {
	normalized := strings.ToLower(text)
	normalized = clockRe.ReplaceAllString(normalized, "")
	normalized = dateRe.ReplaceAllString(normalized, "")
	normalized = punctuationRe.ReplaceAllString(normalized, "")
	normalized = abbrevRe.ReplaceAllStringFunc(normalized, func(m string) string {
		if full, ok := abbrevExpansions[m]; ok {
			return full
		}
		return m
	})
	normalized = whitespaceRe.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}
