// Package filter implements C5, the Smart Filter: gates candidate
// articles before AI spend via hash dedup, a language heuristic, a
// boilerplate/quality check, and an ad pre-filter.
package filter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
	"unicode"

	"pulsefeed/internal/domain/entity"
)

// RecentHashSeen answers whether hashContent was seen in the last 24h,
// independent of whether it is already persisted. C9's queue or an
// in-process ring buffer can satisfy this.
type RecentHashSeen interface {
	Seen(ctx context.Context, hashContent string) bool
	Remember(ctx context.Context, hashContent string, at time.Time)
}

// Filter is C5.
type Filter struct {
	recent         RecentHashSeen
	allowedLangs   map[string]bool
	boilerplateRx  []*regexp.Regexp
	adMarkerRx     []*regexp.Regexp
}

var defaultBoilerplatePatterns = []string{
	`(?i)subscribe to our newsletter`,
	`(?i)cookies? (policy|consent)`,
	`(?i)all rights reserved`,
	`(?i)javascript is disabled`,
}

var defaultAdMarkerPatterns = []string{
	`(?i)\bsponsored\b`,
	`(?i)\bpromo code\b`,
	`(?i)\blimited time offer\b`,
	`(?i)\bbuy now\b`,
}

// New builds a Filter. allowedLanguages lists ISO codes beyond the
// always-allowed ru/en, per source config overrides.
func New(recent RecentHashSeen, allowedLanguages []string) *Filter {
	allowed := map[string]bool{"ru": true, "en": true}
	for _, l := range allowedLanguages {
		allowed[strings.ToLower(l)] = true
	}
	return &Filter{
		recent:        recent,
		allowedLangs:  allowed,
		boilerplateRx: compileAll(defaultBoilerplatePatterns),
		adMarkerRx:    compileAll(defaultAdMarkerPatterns),
	}
}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Decision is the outcome of filtering a single candidate article.
type Decision struct {
	Keep          bool
	Reason        string
	HashContent   string
	LikelyAd      bool
}

// NormalizeForHash lowercases, collapses whitespace, and strips
// punctuation so near-identical titles/bodies hash the same.
func NormalizeForHash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// HashContent computes the stable digest used for dedup, combining
// normalized title and body.
func HashContent(title, body string) string {
	sum := sha256.Sum256([]byte(NormalizeForHash(title) + "|" + NormalizeForHash(body)))
	return hex.EncodeToString(sum[:])
}

// Apply runs all four gates on candidate, in the order spec.md §4.5
// lists them: hash dedup, language, quality/boilerplate, ad pre-filter.
// existsPersisted should check the durable store (C9) for hashContent;
// ad pre-filter is advisory only — it never drops the item, it flags it
// for AI confirmation via analyze_article_complete.
func (f *Filter) Apply(ctx context.Context, candidate *entity.Article, language string, existsPersisted func(ctx context.Context, hashContent string) bool) Decision {
	hash := HashContent(candidate.Title, candidate.Content)

	if f.recent != nil && f.recent.Seen(ctx, hash) {
		return Decision{Keep: false, Reason: "duplicate_recent", HashContent: hash}
	}
	if existsPersisted != nil && existsPersisted(ctx, hash) {
		return Decision{Keep: false, Reason: "duplicate_persisted", HashContent: hash}
	}

	if language != "" && !f.allowedLangs[strings.ToLower(language)] {
		return Decision{Keep: false, Reason: "language_not_allowed", HashContent: hash}
	}

	if f.looksLikeBoilerplate(candidate.Content) {
		return Decision{Keep: false, Reason: "boilerplate", HashContent: hash}
	}

	if f.recent != nil {
		f.recent.Remember(ctx, hash, time.Now())
	}

	return Decision{Keep: true, HashContent: hash, LikelyAd: f.looksLikeAd(candidate.Title + " " + candidate.Content)}
}

func (f *Filter) looksLikeBoilerplate(body string) bool {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return true
	}
	for _, rx := range f.boilerplateRx {
		if rx.MatchString(trimmed) {
			return true
		}
	}
	return false
}

func (f *Filter) looksLikeAd(text string) bool {
	for _, rx := range f.adMarkerRx {
		if rx.MatchString(text) {
			return true
		}
	}
	return false
}
