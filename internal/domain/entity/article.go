// Package entity defines the core domain entities and validation logic for the application.
// It contains the fundamental business objects such as Article and Source, along with
// their validation rules and domain-specific errors.
package entity

import "time"

// AdType enumerates the kinds of advertisement an article can be classified as.
type AdType string

const (
	AdTypeNone             AdType = ""
	AdTypeProductPromotion AdType = "product_promotion"
	AdTypeServicePromotion AdType = "service_promotion"
	AdTypeSponsored        AdType = "sponsored_content"
	AdTypeAffiliate        AdType = "affiliate"
)

// MediaType enumerates the kinds of media attached to an article.
type MediaType string

const (
	MediaTypeImage    MediaType = "image"
	MediaTypeVideo    MediaType = "video"
	MediaTypeDocument MediaType = "document"
)

// MediaFile is one media attachment harvested from an article's source.
type MediaFile struct {
	URL       string    `json:"url"`
	Type      MediaType `json:"type"`
	Thumbnail string    `json:"thumbnail,omitempty"`
}

// Article represents one item ingested from a Source, enriched incrementally
// by the content extractor and the AI client.
type Article struct {
	ID       int64
	SourceID int64

	Title   string
	URL     string // canonical key, unique
	Content string // full article body, may be large
	Summary string // LLM output

	PublishedAt time.Time
	FetchedAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	SummaryProcessed  bool
	CategoryProcessed bool
	AdProcessed       bool

	// HashContent is a stable digest over normalize(title)+normalize(content),
	// used by the Smart Filter for dedup.
	HashContent string

	IsAdvertisement bool
	AdConfidence    float64
	AdType          AdType
	AdReasoning     string
	AdMarkers       []string

	MediaFiles []MediaFile
}

// Validate checks the invariants spec.md §3 places on Article.
func (a *Article) Validate() error {
	if err := ValidateURL(a.URL); err != nil {
		return err
	}
	if a.Title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if a.PublishedAt.IsZero() {
		return &ValidationError{Field: "published_at", Message: "published_at is required"}
	}
	if !a.FetchedAt.IsZero() && a.PublishedAt.After(a.FetchedAt.Add(24*time.Hour)) {
		return &ValidationError{Field: "published_at", Message: "published_at exceeds fetched_at skew tolerance"}
	}
	if a.IsAdvertisement && !a.AdProcessed {
		return &ValidationError{Field: "ad_processed", Message: "is_advertisement requires ad_processed"}
	}
	if a.AdConfidence < 0 || a.AdConfidence > 1 {
		return &ValidationError{Field: "ad_confidence", Message: "ad_confidence must be in [0,1]"}
	}
	return nil
}

// Locked reports whether the article has finished AI processing and must no
// longer be mutated, except for media_files backfill.
func (a *Article) Locked() bool {
	return a.AdProcessed && a.CategoryProcessed
}
