package entity

import (
	"errors"
	"fmt"
	"time"
)

// SourceType enumerates the kinds of Source Adapter (C6) a Source is routed to.
type SourceType string

const (
	SourceTypeRSS       SourceType = "rss"
	SourceTypeTelegram  SourceType = "telegram"
	SourceTypeGeneric   SourceType = "generic"
	SourceTypeCustom    SourceType = "custom"
)

// Source represents a configured origin the pipeline ingests from.
type Source struct {
	ID   int64
	Name string
	URL  string

	SourceType SourceType
	Enabled    bool

	// Config holds per-type adapter configuration (CSS selectors for a
	// Page-Monitor source, channel handle for Telegram, etc).
	Config map[string]string

	FetchInterval time.Duration
	LastFetch     *time.Time
	LastSuccess   *time.Time
	LastError     string
	ErrorCount    int

	CreatedAt time.Time
	UpdatedAt time.Time
}

var validSourceTypes = map[SourceType]bool{
	SourceTypeRSS:      true,
	SourceTypeTelegram: true,
	SourceTypeGeneric:  true,
	SourceTypeCustom:   true,
}

// Validate checks the invariants spec.md §3 places on Source.
func (s *Source) Validate() error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if s.SourceType == "" {
		s.SourceType = SourceTypeRSS
	}
	if !validSourceTypes[s.SourceType] {
		return fmt.Errorf("invalid source_type: %s (must be one of rss, telegram, generic, custom)", s.SourceType)
	}
	if s.SourceType != SourceTypeGeneric {
		if err := ValidateURL(s.URL); err != nil {
			return err
		}
	}
	if s.SourceType == SourceTypeCustom && len(s.Config) == 0 {
		return errors.New("config is required for custom sources")
	}
	if s.FetchInterval < 0 {
		return &ValidationError{Field: "fetch_interval", Message: "fetch_interval cannot be negative"}
	}
	if s.ErrorCount < 0 {
		return &ValidationError{Field: "error_count", Message: "error_count cannot be negative"}
	}
	return nil
}

// RecordSuccess resets the error streak, per the monotonic error_count invariant.
func (s *Source) RecordSuccess(at time.Time) {
	s.LastSuccess = &at
	s.LastFetch = &at
	s.LastError = ""
	s.ErrorCount = 0
}

// RecordFailure increments the error streak and records the last error.
func (s *Source) RecordFailure(at time.Time, err error) {
	s.LastFetch = &at
	s.ErrorCount++
	if err != nil {
		s.LastError = err.Error()
	}
}

// ShouldDisable reports whether the source has crossed the soft-disable
// threshold and should stop being scheduled for ingestion.
func (s *Source) ShouldDisable(threshold int) bool {
	return threshold > 0 && s.ErrorCount >= threshold
}
