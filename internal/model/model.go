// Package model defines the domain types shared across the scraper pipeline.
package model

import "time"

// Status is the enrichment lifecycle state of a developer record.
//
// Transitions: INITIAL -> PROCESSING -> {PROFILED, INITIAL, FAILED};
// PROFILED -> PROCESSING -> {ENHANCED, PROFILED, FAILED}. FAILED and
// ENHANCED are terminal.
type Status string

const (
	StatusInitial    Status = "INITIAL"
	StatusProcessing Status = "PROCESSING"
	StatusProfiled   Status = "PROFILED"
	StatusEnhanced   Status = "ENHANCED"
	StatusFailed     Status = "FAILED"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusInitial, StatusProcessing, StatusProfiled, StatusEnhanced, StatusFailed:
		return true
	}
	return false
}

// Developer is one work item: a discovered GitHub identity progressing
// through the pipeline. The claim fields (ClaimedBy, ProcessingStartedAt)
// are set only while Status is PROCESSING.
type Developer struct {
	ID                  int64
	Username            string
	Status              Status
	RetryCount          int
	LastError           string
	ClaimedBy           string
	ProcessingStartedAt *time.Time

	Name            string
	Email           string
	Bio             string
	Location        string
	Company         string
	Blog            string
	TwitterUsername string
	Hireable        *bool
	Followers       int
	Following       int
	PublicRepos     int
	PublicGists     int
	ProfileURL      string
	AvatarURL       string
	CreatedAt       *time.Time
	UpdatedAt       *time.Time

	ScrapedAt  *time.Time
	ProfiledAt *time.Time
	EnhancedAt *time.Time
}

// SocialLink is a classified link belonging to one developer; unique per
// (developer, platform). Platform is a known tag or "other_N" for
// unclassified URLs.
type SocialLink struct {
	Platform string
	URL      string
	Verified bool
}

// Repository is one of a developer's most recently updated projects.
// Rank 0 is the most recently updated.
type Repository struct {
	Name        string
	Stars       int
	Language    string
	URL         string
	Description string
	Rank        int
}

// Profile is the payload committed when a fetch succeeds. It carries the
// profile attributes plus the replacement set of child rows.
type Profile struct {
	Username        string
	Name            string
	Email           string
	Bio             string
	Location        string
	Company         string
	Blog            string
	TwitterUsername string
	Hireable        *bool
	Followers       int
	Following       int
	PublicRepos     int
	PublicGists     int
	ProfileURL      string
	AvatarURL       string
	CreatedAt       *time.Time
	UpdatedAt       *time.Time

	SocialLinks  []SocialLink
	Repositories []Repository
}

// Stats aggregates repository counts for reporting.
type Stats struct {
	ByStatus       map[Status]int `json:"by_status"`
	Total          int            `json:"total"`
	WithEmail      int            `json:"with_email"`
	WithSocial     int            `json:"with_social"`
	AvgFollowers   int            `json:"avg_followers"`
	AvgPublicRepos int            `json:"avg_public_repos"`
}
