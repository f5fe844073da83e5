// Package store defines the work item repository backed by the relational
// database. All cross-worker coordination happens through this layer; the
// claim primitive in the Postgres implementation is what lets independent
// scraper instances share the same table safely.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/devharvest/internal/model"
)

// ErrNotFound is returned when an operation targets a username that does
// not exist in the developers table.
var ErrNotFound = errors.New("developer not found")

// Store is the repository interface for work items.
type Store interface {
	// Migrate creates or verifies the schema.
	Migrate(ctx context.Context) error

	// InsertBatch bulk-inserts usernames with INITIAL status. Duplicates
	// are ignored; the returned count reflects only newly inserted rows.
	InsertBatch(ctx context.Context, usernames []string) (int64, error)

	CountByStatus(ctx context.Context, status model.Status) (int, error)
	ListByStatus(ctx context.Context, status model.Status, limit int) ([]string, error)

	// ClaimBatch atomically claims up to limit rows in fromStatus for the
	// given owner, first releasing PROCESSING claims older than staleAfter
	// back to fromStatus. Claimed rows move to PROCESSING with the claim
	// fields set. Returns the claimed usernames in insertion order.
	ClaimBatch(ctx context.Context, fromStatus model.Status, limit int, owner string, staleAfter time.Duration) ([]string, error)

	// CommitProfile writes the profile, replaces child rows, sets status
	// PROFILED and profiled_at, resets retry_count and clears the claim,
	// all in one transaction. Returns the developer id or ErrNotFound.
	CommitProfile(ctx context.Context, profile *model.Profile) (int64, error)

	// ListSocialLinks returns the stored social links for a developer.
	ListSocialLinks(ctx context.Context, username string) ([]model.SocialLink, error)

	// CommitEnhancement marks the named platforms verified, sets status
	// ENHANCED and enhanced_at, and clears the claim.
	CommitEnhancement(ctx context.Context, username string, verifiedPlatforms []string) error

	// RecordFailure marks the row FAILED, increments retry_count and
	// clears the claim.
	RecordFailure(ctx context.Context, username, errMsg string) error

	// RecordRetry increments retry_count, clears the claim and returns the
	// row to backTo so any worker may re-claim it. Returns the new count.
	RecordRetry(ctx context.Context, username, errMsg string, backTo model.Status) (int, error)

	Stats(ctx context.Context) (model.Stats, error)

	Close()
}
