// Package linkcheck verifies that stored social links still resolve. It
// is the enrichment implementation shipped with the enhancement stage;
// platform-specific scraping can replace or extend it behind the same
// Enricher interface.
package linkcheck

import (
	"context"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/devharvest/internal/model"
)

// Config controls the checker's HTTP behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Checker fetches each classified link and reports the platforms whose
// URLs answered successfully. Unclassified other_N links are skipped;
// only known platforms carry a verified flag worth setting.
type Checker struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs a Checker.
func New(cfg Config, logger *zap.Logger) *Checker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{cfg: cfg, logger: logger}
}

// Enrich implements pipeline.Enricher.
func (c *Checker) Enrich(ctx context.Context, username string, socialLinks []model.SocialLink) ([]string, error) {
	var verified []string
	for _, link := range socialLinks {
		if err := ctx.Err(); err != nil {
			return verified, err
		}
		if strings.HasPrefix(link.Platform, "other_") {
			continue
		}
		if c.alive(link.URL) {
			verified = append(verified, link.Platform)
		} else {
			c.logger.Debug("social link did not verify",
				zap.String("username", username),
				zap.String("platform", link.Platform),
				zap.String("url", link.URL))
		}
	}
	return verified, nil
}

// alive reports whether the URL answers with a non-error status. A dead
// or unreachable link is an expected outcome, not an error.
func (c *Checker) alive(url string) bool {
	collector := colly.NewCollector()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.SetRequestTimeout(c.cfg.Timeout)

	ok := false
	collector.OnResponse(func(r *colly.Response) {
		ok = r.StatusCode >= 200 && r.StatusCode < 400
	})

	if err := collector.Visit(url); err != nil {
		return false
	}
	collector.Wait()
	return ok
}
