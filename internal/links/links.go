// Package links classifies free-text profile fields into canonical social
// platform URLs. Extraction is a pure function of the input text and sits
// outside the concurrency-critical path.
package links

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/devharvest/internal/model"
)

// platformPattern pairs a platform tag with its URL pattern and a
// canonical URL template. First match wins per platform; the table order
// is the storage order of the resulting links.
type platformPattern struct {
	platform  string
	pattern   *regexp.Regexp
	canonical string
}

var platformPatterns = []platformPattern{
	{"twitter", regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?(?:twitter\.com|x\.com)/([a-zA-Z0-9_]+)`), "https://twitter.com/%s"},
	{"linkedin", regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?linkedin\.com/in/([a-zA-Z0-9\-]+)`), "https://linkedin.com/in/%s"},
	{"facebook", regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?facebook\.com/([a-zA-Z0-9.]+)`), "https://facebook.com/%s"},
	{"instagram", regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?instagram\.com/([a-zA-Z0-9_.]+)`), "https://instagram.com/%s"},
	{"telegram", regexp.MustCompile(`(?i)(?:https?://)?(?:t\.me|telegram\.me)/([a-zA-Z0-9_]+)`), "https://t.me/%s"},
	{"youtube", regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?youtube\.com/(?:c/|channel/|@)?([a-zA-Z0-9_\-]+)`), "https://youtube.com/@%s"},
	{"medium", regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?medium\.com/@?([a-zA-Z0-9_\-]+)`), "https://medium.com/@%s"},
	{"dev_to", regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?dev\.to/([a-zA-Z0-9_\-]+)`), "https://dev.to/%s"},
	{"hashnode", regexp.MustCompile(`(?i)(?:https?://)?([a-zA-Z0-9_\-]+)\.hashnode\.dev`), "https://%s.hashnode.dev"},
	{"stackoverflow", regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?stackoverflow\.com/users/([0-9]+)`), "https://stackoverflow.com/users/%s"},
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)

var knownDomains = []string{
	"twitter.com", "x.com", "linkedin.com", "facebook.com",
	"instagram.com", "t.me", "telegram.me", "youtube.com",
	"medium.com", "dev.to", "hashnode.dev", "stackoverflow.com",
}

// Extract classifies the bio and blog text into platform links. A
// non-empty twitterHandle pins the twitter link directly, taking
// precedence over anything found in the text. Well-formed URLs that match
// no known platform domain are collected in order, de-duplicated, and
// tagged other_1, other_2, ...
func Extract(bio, blog, twitterHandle string) []model.SocialLink {
	var parts []string
	if bio != "" {
		parts = append(parts, bio)
	}
	if blog != "" {
		parts = append(parts, blog)
	}
	text := strings.Join(parts, " ")

	var out []model.SocialLink
	for _, pp := range platformPatterns {
		if pp.platform == "twitter" && twitterHandle != "" {
			out = append(out, model.SocialLink{
				Platform: "twitter",
				URL:      fmt.Sprintf(pp.canonical, twitterHandle),
			})
			continue
		}
		m := pp.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		out = append(out, model.SocialLink{
			Platform: pp.platform,
			URL:      fmt.Sprintf(pp.canonical, m[1]),
		})
	}

	seen := make(map[string]bool)
	n := 0
	for _, raw := range urlPattern.FindAllString(text, -1) {
		if knownDomain(raw) || seen[raw] {
			continue
		}
		seen[raw] = true
		n++
		out = append(out, model.SocialLink{
			Platform: fmt.Sprintf("other_%d", n),
			URL:      raw,
		})
	}
	return out
}

func knownDomain(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, domain := range knownDomains {
		if strings.Contains(lower, domain) {
			return true
		}
	}
	return false
}
