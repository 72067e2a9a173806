// Package normalize turns raw post text and link entities into canonical,
// display-ready form. Everything here is pure: short-link expansion results
// are supplied by the caller, never fetched.
package normalize

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	urlRe           = regexp.MustCompile(`(?i)https?://[^\s<>()]+`)
	trailingPunctRe = regexp.MustCompile(`[)\],.?!:;]+$`)
	statusURLRe     = regexp.MustCompile(`(?i)https?://(?:www\.)?(?:mobile\.)?(?:x|twitter)\.com/(?:i/(?:web/)?|[^/]+/)?status/(\d+)`)
	multiSpaceRe    = regexp.MustCompile(`\s{2,}`)
)

// shortenerDomains are hosts whose links are opaque until expanded.
var shortenerDomains = map[string]bool{
	"t.co": true,
}

// Link is a structured link entity attached to a post, as supplied upstream.
type Link struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url,omitempty"`
	DisplayURL  string `json:"display_url,omitempty"`
}

// QuoteRef points at another post on the same platform that should render as
// an embedded quote rather than a plain link.
type QuoteRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ExternalLink is a normalized outbound link kept for display.
type ExternalLink struct {
	URL        string `json:"url"`
	DisplayURL string `json:"display_url"`
	Domain     string `json:"domain"`
	Unresolved bool   `json:"unresolved,omitempty"`
}

// Input carries everything Normalize needs for one post.
type Input struct {
	PostID   string
	Text     string
	Links    []Link
	HasMedia bool

	// Expansions maps short URLs to their pre-resolved final destination.
	Expansions map[string]string
}

// Result is the normalized view of a post's text and links.
type Result struct {
	DisplayText   string
	QuoteRefs     []QuoteRef
	ExternalLinks []ExternalLink
}

// CleanURL trims punctuation commonly attached to URLs in plain text.
func CleanURL(raw string) string {
	cleaned := strings.TrimSpace(raw)
	return trailingPunctRe.ReplaceAllString(cleaned, "")
}

// ParseStatusID extracts the status id from a status URL on the platform.
// Returns "" when the URL is not a status link.
func ParseStatusID(raw string) string {
	if raw == "" {
		return ""
	}
	m := statusURLRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractURLs pulls deduplicated plain URLs out of text, in order.
func ExtractURLs(text string) []string {
	if text == "" {
		return nil
	}
	var urls []string
	seen := make(map[string]bool)
	for _, match := range urlRe.FindAllString(text, -1) {
		u := CleanURL(match)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

func domainFor(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Host)
	if i := strings.Index(host, ":"); i >= 0 {
		host = host[:i]
	}
	return host
}

func displayURLFor(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	display := strings.ToLower(parsed.Host) + parsed.Path
	if parsed.RawQuery != "" {
		display += "?" + parsed.RawQuery
	}
	return display
}

func isShortener(raw string) bool {
	return shortenerDomains[domainFor(raw)]
}

type structuredLink struct {
	raw        string
	resolved   string
	displayURL string
}

// mergeLinks combines the structured link entities with URLs found in text,
// resolving short links through the supplied expansion map.
func mergeLinks(in Input) []structuredLink {
	var merged []structuredLink
	type key struct{ raw, resolved string }
	seen := make(map[key]bool)

	resolve := func(u string) string {
		if u == "" || !isShortener(u) {
			return u
		}
		if final, ok := in.Expansions[u]; ok && final != "" {
			return CleanURL(final)
		}
		return u
	}

	for _, l := range in.Links {
		raw := CleanURL(l.URL)
		expanded := CleanURL(l.ExpandedURL)
		resolved := expanded
		if resolved == "" {
			resolved = raw
		}
		resolved = resolve(resolved)
		if resolved == "" {
			continue
		}
		k := key{raw, resolved}
		if seen[k] {
			continue
		}
		seen[k] = true
		if raw == "" {
			raw = resolved
		}
		merged = append(merged, structuredLink{raw: raw, resolved: resolved, displayURL: strings.TrimSpace(l.DisplayURL)})
	}

	known := make(map[string]bool)
	for _, l := range merged {
		known[l.raw] = true
		known[l.resolved] = true
	}
	for _, raw := range ExtractURLs(in.Text) {
		if known[raw] {
			continue
		}
		merged = append(merged, structuredLink{raw: raw, resolved: resolve(raw)})
	}

	return merged
}

// Normalize applies the link rules for one post:
//   - links to the post itself are removed,
//   - status links to other posts become quote-embed refs,
//   - remaining links are kept as external links, expanded where possible,
//   - a trailing unresolved short link is pruned when the post has media or
//     when another link already resolved to an external target.
func Normalize(in Input) Result {
	merged := mergeLinks(in)

	urlsToRemove := make(map[string]bool)
	replacements := make(map[string]string)
	seenInline := make(map[string]bool)
	seenExternal := make(map[string]bool)

	var unresolvedShort []structuredLink
	hasResolvedNonShort := false
	for _, l := range merged {
		if isShortener(l.resolved) {
			unresolvedShort = append(unresolvedShort, l)
		} else if l.resolved != "" {
			hasResolvedNonShort = true
		}
	}

	// Trailing unresolved short links are usually redundant self/media
	// pointers and should not render in downstream output.
	if (in.HasMedia || hasResolvedNonShort) && len(unresolvedShort) > 0 {
		unresolvedValues := make(map[string]bool)
		for _, l := range unresolvedShort {
			unresolvedValues[l.raw] = true
			unresolvedValues[l.resolved] = true
		}
		ordered := ExtractURLs(in.Text)
		trailing := ""
		if len(ordered) > 0 {
			trailing = ordered[len(ordered)-1]
		}
		if trailing != "" && unresolvedValues[trailing] {
			for _, l := range unresolvedShort {
				if trailing == l.raw || trailing == l.resolved {
					urlsToRemove[l.raw] = true
					urlsToRemove[l.resolved] = true
				}
			}
		}
	}

	var result Result
	for _, l := range merged {
		if urlsToRemove[l.raw] || urlsToRemove[l.resolved] {
			continue
		}

		statusID := ParseStatusID(l.resolved)
		if statusID == "" {
			statusID = ParseStatusID(l.raw)
		}
		if statusID != "" {
			urlsToRemove[l.raw] = true
			urlsToRemove[l.resolved] = true
			if statusID == in.PostID || seenInline[statusID] {
				continue
			}
			seenInline[statusID] = true
			result.QuoteRefs = append(result.QuoteRefs, QuoteRef{ID: statusID, URL: l.resolved})
			continue
		}

		if l.resolved == "" || seenExternal[l.resolved] {
			continue
		}
		if l.raw != "" && l.raw != l.resolved {
			replacements[l.raw] = l.resolved
		}
		seenExternal[l.resolved] = true

		display := l.displayURL
		if display == "" {
			display = displayURLFor(l.resolved)
		}
		result.ExternalLinks = append(result.ExternalLinks, ExternalLink{
			URL:        l.resolved,
			DisplayURL: display,
			Domain:     domainFor(l.resolved),
			Unresolved: isShortener(l.resolved),
		})
	}

	text := replaceURLsInText(in.Text, replacements)
	result.DisplayText = removeURLsFromText(text, urlsToRemove)
	return result
}

func replaceURLsInText(text string, replacements map[string]string) string {
	if text == "" || len(replacements) == 0 {
		return text
	}
	sources := sortedByLengthDesc(replacements)
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		updated := line
		for _, src := range sources {
			repl := replacements[src]
			if src == "" || repl == "" {
				continue
			}
			updated = replaceURLToken(updated, src, repl)
		}
		updated = strings.TrimSpace(multiSpaceRe.ReplaceAllString(updated, " "))
		if updated != "" {
			lines = append(lines, updated)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func removeURLsFromText(text string, urls map[string]bool) string {
	if text == "" || len(urls) == 0 {
		return text
	}
	var sources []string
	for u := range urls {
		if u != "" {
			sources = append(sources, u)
		}
	}
	sortByLengthDesc(sources)
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		updated := line
		for _, src := range sources {
			updated = replaceURLToken(updated, src, "")
		}
		updated = strings.TrimSpace(multiSpaceRe.ReplaceAllString(updated, " "))
		if updated != "" {
			lines = append(lines, updated)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// replaceURLToken swaps a URL for its replacement only when it stands alone
// as a whitespace-delimited token.
func replaceURLToken(line, src, repl string) string {
	re, err := regexp.Compile(`(^|\s)` + regexp.QuoteMeta(src) + `(\s|$)`)
	if err != nil {
		return line
	}
	template := "${1}" + strings.ReplaceAll(repl, "$", "$$") + "${2}"
	if repl != "" && strings.Contains(repl, src) {
		return re.ReplaceAllString(line, template)
	}
	// Repeat until stable: the trailing-delimiter group consumes the space
	// between adjacent URL tokens, hiding the second occurrence from a
	// single pass.
	for {
		updated := re.ReplaceAllString(line, template)
		if updated == line {
			return line
		}
		line = updated
	}
}

func sortedByLengthDesc(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortByLengthDesc(keys)
	return keys
}

func sortByLengthDesc(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && len(s[j]) > len(s[j-1]); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
