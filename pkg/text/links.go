// Package text extracts song links from free-form share text.
//
// Apps usually share a track as a sentence with a link somewhere in it and a
// handful of tracking parameters appended. ExtractLinks finds the links and
// strips the tracking noise so they can be handed to a resolver.
package text

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	urlRegex        = regexp.MustCompile(`https?://\S+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)

	trackingParams = []string{
		"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
		"si", "feature", "ref",
	}
)

// ExtractLinks returns every http(s) link in text, cleaned, in order of appearance.
func ExtractLinks(text string) []string {
	text = normalizeText(text)

	var links []string
	for _, match := range urlRegex.FindAllString(text, -1) {
		if link := cleanURL(match); link != "" {
			links = append(links, link)
		}
	}
	return links
}

// FirstLink returns the first link in text. When text holds no link it is
// returned trimmed so callers can still pass it on and get a proper
// unsupported-link error.
func FirstLink(text string) string {
	if links := ExtractLinks(text); len(links) > 0 {
		return links[0]
	}
	return strings.TrimSpace(text)
}

func normalizeText(text string) string {
	text = norm.NFKC.String(strings.TrimSpace(text))
	return whitespaceRegex.ReplaceAllString(text, " ")
}

func cleanURL(rawURL string) string {
	rawURL = strings.TrimRight(rawURL, ".,!?;)")

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}

	if u.RawQuery == "" {
		return u.String()
	}

	q := u.Query()
	for _, param := range trackingParams {
		q.Del(param)
	}
	u.RawQuery = q.Encode()

	return u.String()
}
