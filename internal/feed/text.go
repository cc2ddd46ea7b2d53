package feed

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"mvdan.cc/xurls/v2"
)

const minPartsForTelegramChannelAtSignSlug = 3

var telegramAtSignSlugRe = regexp.MustCompile(`(\s|^)@(\w{5,32})(\s|$)`)

// HTMLToText flattens an HTML fragment into single-spaced plain text.
// Input that fails to parse is returned with whitespace collapsed.
func HTMLToText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}

	doc.Find("script, style, noscript").Remove()
	doc.Find("br").ReplaceWithHtml(" ")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6, blockquote").AppendHtml(" ")

	return strings.Join(strings.Fields(doc.Text()), " ")
}

// FindFeedURLs extracts https links and @channel references from free text,
// de-duplicated, links first.
func FindFeedURLs(text string) ([]string, error) {
	text = strings.TrimSpace(text)

	httpsURLRe, err := xurls.StrictMatchingScheme("https://")
	if err != nil {
		return nil, fmt.Errorf("create regexp: %w", err)
	}

	var found []string
	seen := make(map[string]struct{})

	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}

		seen[u] = struct{}{}
		found = append(found, u)
	}

	for _, u := range httpsURLRe.FindAllString(text, -1) {
		add(u)
	}

	for _, m := range telegramAtSignSlugRe.FindAllStringSubmatch(text, -1) {
		if len(m) < minPartsForTelegramChannelAtSignSlug {
			continue
		}

		slug := strings.TrimSpace(m[2])
		if !telegramSlugRe.MatchString(slug) {
			continue
		}

		add(TelegramChannelCanonicalURL(slug))
	}

	return found, nil
}
