package helpers

import (
	"html"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy

	reportPolicyOnce sync.Once
	reportPolicy     *bluemonday.Policy
)

// StrictHTMLPolicy strips every element and attribute.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// ReportHTMLPolicy allows the markup rendered reports use (headings, lists,
// tables, code, links) and nothing executable.
func ReportHTMLPolicy() *bluemonday.Policy {
	reportPolicyOnce.Do(func() {
		policy := bluemonday.UGCPolicy()
		policy.AllowAttrs("class").OnElements("code", "pre")
		policy.AllowURLSchemes("http", "https", "mailto")
		policy.RequireParseableURLs(true)
		policy.AddTargetBlankToFullyQualifiedLinks(true)
		reportPolicy = policy
	})
	return reportPolicy
}

// SanitizeHTMLStrict removes every HTML tag from s and trims it.
func SanitizeHTMLStrict(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.TrimSpace(StrictHTMLPolicy().Sanitize(s))
}

// SanitizeReportHTML cleans rendered report markup.
func SanitizeReportHTML(s string) string {
	return ReportHTMLPolicy().Sanitize(s)
}

var spaceRun = regexp.MustCompile(`\s+`)

// CleanTopic turns user input into a single line topic: tags removed,
// control characters dropped, whitespace collapsed.
func CleanTopic(s string) string {
	s = html.UnescapeString(SanitizeHTMLStrict(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

var unsafeFilename = regexp.MustCompile(`[^\p{L}\p{N}_.\-]+`)

// SafeFilename keeps letters, digits, '_', '-' and '.', after turning spaces
// into underscores.
func SafeFilename(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
	s = unsafeFilename.ReplaceAllString(s, "")
	s = strings.Trim(s, ".")
	if s == "" {
		return "untitled"
	}
	return s
}
