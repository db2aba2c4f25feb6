/**
 * @description
 * Pure helpers around inbound treasurer email: reply-text extraction,
 * auto-responder detection, and sender validation. Callers must run the
 * auto-reply and sender checks before trusting any classification result:
 * a vacation responder or a message from the wrong address must never drive
 * a state transition.
 */

package app

import (
	"regexp"
	"strings"
)

var (
	quoteHeaderRe = regexp.MustCompile(`(?i)^On .+ wrote:`)
	// Banner lines such as "-----Original Message-----" or "________" that
	// introduce quoted or forwarded content. Everything after them is dropped.
	separatorBannerRe = regexp.MustCompile(`^[-_=]{4,}`)
	closingLineRe     = regexp.MustCompile(`(?i)^(best regards|kind regards|warm regards|best wishes|best|regards|cheers|sincerely)[,.]?$`)
	// Two-capitalized-word line, e.g. "Jane Doe", taken as a signature name.
	nameLineRe = regexp.MustCompile(`^[A-Z][a-z]+ [A-Z][a-z]+$`)

	displayNameAddrRe = regexp.MustCompile(`<([^<>]+)>`)
)

// ExtractReplyText returns the top reply text of an email body, with quoted
// and forwarded sections removed and everything at or below the signature cut
// off. Lines are joined with single spaces; an empty result stays empty.
func ExtractReplyText(body string) string {
	var kept []string
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))

		if strings.HasPrefix(line, ">") {
			continue
		}
		if quoteHeaderRe.MatchString(line) ||
			strings.HasPrefix(line, "From:") ||
			strings.HasPrefix(line, "Sent:") ||
			separatorBannerRe.MatchString(line) {
			break
		}
		if line == "--" || closingLineRe.MatchString(line) || nameLineRe.MatchString(line) {
			break
		}
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, " ")
}

var autoReplyPhrases = []string{
	"out of office",
	"out of the office",
	"away from the office",
	"automatic reply",
	"auto-reply",
	"autoreply",
	"auto response",
	"on vacation",
	"on annual leave",
	"do not reply to this",
}

// IsAutoReply reports whether an inbound message is an automated responder
// rather than a human reply, based on standard headers and common phrasing.
func IsAutoReply(subject, body string, headers map[string]string) bool {
	if v := headerValue(headers, "Auto-Submitted"); v != "" && !strings.EqualFold(v, "no") {
		return true
	}
	if headerValue(headers, "X-Auto-Response-Suppress") != "" {
		return true
	}
	if v := headerValue(headers, "Precedence"); strings.EqualFold(v, "auto_reply") {
		return true
	}

	haystack := strings.ToLower(subject + "\n" + body)
	for _, phrase := range autoReplyPhrases {
		if strings.Contains(haystack, phrase) {
			return true
		}
	}
	return false
}

func headerValue(headers map[string]string, name string) string {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// ValidateSenderEmail reports whether `from` is the expected address, either
// verbatim or inside a "Display Name <addr>" form.
func ValidateSenderEmail(from, expected string) bool {
	fromAddr := strings.TrimSpace(from)
	expectedAddr := strings.TrimSpace(expected)
	if fromAddr == "" || expectedAddr == "" {
		return false
	}
	if strings.EqualFold(fromAddr, expectedAddr) {
		return true
	}
	if match := displayNameAddrRe.FindStringSubmatch(fromAddr); match != nil {
		return strings.EqualFold(strings.TrimSpace(match[1]), expectedAddr)
	}
	return false
}
