/**
 * @description
 * Weighted-keyword classifier for inbound treasurer approval emails. It is a
 * pure function: no I/O, fully deterministic, and auditable. The returned
 * matched keywords explain every decision. This is deliberately not NLP; the
 * weight tables are plain data so they can be tuned and tested without
 * touching the scoring control flow.
 *
 * The classifier never commits a decision it is not confident about: a
 * low-confidence lead below the commit threshold is downgraded to "unclear"
 * so that ambiguous replies always fall back to a human.
 */

package app

import (
	"regexp"
	"strings"
)

// Classification statuses.
const (
	ParsedApproved = "approved"
	ParsedRejected = "rejected"
	ParsedUnclear  = "unclear"
)

// Confidence tiers.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// ClassificationResult is the full classifier output for one email body.
type ClassificationResult struct {
	Status           string   `json:"status"`
	Confidence       string   `json:"confidence"`
	MatchedKeywords  []string `json:"matched_keywords"`
	ExtractedMessage *string  `json:"extracted_message,omitempty"`
}

type keywordWeight struct {
	phrase string
	weight int
	re     *regexp.Regexp
}

func kw(phrase string, weight int) keywordWeight {
	return keywordWeight{
		phrase: phrase,
		weight: weight,
		// Word-boundary anchored so "ok" cannot match inside "broken".
		re: regexp.MustCompile(`\b` + regexp.QuoteMeta(phrase) + `\b`),
	}
}

// approvalKeywords and rejectionKeywords carry the decision weight tables.
// Strong explicit verbs score 10+, softer affirmations and refusals less.
// Table order fixes the order of reported matched keywords.
var approvalKeywords = []keywordWeight{
	kw("approval granted", 12),
	kw("approved", 10),
	kw("approve", 10),
	kw("signed off", 8),
	kw("looks good", 8),
	kw("sounds good", 8),
	kw("green light", 8),
	kw("go ahead", 8),
	kw("lgtm", 8),
	kw("confirmed", 8),
	kw("sign off", 7),
	kw("proceed", 7),
	kw("all good", 7),
	kw("yes", 6),
	kw("ok", 5),
	kw("okay", 5),
	kw("thanks", 5),
	kw("thank you", 5),
}

var rejectionKeywords = []keywordWeight{
	kw("do not approve", 12),
	kw("don't approve", 12),
	kw("not approved", 12),
	kw("cannot approve", 11),
	kw("can't approve", 11),
	kw("rejected", 10),
	kw("reject", 10),
	kw("denied", 10),
	kw("declined", 10),
	kw("deny", 9),
	kw("decline", 9),
	kw("hold off", 8),
	kw("put on hold", 8),
	kw("on hold", 7),
	kw("stop", 7),
	kw("needs changes", 7),
	kw("incorrect", 6),
	kw("wrong amount", 6),
}

// unclearSignals flag hedging language and questions. Their presence does not
// decide the outcome by itself but caps how confident a keyword lead can be.
var unclearSignals = []*regexp.Regexp{
	regexp.MustCompile(`\?`),
	regexp.MustCompile(`\b(maybe|perhaps|possibly)\b`),
	regexp.MustCompile(`\bnot sure\b`),
	regexp.MustCompile(`\bunsure\b`),
	regexp.MustCompile(`\bcan you\b`),
	regexp.MustCompile(`\bcould you\b`),
	regexp.MustCompile(`\bclarify\b`),
	regexp.MustCompile(`\bneed more (info|information|details)\b`),
	regexp.MustCompile(`\blet me check\b`),
	regexp.MustCompile(`\bget back to you\b`),
}

// Classify turns a raw email body into an approval decision with a confidence
// tier and the keyword evidence behind it.
func Classify(body string) ClassificationResult {
	normalized := strings.ToLower(strings.TrimSpace(body))

	approvalScore, approvalMatches := scoreKeywords(normalized, approvalKeywords)
	rejectionScore, rejectionMatches := scoreKeywords(normalized, rejectionKeywords)

	hasUnclearSignal := false
	for _, re := range unclearSignals {
		if re.MatchString(normalized) {
			hasUnclearSignal = true
			break
		}
	}

	result := ClassificationResult{
		Status:          ParsedUnclear,
		Confidence:      ConfidenceLow,
		MatchedKeywords: append(approvalMatches, rejectionMatches...),
	}
	if extracted := ExtractReplyText(body); extracted != "" {
		result.ExtractedMessage = &extracted
	}

	if approvalScore == 0 && rejectionScore == 0 {
		result.MatchedKeywords = []string{}
		return result
	}

	winning := approvalScore
	difference := approvalScore - rejectionScore
	switch {
	case approvalScore > rejectionScore:
		result.Status = ParsedApproved
	case rejectionScore > approvalScore:
		result.Status = ParsedRejected
		winning = rejectionScore
		difference = rejectionScore - approvalScore
	default:
		// Equal non-zero scores cancel out.
		return result
	}

	if hasUnclearSignal {
		if difference >= 10 {
			result.Confidence = ConfidenceMedium
		} else {
			result.Confidence = ConfidenceLow
		}
	} else {
		switch {
		case difference >= 15 && winning >= 10:
			result.Confidence = ConfidenceHigh
		case difference >= 8 || winning >= 7:
			result.Confidence = ConfidenceMedium
		default:
			result.Confidence = ConfidenceLow
		}
	}

	// A weak, low-confidence lead is never reported as a committed decision.
	if result.Confidence == ConfidenceLow && winning < 6 {
		result.Status = ParsedUnclear
	}

	return result
}

func scoreKeywords(normalized string, table []keywordWeight) (int, []string) {
	score := 0
	matches := []string{}
	for _, kw := range table {
		if kw.re.MatchString(normalized) {
			score += kw.weight
			matches = append(matches, kw.phrase)
		}
	}
	return score, matches
}
