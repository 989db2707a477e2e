// Package pattern implements a regex-based content classifier satisfying the
// anonymize.Classifier interface. It detects common PII shapes (emails, phone
// numbers, SSNs, credit cards, IP addresses) without any external model, which
// makes it the default capability for runs that cannot ship an NLP engine.
//
// Detection runs against a diacritics-folded copy of the input so that
// decorated text ("tél: 06-12…") still matches the ASCII patterns; span
// offsets always refer to the original text.
package pattern

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"dbanon/internal/anonymize"
	"dbanon/internal/config"
)

// recognizer couples one compiled pattern with its category and base
// confidence. score may adjust the base confidence per match (e.g. Luhn).
type recognizer struct {
	category   string
	re         *regexp.Regexp
	confidence float64
	score      func(match string, base float64) float64
}

var recognizers = []recognizer{
	{
		category:   "EMAIL_ADDRESS",
		re:         regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
		confidence: 0.9,
	},
	{
		category:   "US_SSN",
		re:         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		confidence: 0.85,
	},
	{
		category:   "CREDIT_CARD",
		re:         regexp.MustCompile(`\b(?:\d[ \-]?){13,19}\b`),
		confidence: 0.3,
		score:      scoreLuhn,
	},
	{
		category:   "IP_ADDRESS",
		re:         regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		confidence: 0.8,
	},
	{
		category:   "PHONE_NUMBER",
		re:         regexp.MustCompile(`(?:\+?\d{1,3}[ \-.]?)?(?:\(\d{2,4}\)[ \-.]?)?\d{2,4}[ \-.]\d{3,4}[ \-.]?\d{0,4}\b`),
		confidence: 0.6,
	},
}

// scoreLuhn raises the confidence of digit runs that pass the Luhn checksum
// and keeps the low base confidence for those that do not.
func scoreLuhn(match string, base float64) float64 {
	var digits []int
	for _, r := range match {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 {
		return base
	}
	sum, double := 0, false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	if sum%10 == 0 {
		return 0.9
	}
	return base
}

// Classifier is the built-in pattern-based classifier. One value may carry
// multiple categories; overlapping detections are resolved in favor of the
// earlier, higher-confidence span at anonymization time.
type Classifier struct {
	active []recognizer
	ops    operators
	fold   transform.Transformer
}

// New builds a Classifier detecting exactly the categories configured in cfg
// (disabled entries are skipped) and using cfg's anonymization strategies.
// Categories without a built-in recognizer are ignored here; an external
// capability may still produce them.
func New(cfg config.Anonymize) *Classifier {
	var active []recognizer
	for _, r := range recognizers {
		rule, ok := cfg.Entities[r.category]
		if !ok || !rule.On() {
			continue
		}
		active = append(active, r)
	}
	return &Classifier{
		active: active,
		ops:    newOperators(cfg),
		fold:   transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
	}
}

// Analyze runs every active recognizer over text and returns the detected
// spans ordered by start offset. The language tag is accepted for interface
// parity; the built-in patterns are language-independent.
func (c *Classifier) Analyze(ctx context.Context, text, language string) ([]anonymize.Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	folded := c.foldText(text)

	var spans []anonymize.Span
	for _, r := range c.active {
		searchFrom := 0
		for _, loc := range r.re.FindAllStringIndex(folded, -1) {
			match := folded[loc[0]:loc[1]]
			start, end, ok := locateInOriginal(text, folded, match, loc[0], searchFrom)
			if !ok {
				continue
			}
			searchFrom = end
			conf := r.confidence
			if r.score != nil {
				conf = r.score(match, conf)
			}
			spans = append(spans, anonymize.Span{
				Start:      start,
				End:        end,
				Category:   r.category,
				Confidence: conf,
			})
		}
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].Confidence > spans[j].Confidence
	})
	return spans, nil
}

// foldText strips combining marks so decorated characters match the ASCII
// patterns. On any transform error the original text is used unchanged.
func (c *Classifier) foldText(text string) string {
	folded, _, err := transform.String(c.fold, text)
	if err != nil {
		return text
	}
	return folded
}

// locateInOriginal maps a match found in the folded text back to offsets in
// the original. When folding did not change the text the offsets carry over
// directly; otherwise the matched literal is searched for in the original
// starting at searchFrom, which succeeds whenever the match itself contains
// no folded characters. The caller advances searchFrom past each mapped
// match so repeated literals map to distinct occurrences.
func locateInOriginal(original, folded, match string, foldedStart, searchFrom int) (int, int, bool) {
	if original == folded {
		return foldedStart, foldedStart + len(match), true
	}
	if searchFrom > len(original) {
		return 0, 0, false
	}
	i := strings.Index(original[searchFrom:], match)
	if i < 0 {
		return 0, 0, false
	}
	return searchFrom + i, searchFrom + i + len(match), true
}

// Anonymize rewrites text by replacing every span with the configured
// operator output for its category. Spans overlapping an earlier span are
// dropped. The result preserves all text outside the spans.
func (c *Classifier) Anonymize(text string, spans []anonymize.Span) (string, error) {
	return c.ops.apply(text, spans)
}
