package pattern

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"

	"dbanon/internal/anonymize"
	"dbanon/internal/config"
)

// operators maps entity categories to their anonymization strategy.
type operators struct {
	entities           map[string]config.EntityRule
	defaultReplacement string
}

func newOperators(cfg config.Anonymize) operators {
	repl := cfg.DefaultReplacement
	if repl == "" {
		repl = config.DefaultReplacement
	}
	return operators{entities: cfg.Entities, defaultReplacement: repl}
}

// apply rewrites text span by span. Spans are processed in start order;
// a span overlapping the previously applied one is dropped. Offsets refer to
// the input text, so the output is assembled into a separate builder.
func (o operators) apply(text string, spans []anonymize.Span) (string, error) {
	if len(spans) == 0 {
		return text, nil
	}

	ordered := make([]anonymize.Span, len(spans))
	copy(ordered, spans)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	var sb strings.Builder
	pos := 0
	for _, s := range ordered {
		if s.Start < pos {
			continue // overlaps the previous replacement
		}
		if s.Start > len(text) || s.End > len(text) || s.End < s.Start {
			return "", fmt.Errorf("pattern: span [%d,%d) out of range for %d-byte text", s.Start, s.End, len(text))
		}
		sb.WriteString(text[pos:s.Start])
		sb.WriteString(o.render(s.Category, text[s.Start:s.End]))
		pos = s.End
	}
	sb.WriteString(text[pos:])
	return sb.String(), nil
}

// render produces the replacement for one detected value.
func (o operators) render(category, value string) string {
	rule, ok := o.entities[category]
	if !ok {
		return o.defaultReplacement
	}
	switch rule.Strategy {
	case "mask":
		return mask(category, value)
	case "hash":
		return fmt.Sprintf("%016x", xxh3.HashString(value))
	default: // replace
		if rule.Replacement != "" {
			return rule.Replacement
		}
		return "<" + category + ">"
	}
}

// mask partially hides a value while keeping enough shape to stay readable.
// Emails keep the first characters of the local part and the TLD; everything
// else keeps the first two runes per word.
func mask(category, value string) string {
	if category == "EMAIL_ADDRESS" {
		return maskEmail(value)
	}
	return maskWords(value)
}

// maskEmail renders "ka***@g****.com" style output.
func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return maskWords(email)
	}
	user, domain := email[:at], email[at+1:]

	masked := maskTail(user, 2)

	if dot := strings.LastIndexByte(domain, '.'); dot > 0 {
		masked += "@" + maskTail(domain[:dot], 1) + domain[dot:]
	} else {
		masked += "@" + domain
	}
	return masked
}

// maskWords masks each whitespace-separated word, keeping its first two runes:
// "John Doe" -> "Jo** Do*".
func maskWords(v string) string {
	words := strings.Fields(v)
	if len(words) == 0 {
		return v
	}
	for i, w := range words {
		words[i] = maskTail(w, 2)
	}
	return strings.Join(words, " ")
}

// maskTail keeps the first keep runes of s and stars the rest. Strings of
// keep runes or fewer are returned unchanged.
func maskTail(s string, keep int) string {
	r := []rune(s)
	if len(r) <= keep {
		return s
	}
	return string(r[:keep]) + strings.Repeat("*", len(r)-keep)
}
