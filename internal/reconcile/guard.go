package reconcile

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Guard removes rows that restate the bill's totals, taxes or fees
type Guard struct {
	cfg        Config
	keywords   [][]string
	qualifiers map[string]bool
	levies     map[string]bool
	epsilon    decimal.Decimal
}

// connectives introduce a description after a levy keyword, as in "GST on Room Rent"
var connectives = map[string]bool{"on": true, "for": true, "at": true}

// NewGuard creates a Guard from the keyword sets in cfg
func NewGuard(cfg Config) *Guard {
	g := &Guard{
		cfg:        cfg,
		qualifiers: make(map[string]bool, len(cfg.SummaryQualifiers)),
		levies:     make(map[string]bool, len(cfg.LevyKeywords)),
		epsilon:    decimal.NewFromFloat(cfg.OutlierSumEpsilon),
	}
	for _, kw := range cfg.ForbiddenKeywords {
		if tokens := tokenize(kw); len(tokens) > 0 {
			g.keywords = append(g.keywords, tokens)
		}
	}
	for _, q := range cfg.SummaryQualifiers {
		g.qualifiers[strings.ToLower(q)] = true
	}
	for _, l := range cfg.LevyKeywords {
		g.levies[strings.Join(tokenize(l), " ")] = true
	}
	return g
}

// Filter returns the items that survive the keyword and outlier-sum checks,
// plus a record of every item removed
func (g *Guard) Filter(items []LineItem) ([]LineItem, []Removal) {
	kept := make([]LineItem, 0, len(items))
	var removed []Removal

	for _, item := range items {
		if kw, ok := g.summaryKeyword(item.Name); ok {
			removed = append(removed, g.remove(item, RemovalKeyword, fmt.Sprintf("summary row keyword %q", kw)))
			continue
		}
		kept = append(kept, item)
	}

	if idx := g.sumOfOthers(kept); idx >= 0 {
		removed = append(removed, g.remove(kept[idx], RemovalOutlierSum, "amount equals sum of other items"))
		kept = append(kept[:idx:idx], kept[idx+1:]...)
	}

	return kept, removed
}

func (g *Guard) remove(item LineItem, kind RemovalKind, reason string) Removal {
	slog.Info("Removing double-counted item",
		"name", item.Name,
		"amount", item.Amount.String(),
		"page", item.Page,
		"reason", reason,
	)
	return Removal{Item: item, Kind: kind, Reason: reason}
}

// summaryKeyword reports whether name is a summary row: it must contain a
// forbidden keyword as whole tokens and every other token must be a summary
// qualifier or numeric noise such as "9%". A levy keyword may also be followed
// by a connective and a free-form description, which is not checked.
func (g *Guard) summaryKeyword(name string) (string, bool) {
	tokens := tokenize(name)
	if len(tokens) == 0 {
		return "", false
	}

	covered := make([]bool, len(tokens))
	matched := ""
	var levyEnds []int
	for _, kw := range g.keywords {
		joined := strings.Join(kw, " ")
		for i := 0; i+len(kw) <= len(tokens); i++ {
			if !tokensMatch(tokens[i:i+len(kw)], kw) {
				continue
			}
			for j := range kw {
				covered[i+j] = true
			}
			if matched == "" {
				matched = joined
			}
			if g.levies[joined] {
				levyEnds = append(levyEnds, i+len(kw))
			}
		}
	}
	if matched == "" {
		return "", false
	}

	end := len(tokens)
	for _, from := range levyEnds {
		end = min(end, g.descriptionStart(tokens, covered, from))
	}

	for i, tok := range tokens[:end] {
		if covered[i] || g.isQualifier(tok) || isNoiseToken(tok) {
			continue
		}
		return "", false
	}
	return matched, true
}

// descriptionStart returns the index of the first connective after a levy
// keyword ending at from, skipping qualifiers and noise, or len(tokens)
func (g *Guard) descriptionStart(tokens []string, covered []bool, from int) int {
	for i := from; i < len(tokens); i++ {
		tok := tokens[i]
		if connectives[tok] {
			return i
		}
		if covered[i] || g.isQualifier(tok) || isNoiseToken(tok) {
			continue
		}
		break
	}
	return len(tokens)
}

// isQualifier tolerates a plural "s" or "es" like tokensMatch does
func (g *Guard) isQualifier(tok string) bool {
	if g.qualifiers[tok] {
		return true
	}
	if base, ok := strings.CutSuffix(tok, "es"); ok && g.qualifiers[base] {
		return true
	}
	base, ok := strings.CutSuffix(tok, "s")
	return ok && g.qualifiers[base]
}

// sumOfOthers returns the index of an item whose amount equals the sum of all
// other amounts, or -1. Needs at least three items to be meaningful.
func (g *Guard) sumOfOthers(items []LineItem) int {
	if len(items) < 3 {
		return -1
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}

	for i, item := range items {
		others := total.Sub(item.Amount)
		if !others.IsPositive() {
			continue
		}
		if item.Amount.Sub(others).Abs().LessThanOrEqual(g.epsilon) {
			return i
		}
	}
	return -1
}

// tokenize lowercases s and splits it on anything that is not a letter, digit or %
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '%'
	})
}

// tokensMatch compares token sequences, tolerating a plural "s" on each token
func tokensMatch(tokens, keyword []string) bool {
	for i, kw := range keyword {
		tok := tokens[i]
		if tok != kw && tok != kw+"s" && tok != kw+"es" {
			return false
		}
	}
	return true
}

func isNoiseToken(tok string) bool {
	for _, r := range tok {
		if unicode.IsDigit(r) || r == '%' {
			return true
		}
	}
	return false
}
