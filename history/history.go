// Package history parses the rendered text of a price-history tooltip into
// dated price entries.
package history

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/use-agent/appraise/models"
)

// Grammar describes the tooltip text of one site. Token patterns must
// match a whole token.
type Grammar struct {
	Day   *regexp.Regexp
	Month *regexp.Regexp
	Year  *regexp.Regexp

	// Currency lists the tokens that terminate a price.
	Currency []string

	// Signs lists prefixes of a change figure printed after a price,
	// e.g. "+" and "−". Only consulted when CaptureDelta is set.
	Signs []string
	// Negative lists the subset of Signs that mean a decrease.
	Negative []string

	// CaptureDelta attaches a signed figure that directly follows an entry
	// to that entry. When unset such figures are skipped like any label.
	CaptureDelta bool
}

// Russian is the grammar of Avito and Cian tooltips.
var Russian = Grammar{
	Day:      regexp.MustCompile(`^\d{1,2}$`),
	Month:    regexp.MustCompile(`^[А-Яа-яЁё]+\.?$`),
	Year:     regexp.MustCompile(`^\d{4}$`),
	Currency: []string{"₽", "руб.", "руб"},
	Signs:    []string{"+", "−", "-", "–"},
	Negative: []string{"−", "-", "–"},
}

type state int

const (
	seekingDate state = iota
	accumulatingDigits
	accumulatingDelta
)

// Parse returns the entries in order of appearance. Text without a
// date/price pattern yields an empty, non-nil slice.
func (g Grammar) Parse(text string) []models.PriceHistoryEntry {
	tokens := g.tokenize(text)
	entries := make([]models.PriceHistoryEntry, 0)

	var (
		st       = seekingDate
		date     string
		digits   strings.Builder
		negative bool
		// canDelta is set right after an entry is emitted.
		canDelta bool
	)

	for i := 0; i < len(tokens); {
		tok := tokens[i]
		switch st {
		case seekingDate:
			if i+2 < len(tokens) && g.isDate(tokens[i], tokens[i+1], tokens[i+2]) {
				date = tokens[i] + " " + tokens[i+1] + " " + tokens[i+2]
				digits.Reset()
				st = accumulatingDigits
				canDelta = false
				i += 3
				continue
			}
			if g.CaptureDelta && canDelta {
				if sign, rest, ok := g.splitSign(tok); ok {
					negative = contains(g.Negative, sign)
					digits.Reset()
					digits.WriteString(rest)
					st = accumulatingDelta
					canDelta = false
					i++
					continue
				}
			}
			canDelta = false
			i++

		case accumulatingDigits:
			switch {
			case i+2 < len(tokens) && g.isDate(tok, tokens[i+1], tokens[i+2]):
				// A new date interrupts the run.
				st = seekingDate
			case isDigits(tok):
				digits.WriteString(tok)
				i++
			case g.isCurrency(tok):
				if price, err := strconv.Atoi(digits.String()); err == nil && digits.Len() > 0 {
					entries = append(entries, models.PriceHistoryEntry{Date: date, Price: price})
					canDelta = true
				}
				st = seekingDate
				i++
			default:
				// Interrupted run: drop it and read tok as a possible date start.
				st = seekingDate
			}

		case accumulatingDelta:
			switch {
			case isDigits(tok):
				digits.WriteString(tok)
				i++
			case g.isCurrency(tok):
				if d, err := strconv.Atoi(digits.String()); err == nil && digits.Len() > 0 {
					if negative {
						d = -d
					}
					entries[len(entries)-1].Delta = &d
				}
				st = seekingDate
				i++
			default:
				st = seekingDate
			}
		}
	}
	return entries
}

// tokenize normalizes whitespace and splits currency markers glued to the
// preceding digits ("000₽").
func (g Grammar) tokenize(text string) []string {
	text = strings.NewReplacer("\u00a0", " ", "\u202f", " ", "\u2009", " ").Replace(text)
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		split := false
		for _, c := range g.Currency {
			if len(f) > len(c) && strings.HasSuffix(f, c) && isDigits(strings.TrimSuffix(f, c)) {
				out = append(out, strings.TrimSuffix(f, c), c)
				split = true
				break
			}
		}
		if !split {
			out = append(out, f)
		}
	}
	return out
}

func (g Grammar) isDate(day, month, year string) bool {
	return g.Day.MatchString(day) && g.Month.MatchString(month) && g.Year.MatchString(year)
}

func (g Grammar) isCurrency(tok string) bool {
	return contains(g.Currency, tok)
}

// splitSign reports the sign prefix of tok and the digits after it. A bare
// sign yields an empty rest.
func (g Grammar) splitSign(tok string) (sign, rest string, ok bool) {
	for _, s := range g.Signs {
		if !strings.HasPrefix(tok, s) {
			continue
		}
		rest = strings.TrimPrefix(tok, s)
		if rest == "" || isDigits(rest) {
			return s, rest, true
		}
	}
	return "", "", false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
