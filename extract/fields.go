package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/use-agent/appraise/cleaner"
)

// CleanAddress cuts the text at the first cut marker, drops every line
// containing a noise marker (transit times such as "5 мин."), and joins
// the remaining lines with single spaces.
func CleanAddress(text string, noise, cuts []string) string {
	for _, cut := range cuts {
		if i := strings.Index(text, cut); i >= 0 {
			text = text[:i]
		}
	}
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if containsAny(line, noise) {
			continue
		}
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, " ")
}

// StripWords removes UI labels such as "Свернуть" from text.
func StripWords(text string, words []string) string {
	for _, w := range words {
		text = strings.ReplaceAll(text, w, "")
	}
	return strings.TrimSpace(text)
}

var (
	areaInText = regexp.MustCompile(`(\d+[.,]?\d*)\s*м[²2]`)
	number     = regexp.MustCompile(`\d+[.,]?\d*`)
)

// AreaFromText finds the first "N м²" figure in text.
func AreaFromText(text string) *float64 {
	m := areaInText.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return parseFloat(m[1])
}

// AreaFromParams reads the first number of the first present key.
func AreaFromParams(params map[string]string, keys []string) *float64 {
	for _, k := range keys {
		if v, ok := params[k]; ok {
			if area := firstNumber(v); area != nil {
				return area
			}
		}
	}
	return nil
}

// AreaFromRange reads the lower bound of a "120 – 450 м²" range.
func AreaFromRange(value string) *float64 {
	lower, _, _ := strings.Cut(value, "–")
	return firstNumber(lower)
}

// LandArea converts a plot size to square metres: "сот." and bare numbers
// are hundredths of a hectare, "га" is hectares.
func LandArea(value string) *float64 {
	n := firstNumber(value)
	if n == nil {
		return nil
	}
	v := *n * 100
	if strings.Contains(value, "га") {
		v = *n * 10000
	}
	return &v
}

// FloorNumber keeps the listing's own floor from "3 из 9".
func FloorNumber(value string) string {
	floor, _, _ := strings.Cut(value, "из")
	return strings.TrimSpace(floor)
}

// ApplyAliases copies values of alias keys to their canonical key when the
// canonical key is absent.
func ApplyAliases(params map[string]string, aliases map[string]string) {
	for from, to := range aliases {
		v, ok := params[from]
		if !ok {
			continue
		}
		if _, exists := params[to]; !exists {
			params[to] = v
		}
	}
}

// Readable extracts a title and main text from the page HTML, narrowed to
// scope when it is non-empty. It serves listings whose markup no cascade
// recognizes.
func Readable(rawHTML, url string, scope Cascade) (title, text string, ok bool) {
	sels := make([]string, 0, len(scope))
	for _, s := range scope {
		if !s.IsText() {
			sels = append(sels, string(s))
		}
	}
	article, ok := cleaner.Fallback(rawHTML, url, strings.Join(sels, ", "))
	if !ok {
		return "", "", false
	}
	return article.Title, article.Text, true
}

// firstNumber ignores grouping spaces, so "1 200 м²" reads as 1200.
func firstNumber(s string) *float64 {
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "").Replace(s)
	m := number.FindString(s)
	if m == "" {
		return nil
	}
	return parseFloat(m)
}

func parseFloat(s string) *float64 {
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return nil
	}
	return &f
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
