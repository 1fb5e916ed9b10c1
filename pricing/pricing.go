// Package pricing classifies listing price texts and converts them to an
// absolute monthly figure.
package pricing

import (
	"math"
	"strconv"
	"strings"

	"github.com/use-agent/appraise/models"
)

// Markers are the substrings that classify a price text.
type Markers struct {
	// Area marks a price per square unit, e.g. "м²".
	Area []string `yaml:"area"`
	// Annual marks a yearly price, e.g. "год".
	Annual []string `yaml:"annual"`
}

// Russian markers shared by Avito and Cian.
var Russian = Markers{
	Area:   []string{"м²", "м2"},
	Annual: []string{"год"},
}

// Quote is a parsed price text.
type Quote struct {
	Amount int
	Unit   models.PriceUnit
	// Annual is set when an annual marker accompanies a per-area unit,
	// as in "12 000 ₽ за м² в год".
	Annual bool
}

// ParsePrice extracts the first run of digits and spaces that holds at
// least one digit and classifies the unit. Area markers win over annual
// markers. The unit is returned even when no amount is found.
func ParsePrice(text string, m Markers) (Quote, error) {
	q := Quote{Unit: classify(text, m)}
	if q.Unit == models.UnitPerAreaMonthly {
		q.Annual = containsAny(text, m.Annual)
	}

	run := firstDigitRun(text)
	if run == "" {
		return q, models.NewExtractError(models.ErrCodePriceUnparsed, "no amount in price text", nil)
	}
	amount, err := strconv.Atoi(run)
	if err != nil {
		return q, models.NewExtractError(models.ErrCodePriceUnparsed, "amount out of range", err)
	}
	q.Amount = amount
	return q, nil
}

func classify(text string, m Markers) models.PriceUnit {
	switch {
	case containsAny(text, m.Area):
		return models.UnitPerAreaMonthly
	case containsAny(text, m.Annual):
		return models.UnitAnnual
	}
	return models.UnitMonthly
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// firstDigitRun returns the digits of the first maximal run of digits and
// spaces (regular, non-breaking or thin) that contains a digit.
func firstDigitRun(text string) string {
	var b strings.Builder
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\u00a0' || r == '\u202f' || r == '\u2009':
			// Grouping space: keeps the run going.
		default:
			if b.Len() > 0 {
				return b.String()
			}
		}
	}
	return b.String()
}

// Normalize converts an amount to the monthly price stored on the record.
// A per-area price needs the area; without it the manual-entry sentinel
// is returned instead of a guess.
func Normalize(q Quote, area *float64) *models.Price {
	amount := float64(q.Amount)
	switch q.Unit {
	case models.UnitPerAreaMonthly:
		if area == nil || *area <= 0 {
			return models.ManualPrice()
		}
		total := amount * *area
		if q.Annual {
			total /= 12
		}
		return models.Amount(round(total, 1))
	case models.UnitAnnual:
		return models.Amount(round(amount/12, 1))
	default:
		return models.Amount(amount)
	}
}

// PerAreaFact reads a "price per unit" fact row as a monthly price per
// square metre. ok is false for labels that are not price facts.
func PerAreaFact(label, value string) (perM2 float64, ok bool) {
	num, found := extractNumber(value)
	if !found {
		return 0, false
	}
	switch {
	case strings.Contains(label, "Цена за метр"):
		if strings.Contains(value, "в год") {
			return num / 12, true
		}
		return num, true
	case strings.Contains(label, "Цена за сотку"):
		return num / 100, true
	case strings.Contains(label, "Цена за гектар"):
		return num / 10000, true
	}
	return 0, false
}

// PerArea divides a numeric price by the area, rounded to 2 decimals.
func PerArea(price *models.Price, area *float64) *float64 {
	if price == nil || price.Manual || area == nil || *area <= 0 {
		return nil
	}
	v := round(price.Value / *area, 2)
	return &v
}

// extractNumber collects the digits of text, keeping a decimal point or
// comma that follows a digit. Superscript area units are ignored.
func extractNumber(text string) (float64, bool) {
	text = strings.ReplaceAll(text, "²", "")
	var b strings.Builder
	prevDigit := false
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDigit = true
		case (r == '.' || r == ',') && prevDigit && !strings.Contains(b.String(), "."):
			b.WriteByte('.')
			prevDigit = false
		default:
			prevDigit = false
		}
	}
	s := strings.TrimSuffix(b.String(), ".")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
