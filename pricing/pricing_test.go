package pricing

import (
	"testing"

	"github.com/use-agent/appraise/models"
)

func ptr(v float64) *float64 { return &v }

func TestParsePrice(t *testing.T) {
	tests := []struct {
		text string
		want Quote
	}{
		{"150 000 ₽ в месяц", Quote{150000, models.UnitMonthly, false}},
		{"1 200 ₽ в месяц за м²", Quote{1200, models.UnitPerAreaMonthly, false}},
		{"900 ₽ за м2 в месяц", Quote{900, models.UnitPerAreaMonthly, false}},
		{"2 400 000 ₽ в год", Quote{2400000, models.UnitAnnual, false}},
		{"12 000 ₽ за м² в год", Quote{12000, models.UnitPerAreaMonthly, true}},
		{"Цена 75 000 ₽", Quote{75000, models.UnitMonthly, false}},
		{"от 5 000 ₽, залог 10 000 ₽", Quote{5000, models.UnitMonthly, false}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ParsePrice(tt.text, Russian)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParsePriceAreaMarkerAlwaysWins(t *testing.T) {
	texts := []string{
		"м²", "1 000 ₽ за м²", "в год 1 000 за м²", "м2 год", "цена договорная за м²",
	}
	for _, text := range texts {
		q, _ := ParsePrice(text, Russian)
		if q.Unit != models.UnitPerAreaMonthly {
			t.Errorf("ParsePrice(%q) unit = %s, want per_area_monthly", text, q.Unit)
		}
	}
}

func TestParsePriceNoDigits(t *testing.T) {
	_, err := ParsePrice("Цена договорная", Russian)
	if !models.IsCode(err, models.ErrCodePriceUnparsed) {
		t.Errorf("err = %v, want PRICE_UNPARSED", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		quote Quote
		area  *float64
		want  models.Price
	}{
		{"per area with area", Quote{1000, models.UnitPerAreaMonthly, false}, ptr(50), models.Price{Value: 50000.0}},
		{"per area rounds to one decimal", Quote{333, models.UnitPerAreaMonthly, false}, ptr(12.37), models.Price{Value: 4119.2}},
		{"per area per year", Quote{12000, models.UnitPerAreaMonthly, true}, ptr(50), models.Price{Value: 50000}},
		{"per area per year rounds", Quote{1000, models.UnitPerAreaMonthly, true}, ptr(1), models.Price{Value: 83.3}},
		{"per area without area", Quote{1000, models.UnitPerAreaMonthly, false}, nil, models.Price{Manual: true}},
		{"per area with zero area", Quote{1000, models.UnitPerAreaMonthly, false}, ptr(0), models.Price{Manual: true}},
		{"annual", Quote{120000, models.UnitAnnual, false}, nil, models.Price{Value: 10000}},
		{"annual rounds", Quote{100000, models.UnitAnnual, false}, nil, models.Price{Value: 8333.3}},
		{"monthly unchanged", Quote{45000, models.UnitMonthly, false}, ptr(50), models.Price{Value: 45000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.quote, tt.area)
			if *got != tt.want {
				t.Errorf("Normalize = %+v, want %+v", *got, tt.want)
			}
			if !got.Manual && got.Value < 0 {
				t.Errorf("negative price %v", got.Value)
			}
		})
	}
}

func TestNormalizeSentinelString(t *testing.T) {
	got := Normalize(Quote{Amount: 1000, Unit: models.UnitPerAreaMonthly}, nil)
	if got.String() != "manual entry required" {
		t.Errorf("String() = %q", got.String())
	}
}

func TestPerAreaFact(t *testing.T) {
	tests := []struct {
		label, value string
		want         float64
		ok           bool
	}{
		{"Цена за метр", "1 500 ₽/м² в месяц", 1500, true},
		{"Цена за метр", "12 000 ₽/м² в год", 1000, true},
		{"Цена за метр", "2 000 ₽/м²", 2000, true},
		{"Цена за сотку", "50 000 ₽", 500, true},
		{"Цена за гектар", "1 000 000 ₽", 100, true},
		{"Этаж", "3 из 9", 0, false},
		{"Цена за метр", "договорная", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.label+" "+tt.value, func(t *testing.T) {
			got, ok := PerAreaFact(tt.label, tt.value)
			if ok != tt.ok || got != tt.want {
				t.Errorf("PerAreaFact = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestPerArea(t *testing.T) {
	if got := PerArea(models.Amount(100000), ptr(30)); got == nil || *got != 3333.33 {
		t.Errorf("PerArea = %v, want 3333.33", got)
	}
	if got := PerArea(models.ManualPrice(), ptr(30)); got != nil {
		t.Errorf("PerArea(manual) = %v, want nil", *got)
	}
	if got := PerArea(models.Amount(100), nil); got != nil {
		t.Errorf("PerArea(no area) = %v, want nil", *got)
	}
}
