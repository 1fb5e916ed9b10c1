package history

import (
	"reflect"
	"testing"

	"github.com/use-agent/appraise/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []models.PriceHistoryEntry
	}{
		{
			name: "two entries with grouped thousands",
			text: "12 января 2024 150 000 ₽ 15 февраля 2024 160 000 ₽",
			want: []models.PriceHistoryEntry{
				{Date: "12 января 2024", Price: 150000},
				{Date: "15 февраля 2024", Price: 160000},
			},
		},
		{
			name: "no pattern",
			text: "Подписаться на изменения цены",
			want: []models.PriceHistoryEntry{},
		},
		{
			name: "empty",
			text: "",
			want: []models.PriceHistoryEntry{},
		},
		{
			name: "non-breaking spaces and newlines",
			text: "3 марта 2023\n1 200 000 ₽\nОпубликовано",
			want: []models.PriceHistoryEntry{{Date: "3 марта 2023", Price: 1200000}},
		},
		{
			name: "currency glued to digits",
			text: "1 мая 2024 95 000₽",
			want: []models.PriceHistoryEntry{{Date: "1 мая 2024", Price: 95000}},
		},
		{
			name: "labels between entries are skipped",
			text: "История цены 12 января 2024 150 000 ₽ Снижение 15 февраля 2024 140 000 ₽ Следить",
			want: []models.PriceHistoryEntry{
				{Date: "12 января 2024", Price: 150000},
				{Date: "15 февраля 2024", Price: 140000},
			},
		},
		{
			name: "delta figures are skipped by default",
			text: "12 января 2024 150 000 ₽ 15 февраля 2024 160 000 ₽ +10 000 ₽",
			want: []models.PriceHistoryEntry{
				{Date: "12 января 2024", Price: 150000},
				{Date: "15 февраля 2024", Price: 160000},
			},
		},
		{
			name: "interrupted run is dropped and next date still read",
			text: "12 января 2024 150 15 февраля 2024 160 000 ₽",
			want: []models.PriceHistoryEntry{{Date: "15 февраля 2024", Price: 160000}},
		},
		{
			name: "currency without digits",
			text: "12 января 2024 ₽",
			want: []models.PriceHistoryEntry{},
		},
		{
			name: "order is kept, not sorted",
			text: "15 февраля 2024 160 000 ₽ 12 января 2024 150 000 ₽",
			want: []models.PriceHistoryEntry{
				{Date: "15 февраля 2024", Price: 160000},
				{Date: "12 января 2024", Price: 150000},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Russian.Parse(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseCaptureDelta(t *testing.T) {
	g := Russian
	g.CaptureDelta = true

	got := g.Parse("12 января 2024 150 000 ₽ 15 февраля 2024 140 000 ₽ −10 000 ₽ 1 марта 2024 145 000 ₽ + 5 000 ₽")
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(got), got)
	}
	if got[0].Delta != nil {
		t.Errorf("entry 0 delta = %d, want none", *got[0].Delta)
	}
	if got[1].Delta == nil || *got[1].Delta != -10000 {
		t.Errorf("entry 1 delta = %v, want -10000", got[1].Delta)
	}
	if got[2].Delta == nil || *got[2].Delta != 5000 {
		t.Errorf("entry 2 delta = %v, want 5000", got[2].Delta)
	}
}

func TestParseIsPure(t *testing.T) {
	text := "12 января 2024 150 000 ₽"
	a := Russian.Parse(text)
	b := Russian.Parse(text)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("repeated parse differs: %+v vs %+v", a, b)
	}
}
