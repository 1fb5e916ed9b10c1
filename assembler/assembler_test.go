package assembler

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/appraise/config"
	"github.com/use-agent/appraise/engine"
	"github.com/use-agent/appraise/engine/enginetest"
	"github.com/use-agent/appraise/models"
	"github.com/use-agent/appraise/session"
	"github.com/use-agent/appraise/shot"
	"github.com/use-agent/appraise/site"
)

func fastConfig() config.SessionConfig {
	return config.SessionConfig{
		PollInterval:    time.Millisecond,
		ReadyAttempts:   3,
		ReadyInterval:   time.Millisecond,
		DOMReadyTimeout: 20 * time.Millisecond,
		HoverSettle:     time.Millisecond,
	}
}

func fastProfile(p *site.Profile) *site.Profile {
	p = p.Clone()
	p.Readiness.Attempts = 3
	p.Readiness.Interval = time.Millisecond
	p.Readiness.Timeout = 20 * time.Millisecond
	p.Readiness.Settle = 0
	return p
}

func registry(t *testing.T) *site.Registry {
	t.Helper()
	reg, err := site.NewRegistry(fastProfile(site.Avito()), fastProfile(site.Cian()))
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func el(text string) *enginetest.Element {
	return enginetest.NewElement(text, engine.Rect{Width: 600, Height: 40})
}

func newAssembler(t *testing.T, page *enginetest.Page, op session.Operator, capturer *shot.Capturer) *Assembler {
	t.Helper()
	ctrl := session.NewController(page, op, fastConfig(), nil)
	return New(page, ctrl, registry(t), capturer, fastConfig(), nil)
}

func testCapturer(t *testing.T) *shot.Capturer {
	c := shot.NewCapturer(t.TempDir())
	c.Settle = 0
	return c
}

const avitoURL = "https://www.avito.ru/moskva/kommercheskaya_nedvizhimost/ofis_50_m_1234567?context=H4sIAAAA"

// avitoPage is a hydrated Avito listing with a working history tooltip.
type avitoPage struct {
	*enginetest.Page
	ad      *enginetest.Element
	trigger *enginetest.Element
}

func newAvitoPage() avitoPage {
	page := enginetest.NewPage()
	page.SetBody("Офис, 50 м²\n1 000 ₽ в месяц за м²\nИстория цены")

	page.Set("[data-marker='item-view/title-info']", el("Офис, 50 м²"))
	page.Set("[data-marker='item-view/title-info'] h1", el("Офис, 50 м²"))
	page.Set("[data-marker='item-view/item-price']", el("1 000 ₽ в месяц за м²"))
	page.Set("[data-marker='delivery/location']", el("Москва, ул. Тверская, 1\nПушкинская 5 мин.\nЧеховская 6–10 мин."))
	page.Set("[data-marker='item-view/item-description']", el("Офис в бизнес-центре, отдельный вход."))
	page.Set("[data-marker='seller-info/name']", el("ООО Ромашка"))
	page.Set("[data-marker='item-view/item-params'] li", el("Общая площадь: 50 м²"), el("Этаж: 3 из 9"))

	date := enginetest.NewElement("12 января 2024", engine.Rect{Left: 100, Top: 1400, Width: 200, Height: 20})
	page.Set("[data-marker='item-view/item-date']", date)

	ad := el("Реклама")
	desc := enginetest.NewElement("описание", engine.Rect{Left: 100, Top: 300, Width: 900, Height: 400})
	container := enginetest.NewElement("", engine.Rect{Left: 100, Top: 0, Width: 1200, Height: 1000})
	container.Children = map[engine.Selector][]*enginetest.Element{
		"div[class*='item-view-ads']":   {ad},
		"[id*='item-view-description']": {desc},
	}
	page.Set("div[class*='item-view-content']", container)

	trigger := enginetest.NewElement("История цены", engine.Rect{Left: 900, Top: 200, Width: 120, Height: 20})
	trigger.OnHover = func() {
		page.Set("[class*='tooltip']", enginetest.NewElement(
			"История цены 12 января 2024 150 000 ₽ 15 февраля 2024 160 000 ₽",
			engine.Rect{Left: 900, Top: 220, Width: 300, Height: 200}))
	}
	page.Set("text=История цены", trigger)
	return avitoPage{Page: page, ad: ad, trigger: trigger}
}

func TestBuildAvito(t *testing.T) {
	page := newAvitoPage()
	a := newAssembler(t, page.Page, nil, testCapturer(t))

	rec := a.Build(context.Background(), avitoURL)

	if rec.Status != models.StatusOK {
		t.Fatalf("status = %s, error = %+v", rec.Status, rec.Error)
	}
	if rec.URL != TruncateQuery(avitoURL) || rec.ID != "1234567" || rec.Site != "avito" {
		t.Errorf("identity = %q %q %q", rec.URL, rec.ID, rec.Site)
	}
	if rec.Title != "Офис, 50 м²" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.Address != "Москва, ул. Тверская, 1" {
		t.Errorf("address = %q", rec.Address)
	}
	if rec.SellerName != "ООО Ромашка" || rec.PublishedDate != "12 января 2024" {
		t.Errorf("seller/date = %q / %q", rec.SellerName, rec.PublishedDate)
	}
	if rec.AreaM2 == nil || *rec.AreaM2 != 50 {
		t.Errorf("area = %v", rec.AreaM2)
	}
	if rec.PriceUnit != models.UnitPerAreaMonthly || rec.Price == nil || rec.Price.Value != 50000 {
		t.Errorf("price = %v %v", rec.Price, rec.PriceUnit)
	}
	if rec.PricePerArea == nil || *rec.PricePerArea != 1000 {
		t.Errorf("price per m² = %v", rec.PricePerArea)
	}

	wantHistory := []models.PriceHistoryEntry{
		{Date: "12 января 2024", Price: 150000},
		{Date: "15 февраля 2024", Price: 160000},
	}
	if !reflect.DeepEqual(rec.PriceHistory, wantHistory) {
		t.Errorf("history = %+v", rec.PriceHistory)
	}

	shots := map[string]string{
		shot.FilePriceHistory:    rec.Screenshots.Top,
		shot.FileDescription:     rec.Screenshots.Description,
		shot.FilePublicationDate: rec.Screenshots.Bottom,
	}
	for name, path := range shots {
		if filepath.Base(path) != name {
			t.Errorf("slot for %s = %q", name, path)
			continue
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
	if !page.ad.Removed() || !slices.Contains(page.Events(), "resize") {
		t.Error("ads not removed before capture")
	}
	if page.ZoomFactor() != 0.8 {
		t.Errorf("zoom = %v", page.ZoomFactor())
	}
}

func TestBuildNotFound(t *testing.T) {
	page := enginetest.NewPage()
	page.SetBody("Объявление не найдено")
	a := newAssembler(t, page, nil, testCapturer(t))

	rec := a.Build(context.Background(), "https://www.avito.ru/moskva/ofis_1?x=1")

	if rec.Status != models.StatusPageNotFound || rec.URL != "https://www.avito.ru/moskva/ofis_1" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Title != "" || rec.Price != nil || len(rec.Screenshots.Paths()) != 0 {
		t.Errorf("fields extracted on a not-found page: %+v", rec)
	}
	if page.Queries() != 0 || len(page.Captures()) != 0 {
		t.Errorf("queries = %d, captures = %d", page.Queries(), len(page.Captures()))
	}
}

type operator struct {
	mu   sync.Mutex
	ivs  []session.Intervention
	hook func(session.Intervention)
}

func (o *operator) Notify(_ context.Context, iv session.Intervention) {
	o.mu.Lock()
	o.ivs = append(o.ivs, iv)
	o.mu.Unlock()
	go o.hook(iv)
}

func (o *operator) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.ivs)
}

// hydrateCian fills page with a Cian listing as it looks after a CAPTCHA.
func hydrateCian(page *enginetest.Page) {
	page.SetBody("Склад 600 м²\n1 200 000 ₽/год")
	page.Set("h1", el("Склад, 600 м²"))
	page.Set("[data-name='PriceInfo']", el("1 200 000 ₽/год"))
	page.Set("[data-name='Geo']", el("Москва, ЦАО, ул. Арбат, 10На карте"))
	page.Set("[data-name='Description']", el("Короткое описание"))
	page.Set("[data-name*='ObjectFactoids'] div",
		el("Общая площадь\n600 м²"), el("Этаж\n2 из 5"), el("Материал дома\nкирпич"), el("Участок\n15 сот."))

	fact := el("")
	fact.Children = map[engine.Selector][]*enginetest.Element{
		"span": {el("Цена за метр"), el("2 400 ₽/м² в год")},
	}
	page.Set("[data-name='OfferFactItem']", fact)

	expander := el("Узнать больше")
	expander.OnClick = func() {
		page.Set("[data-name='Description']", el("Полное описание склада, пандус, отопление Свернуть"))
	}
	page.Set("span[data-id='toggle'][data-mark='ShutterToggle']", expander)

	trigger := enginetest.NewElement("История", engine.Rect{Width: 100, Height: 20})
	trigger.OnHover = func() {
		page.Set("[class*='tooltip']", el("1 марта 2024 90 000 ₽"))
	}
	page.Set("[data-name='PriceHistory']", trigger)
}

func TestBuildBlockedThenResume(t *testing.T) {
	page := enginetest.NewPage()
	page.SetBody("Подтвердите, что вы не робот")

	op := &operator{hook: func(iv session.Intervention) {
		hydrateCian(page)
		iv.Gate.Resume()
	}}
	a := newAssembler(t, page, op, nil)

	rec := a.Build(context.Background(), "https://www.cian.ru/rent/commercial/298765432/")

	if op.count() != 1 {
		t.Fatalf("interventions = %d, want 1", op.count())
	}
	if rec.Status != models.StatusOK || rec.ID != "298765432" {
		t.Fatalf("record = %+v", rec)
	}
	if rec.Title != "Склад, 600 м²" {
		t.Errorf("title = %q, want the post-resume title", rec.Title)
	}
	if rec.Address != "Москва, ЦАО, ул. Арбат, 10" {
		t.Errorf("address = %q", rec.Address)
	}
	if rec.Description != "Полное описание склада, пандус, отопление" {
		t.Errorf("description = %q, want the expanded text", rec.Description)
	}
	if rec.PriceUnit != models.UnitAnnual || rec.Price == nil || rec.Price.Value != 100000 {
		t.Errorf("price = %v %v", rec.Price, rec.PriceUnit)
	}
	if rec.PricePerArea == nil || *rec.PricePerArea != 200 {
		t.Errorf("price per m² = %v", rec.PricePerArea)
	}
	if rec.AreaM2 == nil || *rec.AreaM2 != 600 {
		t.Errorf("area = %v", rec.AreaM2)
	}
	if rec.LandAreaM2 == nil || *rec.LandAreaM2 != 1500 {
		t.Errorf("land = %v", rec.LandAreaM2)
	}
	if rec.Params["Этаж"] != "2" || rec.Params["Материал стен"] != "кирпич" || rec.Params["Площадь участка"] != "1500" {
		t.Errorf("params = %v", rec.Params)
	}
	if len(rec.PriceHistory) != 1 || rec.PriceHistory[0].Price != 90000 {
		t.Errorf("history = %+v", rec.PriceHistory)
	}
	if len(page.Captures()) != 0 {
		t.Error("captured with screenshots disabled")
	}
}

func TestBuildBlockedCancelled(t *testing.T) {
	page := enginetest.NewPage()
	page.SetBody("captcha")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := newAssembler(t, page, &operator{hook: func(session.Intervention) { cancel() }}, nil)

	rec := a.Build(ctx, "https://www.cian.ru/rent/commercial/1/")

	if rec.Status != models.StatusBlockedUnresolved || rec.Error == nil || rec.Error.Code != models.ErrCodeBlocked {
		t.Errorf("record = %+v", rec)
	}
}

func TestBuildNavigationFailed(t *testing.T) {
	page := enginetest.NewPage()
	page.NavigateErr = errors.New("net::ERR_CONNECTION_RESET")
	a := newAssembler(t, page, nil, nil)

	rec := a.Build(context.Background(), "https://www.avito.ru/a_1")

	if rec.Status != models.StatusNavigationFailed || rec.Error == nil || rec.Error.Code != models.ErrCodeNavigation {
		t.Errorf("record = %+v", rec)
	}
}

func TestBuildUnknownSite(t *testing.T) {
	page := enginetest.NewPage()
	a := newAssembler(t, page, nil, nil)

	rec := a.Build(context.Background(), "https://example.com/listing/1")

	if rec.Status != models.StatusNavigationFailed || rec.Error.Code != models.ErrCodeInvalidInput {
		t.Errorf("record = %+v", rec)
	}
	if len(page.Navigated()) != 0 {
		t.Error("navigated to an unsupported site")
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	page := newAvitoPage()
	a := newAssembler(t, page.Page, nil, nil)

	encode := func() string {
		rec := a.Build(context.Background(), avitoURL)
		rec.ParsedAt = time.Time{}
		b, err := json.Marshal(rec)
		if err != nil {
			t.Fatal(err)
		}
		return string(b)
	}
	first, second := encode(), encode()
	if first != second {
		t.Errorf("records differ:\n%s\n%s", first, second)
	}
}

func TestApplyParamRules(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		rules  site.ParamRules
		title  string
		area   float64
		land   float64
	}{
		{
			name:   "area from title",
			params: map[string]string{"Этаж": "1"},
			rules:  site.Avito().Params,
			title:  "Помещение, 45,5 м²",
			area:   45.5,
		},
		{
			name:   "total area key wins over title",
			params: map[string]string{"Общая площадь": "52 м²"},
			rules:  site.Avito().Params,
			title:  "Помещение, 50 м²",
			area:   52,
		},
		{
			name:   "plain area is not a plot",
			params: map[string]string{"Площадь": "80 м²"},
			rules:  site.Avito().Params,
			title:  "Офис",
			area:   80,
		},
		{
			name:   "plot in hectares",
			params: map[string]string{"Площадь": "1,5 га"},
			rules:  site.Avito().Params,
			title:  "Участок",
			land:   15000,
		},
		{
			name:   "range lower bound",
			params: map[string]string{"Площади": "120 – 450 м²"},
			rules:  site.Cian().Params,
			area:   120,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			area, land := applyParamRules(tt.params, tt.rules, tt.title)
			if got := deref(area); got != tt.area {
				t.Errorf("area = %v, want %v", got, tt.area)
			}
			if got := deref(land); got != tt.land {
				t.Errorf("land = %v, want %v", got, tt.land)
			}
		})
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func TestTruncateQuery(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://www.avito.ru/a_1?context=x", "https://www.avito.ru/a_1"},
		{"  https://www.cian.ru/rent/commercial/1/  ", "https://www.cian.ru/rent/commercial/1/"},
		{"https://www.cian.ru/?", "https://www.cian.ru/"},
	}
	for _, tt := range tests {
		if got := TruncateQuery(tt.in); got != tt.want {
			t.Errorf("TruncateQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
