package assembler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/appraise/cache"
	"github.com/use-agent/appraise/config"
	"github.com/use-agent/appraise/engine/enginetest"
	"github.com/use-agent/appraise/models"
	"github.com/use-agent/appraise/session"
)

const repostText = "Сдается офис в бизнес-центре класса B, отдельный вход, охрана круглосуточно, " +
	"парковка для арендаторов, рядом метро, звоните в любое время"

// fakeBuilder returns scripted records and counts calls per URL.
type fakeBuilder struct {
	mu     sync.Mutex
	calls  map[string]int
	status map[string]models.Status
	desc   map[string]string
	onCall func(url string)
}

func (f *fakeBuilder) Build(_ context.Context, url string) *models.ListingRecord {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	hook := f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	status := models.StatusOK
	if s, ok := f.status[url]; ok {
		status = s
	}
	return &models.ListingRecord{URL: url, Status: status, Description: f.desc[url]}
}

func (f *fakeBuilder) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type memorySink struct {
	mu   sync.Mutex
	recs []*models.ListingRecord
	err  error
}

func (s *memorySink) Put(ctx context.Context, rec *models.ListingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return s.err
}

func TestRunOrderAndStatuses(t *testing.T) {
	b := &fakeBuilder{status: map[string]models.Status{
		"https://www.avito.ru/b_2": models.StatusPageNotFound,
		"https://www.cian.ru/c/3/": models.StatusNavigationFailed,
	}}
	sink := &memorySink{}
	var progress []int
	r := NewRunner(b, config.RunConfig{DuplicateDistance: 3}, nil,
		WithSinks(sink),
		WithProgress(func(done, total int, _ *models.ListingRecord) {
			if total != 3 {
				t.Errorf("total = %d", total)
			}
			progress = append(progress, done)
		}),
	)

	urls := []string{"https://www.avito.ru/a_1?context=x", "https://www.avito.ru/b_2", "https://www.cian.ru/c/3/"}
	recs := r.Run(context.Background(), urls)

	if len(recs) != 3 {
		t.Fatalf("records = %d, want one per url", len(recs))
	}
	want := []string{"https://www.avito.ru/a_1", "https://www.avito.ru/b_2", "https://www.cian.ru/c/3/"}
	for i, rec := range recs {
		if rec.URL != want[i] {
			t.Errorf("record %d url = %q, want %q", i, rec.URL, want[i])
		}
	}
	if recs[1].Status != models.StatusPageNotFound || recs[2].Status != models.StatusNavigationFailed {
		t.Errorf("statuses = %s, %s", recs[1].Status, recs[2].Status)
	}
	if len(sink.recs) != 3 {
		t.Errorf("sink got %d records", len(sink.recs))
	}
	if len(progress) != 3 || progress[2] != 3 {
		t.Errorf("progress = %v", progress)
	}
}

func TestRunCacheReusesRecords(t *testing.T) {
	b := &fakeBuilder{}
	r := NewRunner(b, config.RunConfig{}, nil, WithCache(cache.New(10, time.Hour)))

	recs := r.Run(context.Background(), []string{
		"https://www.avito.ru/a_1",
		"https://www.avito.ru/a_1?utm=x",
		"https://WWW.AVITO.RU/a_1/",
	})

	if len(recs) != 3 {
		t.Fatalf("records = %d", len(recs))
	}
	if n := b.count("https://www.avito.ru/a_1"); n != 1 {
		t.Errorf("built %d times, want 1", n)
	}
	if recs[1].URL != recs[0].URL || recs[2].Status != models.StatusOK {
		t.Errorf("repeated url records = %+v, %+v", recs[1], recs[2])
	}
}

func TestRunMarksRepostsServedFromCache(t *testing.T) {
	const (
		first  = "https://www.avito.ru/a_1"
		repost = "https://www.cian.ru/rent/commercial/2/"
	)
	b := &fakeBuilder{desc: map[string]string{first: repostText, repost: repostText + " без комиссии"}}
	c := cache.New(10, time.Hour)
	cfg := config.RunConfig{DuplicateDistance: 3}

	NewRunner(b, cfg, nil, WithCache(c)).Run(context.Background(), []string{repost})
	recs := NewRunner(b, cfg, nil, WithCache(c)).Run(context.Background(), []string{first, repost})

	if b.count(repost) != 1 {
		t.Fatalf("repost built %d times, want a cache hit", b.count(repost))
	}
	if recs[1].DuplicateOf != first {
		t.Errorf("cached repost duplicate_of = %q, want %q", recs[1].DuplicateOf, first)
	}

	recs = NewRunner(b, cfg, nil, WithCache(c)).Run(context.Background(), []string{repost})
	if recs[0].DuplicateOf != "" {
		t.Errorf("mark from an earlier run kept: %q", recs[0].DuplicateOf)
	}
}

func TestRunMarksReposts(t *testing.T) {
	const (
		first   = "https://www.avito.ru/a_1"
		repost  = "https://www.cian.ru/rent/commercial/2/"
		other   = "https://www.avito.ru/other_3"
		missing = "https://www.avito.ru/not_found_4"
	)
	b := &fakeBuilder{
		desc: map[string]string{
			first:   repostText,
			repost:  repostText + " 8 900 000-00-00",
			other:   "Продается склад с пандусом и отоплением, потолки восемь метров, охраняемая территория, удобный подъезд для фур",
			missing: repostText,
		},
		status: map[string]models.Status{missing: models.StatusPageNotFound},
	}
	r := NewRunner(b, config.RunConfig{DuplicateDistance: 3}, nil)

	recs := r.Run(context.Background(), []string{first, repost, other, missing})

	if recs[0].DuplicateOf != "" {
		t.Errorf("first record marked: %q", recs[0].DuplicateOf)
	}
	if recs[1].DuplicateOf != first {
		t.Errorf("repost duplicate_of = %q", recs[1].DuplicateOf)
	}
	if recs[2].DuplicateOf != "" || recs[3].DuplicateOf != "" {
		t.Errorf("unexpected marks: %q %q", recs[2].DuplicateOf, recs[3].DuplicateOf)
	}
}

func TestRunStopsBetweenListings(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := &fakeBuilder{onCall: func(url string) {
		if url == "https://www.avito.ru/b_2" {
			cancel()
		}
	}}
	sink := &memorySink{}
	r := NewRunner(b, config.RunConfig{}, nil, WithSinks(sink))

	recs := r.Run(ctx, []string{"https://www.avito.ru/a_1", "https://www.avito.ru/b_2", "https://www.avito.ru/c_3"})

	if len(recs) != 2 {
		t.Fatalf("records = %d, want the two started before the stop", len(recs))
	}
	if b.count("https://www.avito.ru/c_3") != 0 {
		t.Error("listing after the stop was built")
	}
	if len(sink.recs) != 2 {
		t.Errorf("sink got %d records, want 2", len(sink.recs))
	}
}

func TestRunSinkErrorDoesNotAbort(t *testing.T) {
	b := &fakeBuilder{}
	r := NewRunner(b, config.RunConfig{}, nil, WithSinks(&memorySink{err: errors.New("disk full")}))

	if recs := r.Run(context.Background(), []string{"https://www.avito.ru/a_1", "https://www.avito.ru/b_2"}); len(recs) != 2 {
		t.Errorf("records = %d", len(recs))
	}
}

func TestRunPacing(t *testing.T) {
	b := &fakeBuilder{}
	r := NewRunner(b, config.RunConfig{Pace: 30 * time.Millisecond}, nil)

	start := time.Now()
	r.Run(context.Background(), []string{"https://www.avito.ru/a_1", "https://www.avito.ru/b_2", "https://www.avito.ru/c_3"})
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("three listings took %v, want at least two pace intervals", elapsed)
	}
}

func TestRunStopDuringHoverFinishesListing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	page := newAvitoPage()
	showTooltip := page.trigger.OnHover
	page.trigger.OnHover = func() {
		cancel()
		showTooltip()
	}
	a := newAssembler(t, page.Page, nil, testCapturer(t))
	r := NewRunner(a, config.RunConfig{}, nil)

	recs := r.Run(ctx, []string{avitoURL, "https://www.avito.ru/moskva/ofis_2"})

	if len(recs) != 1 {
		t.Fatalf("records = %d, want only the listing in flight", len(recs))
	}
	rec := recs[0]
	if rec.Status != models.StatusOK {
		t.Fatalf("status = %s", rec.Status)
	}
	if len(rec.PriceHistory) != 2 {
		t.Errorf("history = %+v, want both entries", rec.PriceHistory)
	}
	if rec.Screenshots.Top == "" || rec.Screenshots.Description == "" || rec.Screenshots.Bottom == "" {
		t.Errorf("screenshots = %+v, want all three", rec.Screenshots)
	}
	if len(page.Navigated()) != 1 {
		t.Errorf("navigated %v after the stop", page.Navigated())
	}
}

func TestRunStopWhileBlockedIsUnresolved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	page := enginetest.NewPage()
	page.SetBody("captcha")
	a := newAssembler(t, page, &operator{hook: func(session.Intervention) { cancel() }}, nil)
	r := NewRunner(a, config.RunConfig{}, nil)

	recs := r.Run(ctx, []string{"https://www.cian.ru/rent/commercial/1/", "https://www.cian.ru/rent/commercial/2/"})

	if len(recs) != 1 || recs[0].Status != models.StatusBlockedUnresolved {
		t.Fatalf("records = %+v", recs)
	}
}
