// Package assembler turns one listing URL into one ListingRecord, and a
// list of URLs into records in input order.
//
// Build lifecycle:
//  1. Truncate the query string and resolve the site profile.
//  2. Open the page through the session controller (may pause on an operator).
//  3. Read text fields, the parameter table and areas.
//  4. Hover the price-history trigger and take the site's screenshots.
//  5. Normalize the price last, once the area is known.
//
// Field-level failures are logged where they happen and leave the field
// absent. Only navigation failures and a not-found page end a record early.
package assembler

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/appraise/cleaner"
	"github.com/use-agent/appraise/config"
	"github.com/use-agent/appraise/engine"
	"github.com/use-agent/appraise/extract"
	"github.com/use-agent/appraise/models"
	"github.com/use-agent/appraise/pricing"
	"github.com/use-agent/appraise/session"
	"github.com/use-agent/appraise/shot"
	"github.com/use-agent/appraise/site"
)

// Upper bounds of the pauses after page actions; both are further capped
// by the configured hover settle.
const (
	actionSettle = 500 * time.Millisecond
	scrollSettle = 300 * time.Millisecond
)

// Assembler builds records on one shared surface. It is not safe for
// concurrent use.
type Assembler struct {
	surface  engine.Surface
	sessions *session.Controller
	registry *site.Registry
	capturer *shot.Capturer
	cleaner  *cleaner.Cleaner
	cfg      config.SessionConfig
	log      *slog.Logger
}

// New returns an Assembler. A nil capturer disables screenshots.
func New(s engine.Surface, sessions *session.Controller, reg *site.Registry, capturer *shot.Capturer, cfg config.SessionConfig, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{
		surface:  s,
		sessions: sessions,
		registry: reg,
		capturer: capturer,
		cleaner:  cleaner.NewCleaner(),
		cfg:      cfg,
		log:      log,
	}
}

// TruncateQuery drops everything from the first "?".
func TruncateQuery(url string) string {
	url = strings.TrimSpace(url)
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}

// Build returns the record of one listing. It always returns a record;
// failures are reported through its Status and Error.
func (a *Assembler) Build(ctx context.Context, rawURL string) *models.ListingRecord {
	start := time.Now()

	// ── 1. Resolve ──
	url := TruncateQuery(rawURL)
	p, ok := a.registry.Resolve(url)
	if !ok {
		a.log.Warn("no site profile for url", "url", url)
		return models.Minimal(url, models.StatusNavigationFailed,
			models.NewExtractError(models.ErrCodeInvalidInput, "no site profile matches the url", nil))
	}
	log := a.log.With("url", url, "site", p.Name)

	// ── 2. Session ──
	out, err := a.sessions.Open(ctx, url, p)
	if err != nil {
		status := models.StatusNavigationFailed
		if models.IsCode(err, models.ErrCodeBlocked) {
			status = models.StatusBlockedUnresolved
		}
		log.Error("listing skipped", "status", status, "error", err)
		rec := models.Minimal(url, status, err)
		rec.Site = p.Name
		return rec
	}
	if out.State == session.NotFound {
		return models.Minimal(url, models.StatusPageNotFound, nil)
	}

	if p.Zoom > 0 && p.Zoom != 1 {
		if err := a.surface.Zoom(p.Zoom); err != nil {
			log.Debug("zoom failed", "error", err)
		} else if err := a.pause(ctx); err != nil {
			log.Debug("cancelled after zoom", "error", err)
		}
	}
	if p.Plan == site.PlanCian {
		a.expandDescription(ctx, log, p)
	}

	rec := &models.ListingRecord{
		ID:     p.ListingID(url),
		Site:   p.Name,
		URL:    url,
		Status: models.StatusOK,
	}

	// ── 3. Fields ──
	x := extract.New(a.surface, log)
	rec.Title = a.text(x, log, "title", p.Fields.Title)
	rec.PriceText = a.price(x, log, p)
	rec.PriceInfo = a.optional(x, p.Fields.PriceInfo)
	rec.PricePerArea = a.priceFact(log, p)
	rec.Address = extract.CleanAddress(a.text(x, log, "address", p.Fields.Address), p.AddressNoise, p.AddressCuts)
	rec.Description = extract.StripWords(a.text(x, log, "description", p.Fields.Description), p.DescriptionStrip)
	rec.DescriptionMarkdown = a.markdown(log, p, url)
	rec.SellerName = a.optional(x, p.Fields.Seller)
	rec.PublishedDate = a.optional(x, p.Fields.Published)
	a.fallback(log, p, rec)

	rec.Params = x.Params(p.Params.Rows, p.Params.FirstGroupWins)
	rec.AreaM2, rec.LandAreaM2 = applyParamRules(rec.Params, p.Params, rec.Title)

	// ── 4. History and screenshots ──
	a.capture(ctx, log, p, out, rec)

	// ── 5. Normalize ──
	a.normalize(log, p, rec)
	rec.ParsedAt = time.Now()

	log.Info("listing assembled",
		"title", rec.Title,
		"price", rec.Price,
		"history_entries", len(rec.PriceHistory),
		"screenshots", len(rec.Screenshots.Paths()),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rec
}

// text reads a required field and logs a miss.
func (a *Assembler) text(x *extract.Extractor, log *slog.Logger, field string, c extract.Cascade) string {
	if len(c) == 0 {
		return ""
	}
	text, err := x.Text(c)
	if err != nil {
		log.Info("field missing", "field", field, "code", models.ErrCodeSelectorMiss)
		return ""
	}
	return text
}

// optional reads a field that many listings lack; misses are not logged.
func (a *Assembler) optional(x *extract.Extractor, c extract.Cascade) string {
	if len(c) == 0 {
		return ""
	}
	return x.TextOr(c, "")
}

// price reads the price cascade, then the text fallback of the profile.
func (a *Assembler) price(x *extract.Extractor, log *slog.Logger, p *site.Profile) string {
	if text, err := x.Text(p.Fields.Price); err == nil {
		return text
	}
	if fb := p.PriceFallback; fb != nil && fb.Selector != "" {
		el, err := extract.First(a.surface, extract.Cascade{fb.Selector}, anyOf(fb.Words))
		if err == nil {
			if text, err := el.Text(); err == nil && strings.TrimSpace(text) != "" {
				log.Debug("price found by text fallback")
				return strings.TrimSpace(text)
			}
		}
	}
	log.Info("field missing", "field", "price", "code", models.ErrCodeSelectorMiss)
	return ""
}

// priceFact reads the first per-area price fact row.
func (a *Assembler) priceFact(log *slog.Logger, p *site.Profile) *float64 {
	f := p.PriceFacts
	if f == nil || f.Items == "" {
		return nil
	}
	items, err := a.surface.Query(f.Items)
	if err != nil {
		log.Debug("price facts unavailable", "error", err)
		return nil
	}
	for _, item := range items {
		parts, err := item.Query(f.Part)
		if err != nil || len(parts) < 2 {
			continue
		}
		label, err1 := parts[0].Text()
		value, err2 := parts[1].Text()
		if err1 != nil || err2 != nil {
			continue
		}
		if v, ok := pricing.PerAreaFact(strings.TrimSpace(label), strings.TrimSpace(value)); ok {
			return &v
		}
	}
	return nil
}

// markdown converts the description block, keeping its paragraphs and lists.
func (a *Assembler) markdown(log *slog.Logger, p *site.Profile, url string) string {
	el, err := extract.First(a.surface, p.Fields.Description, hasText)
	if err != nil {
		return ""
	}
	raw, err := el.HTML()
	if err != nil || raw == "" {
		return ""
	}
	exclude := make([]string, 0, len(p.Shots.Ads))
	for _, sel := range p.Shots.Ads {
		exclude = append(exclude, string(sel))
	}
	md, err := a.cleaner.Description(raw, url, exclude, p.DescriptionStrip)
	if err != nil {
		log.Debug("description markdown failed", "error", err)
		return ""
	}
	return md
}

// fallback fills a missing title or description from a readability pass
// over the page HTML.
func (a *Assembler) fallback(log *slog.Logger, p *site.Profile, rec *models.ListingRecord) {
	if rec.Title != "" && rec.Description != "" {
		return
	}
	raw, err := a.surface.HTML()
	if err != nil || raw == "" {
		return
	}
	title, text, ok := extract.Readable(raw, rec.URL, p.Shots.Container)
	if !ok {
		return
	}
	if rec.Title == "" && title != "" {
		rec.Title = title
		log.Info("title taken from readability fallback")
	}
	if rec.Description == "" && text != "" {
		rec.Description = extract.StripWords(text, p.DescriptionStrip)
		log.Info("description taken from readability fallback")
	}
}

// applyParamRules derives the floor and land areas and rewrites the
// parameter values the profile asks for.
func applyParamRules(params map[string]string, r site.ParamRules, title string) (area, land *float64) {
	extract.ApplyAliases(params, r.Aliases)

	if r.AreaFromText {
		area = extract.AreaFromText(title)
		if area == nil {
			keys := make([]string, 0, len(params))
			for k := range params {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if area = extract.AreaFromText(params[k]); area != nil {
					break
				}
			}
		}
	}
	if v := extract.AreaFromParams(params, r.AreaKeys); v != nil {
		area = v
	}
	if v, ok := params[r.RangeKey]; ok && r.RangeKey != "" {
		if lower := extract.AreaFromRange(v); lower != nil {
			area = lower
		}
	}

	for _, k := range r.LandKeys {
		v, ok := params[k]
		if !ok || !(k == r.LandKey || isPlotSize(v)) {
			continue
		}
		if land = extract.LandArea(v); land != nil {
			if r.LandKey != "" {
				params[r.LandKey] = strconv.FormatFloat(*land, 'f', -1, 64)
			}
			break
		}
	}

	if v, ok := params[r.FloorKey]; ok && r.FloorKey != "" {
		params[r.FloorKey] = extract.FloorNumber(v)
	}
	return area, land
}

func isPlotSize(v string) bool {
	return strings.Contains(v, "сот") || strings.Contains(v, "га")
}

// normalize parses the first line of the price text and converts it to a
// monthly figure. Later lines hold hints such as the price per m².
func (a *Assembler) normalize(log *slog.Logger, p *site.Profile, rec *models.ListingRecord) {
	if rec.PriceText == "" {
		return
	}
	line, _, _ := strings.Cut(rec.PriceText, "\n")
	q, err := pricing.ParsePrice(line, p.Markers)
	rec.PriceUnit = q.Unit
	if err != nil {
		log.Info("price not parsed", "price_text", line, "error", err)
		return
	}
	rec.Price = pricing.Normalize(q, rec.AreaM2)
	if rec.PricePerArea == nil {
		rec.PricePerArea = pricing.PerArea(rec.Price, rec.AreaM2)
	}
}

func (a *Assembler) pause(ctx context.Context) error {
	return engine.Pause(ctx, min(actionSettle, a.cfg.HoverSettle))
}

func hasText(el engine.Element) bool {
	text, err := el.Text()
	return err == nil && strings.TrimSpace(text) != ""
}
