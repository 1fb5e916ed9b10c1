// Package site holds the per-marketplace configuration: phrases, selector
// cascades, tooltip grammar and screenshot plan. Markup drift is handled by
// editing a Profile, or by overriding it from a YAML file, never by
// changing extraction code.
package site

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/use-agent/appraise/engine"
	"github.com/use-agent/appraise/extract"
	"github.com/use-agent/appraise/history"
	"github.com/use-agent/appraise/pricing"
)

// Plan selects the screenshot sequence of a site.
type Plan string

const (
	// PlanAvito: price-history tooltip shot, description shot, and a
	// bottom shot when the publication date is below the viewport.
	PlanAvito Plan = "avito"
	// PlanCian: title shot with the history tooltip, publication-date shot
	// after opening the stats dialog, and a one- or two-shot description.
	PlanCian Plan = "cian"
)

// LoginCheck detects a login wall that needs a second operator pause.
type LoginCheck struct {
	Selector engine.Selector `yaml:"selector"`
	Phrase   string          `yaml:"phrase"`
}

// Readiness describes how a session decides that hydrated content is
// interactive.
type Readiness struct {
	// Probe enables the hover probe: hover Trigger and look for a Tooltip
	// element containing Marker.
	Probe    bool            `yaml:"probe"`
	Trigger  extract.Cascade `yaml:"trigger"`
	Tooltip  extract.Cascade `yaml:"tooltip"`
	Marker   string          `yaml:"marker"`
	Attempts int             `yaml:"attempts"`
	Interval time.Duration   `yaml:"interval"`

	// ReadyStates are the document.readyState values accepted by the
	// fallback wait, bounded by Timeout.
	ReadyStates []string      `yaml:"ready_states"`
	Timeout     time.Duration `yaml:"timeout"`
	// Settle is slept once the fallback succeeds.
	Settle time.Duration `yaml:"settle"`
}

// Fields are the text field cascades.
type Fields struct {
	Title       extract.Cascade `yaml:"title"`
	Price       extract.Cascade `yaml:"price"`
	PriceInfo   extract.Cascade `yaml:"price_info"`
	Address     extract.Cascade `yaml:"address"`
	Description extract.Cascade `yaml:"description"`
	Seller      extract.Cascade `yaml:"seller"`
	Published   extract.Cascade `yaml:"published"`
}

// PriceFallback finds a price by its text when every price selector misses.
type PriceFallback struct {
	Selector engine.Selector `yaml:"selector"`
	Words    []string        `yaml:"words"`
}

// ParamRules post-process the parameter table.
type ParamRules struct {
	Rows           extract.Cascade `yaml:"rows"`
	FirstGroupWins bool            `yaml:"first_group_wins"`

	// AreaKeys are tried in order for the floor area.
	AreaKeys []string `yaml:"area_keys"`
	// RangeKey holds an area range whose lower bound is used.
	RangeKey string `yaml:"range_key"`
	// AreaFromText scans title and values for "N м²" before AreaKeys.
	AreaFromText bool `yaml:"area_from_text"`

	LandKeys []string `yaml:"land_keys"`
	// LandKey is where the converted land area is stored.
	LandKey  string            `yaml:"land_key"`
	FloorKey string            `yaml:"floor_key"`
	Aliases  map[string]string `yaml:"aliases"`
}

// PriceFacts are label/value rows carrying a price per unit of area.
type PriceFacts struct {
	Items engine.Selector `yaml:"items"`
	Part  engine.Selector `yaml:"part"`
}

// Shots are the selectors used by the screenshot plan.
type Shots struct {
	Container         extract.Cascade `yaml:"container"`
	ContainerMinWidth float64         `yaml:"container_min_width"`
	Ads               extract.Cascade `yaml:"ads"`
	TitleAnchor       extract.Cascade `yaml:"title_anchor"`
	Description       extract.Cascade `yaml:"description"`
	DescriptionMin    float64         `yaml:"description_min_height"`
	Expander          extract.Cascade `yaml:"expander"`
	ExpanderWords     []string        `yaml:"expander_words"`
	StatsOpener       extract.Cascade `yaml:"stats_opener"`
	StatsBlock        extract.Cascade `yaml:"stats_block"`
	Closers           extract.Cascade `yaml:"closers"`
	DateMarker        engine.Selector `yaml:"date_marker"`
}

// History locates the price-history tooltip.
type History struct {
	Trigger extract.Cascade `yaml:"trigger"`
	Tooltip extract.Cascade `yaml:"tooltip"`
	// Markers are currency substrings a tooltip must contain.
	Markers []string `yaml:"markers"`
	MinText int      `yaml:"min_text"`
	// CaptureDelta attaches change figures to entries.
	CaptureDelta bool `yaml:"capture_delta"`
}

// Profile is the complete configuration of one marketplace.
type Profile struct {
	Name string `yaml:"name"`
	// Domain is matched as a substring of listing URLs.
	Domain string `yaml:"domain"`

	NotFound      []string        `yaml:"not_found"`
	Blocked       []string        `yaml:"blocked"`
	ContentMarker extract.Cascade `yaml:"content_marker"`
	Login         *LoginCheck     `yaml:"login"`
	Readiness     Readiness       `yaml:"readiness"`

	Fields           Fields          `yaml:"fields"`
	PriceFallback    *PriceFallback  `yaml:"price_fallback"`
	Markers          pricing.Markers `yaml:"markers"`
	PriceFacts       *PriceFacts     `yaml:"price_facts"`
	AddressNoise     []string        `yaml:"address_noise"`
	AddressCuts      []string        `yaml:"address_cuts"`
	DescriptionStrip []string        `yaml:"description_strip"`
	Params           ParamRules      `yaml:"params"`

	History History `yaml:"history"`
	Shots   Shots   `yaml:"shots"`
	Plan    Plan    `yaml:"plan"`
	Zoom    float64 `yaml:"zoom"`

	// IDPattern extracts the listing id from its URL; the first non-empty
	// group wins.
	IDPattern string `yaml:"id_pattern"`

	Grammar history.Grammar `yaml:"-"`

	idRe *regexp.Regexp
}

// HistoryGrammar returns the tooltip grammar with the profile's delta
// setting applied.
func (p *Profile) HistoryGrammar() history.Grammar {
	g := p.Grammar
	if g.Day == nil {
		g = history.Russian
	}
	g.CaptureDelta = g.CaptureDelta || p.History.CaptureDelta
	return g
}

// ListingID returns the site id of a listing URL, or the first 10 hex
// digits of its MD5 when the URL carries none.
func (p *Profile) ListingID(url string) string {
	re := p.idRe
	if re == nil && p.IDPattern != "" {
		re, _ = regexp.Compile(p.IDPattern)
	}
	if re != nil {
		if m := re.FindStringSubmatch(url); m != nil {
			for _, g := range m[1:] {
				if g != "" {
					return g
				}
			}
		}
	}
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])[:10]
}

// IsNotFound reports whether lower-cased body text holds a not-found phrase.
func (p *Profile) IsNotFound(body string) bool {
	return containsPhrase(body, p.NotFound)
}

// IsBlocked reports whether lower-cased body text holds a block phrase.
func (p *Profile) IsBlocked(body string) bool {
	return containsPhrase(body, p.Blocked)
}

func containsPhrase(body string, phrases []string) bool {
	body = strings.ToLower(body)
	for _, ph := range phrases {
		if ph != "" && strings.Contains(body, strings.ToLower(ph)) {
			return true
		}
	}
	return false
}

// Validate compiles the id pattern and checks every CSS selector.
func (p *Profile) Validate() error {
	if p.Name == "" || p.Domain == "" {
		return fmt.Errorf("site profile: name and domain are required")
	}
	if p.IDPattern != "" {
		re, err := regexp.Compile(p.IDPattern)
		if err != nil {
			return fmt.Errorf("site %s: id_pattern: %w", p.Name, err)
		}
		p.idRe = re
	}
	for field, sels := range p.selectors() {
		for _, sel := range sels {
			if sel == "" || sel.IsText() {
				continue
			}
			if _, err := cascadia.ParseGroup(string(sel)); err != nil {
				return fmt.Errorf("site %s: %s selector %q: %w", p.Name, field, sel, err)
			}
		}
	}
	return nil
}

func (p *Profile) selectors() map[string][]engine.Selector {
	m := map[string][]engine.Selector{
		"content_marker":     p.ContentMarker,
		"readiness.trigger":  p.Readiness.Trigger,
		"readiness.tooltip":  p.Readiness.Tooltip,
		"fields.title":       p.Fields.Title,
		"fields.price":       p.Fields.Price,
		"fields.price_info":  p.Fields.PriceInfo,
		"fields.address":     p.Fields.Address,
		"fields.description": p.Fields.Description,
		"fields.seller":      p.Fields.Seller,
		"fields.published":   p.Fields.Published,
		"params.rows":        p.Params.Rows,
		"history.trigger":    p.History.Trigger,
		"history.tooltip":    p.History.Tooltip,
		"shots.container":    p.Shots.Container,
		"shots.ads":          p.Shots.Ads,
		"shots.title_anchor": p.Shots.TitleAnchor,
		"shots.description":  p.Shots.Description,
		"shots.expander":     p.Shots.Expander,
		"shots.stats_opener": p.Shots.StatsOpener,
		"shots.stats_block":  p.Shots.StatsBlock,
		"shots.closers":      p.Shots.Closers,
		"shots.date_marker":  {p.Shots.DateMarker},
	}
	if p.Login != nil {
		m["login.selector"] = []engine.Selector{p.Login.Selector}
	}
	if p.PriceFallback != nil {
		m["price_fallback.selector"] = []engine.Selector{p.PriceFallback.Selector}
	}
	if p.PriceFacts != nil {
		m["price_facts"] = []engine.Selector{p.PriceFacts.Items, p.PriceFacts.Part}
	}
	return m
}

// Clone returns a deep enough copy for YAML overrides to edit safely.
func (p *Profile) Clone() *Profile {
	c := *p
	if p.Login != nil {
		l := *p.Login
		c.Login = &l
	}
	if p.PriceFallback != nil {
		f := *p.PriceFallback
		c.PriceFallback = &f
	}
	if p.PriceFacts != nil {
		f := *p.PriceFacts
		c.PriceFacts = &f
	}
	if p.Params.Aliases != nil {
		c.Params.Aliases = make(map[string]string, len(p.Params.Aliases))
		for k, v := range p.Params.Aliases {
			c.Params.Aliases[k] = v
		}
	}
	return &c
}
