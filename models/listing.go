package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the per-listing outcome stored on every record.
type Status string

const (
	StatusOK                Status = "ok"
	StatusPageNotFound      Status = "page_not_found"
	StatusBlockedUnresolved Status = "blocked_unresolved"
	StatusNavigationFailed  Status = "navigation_failed"
)

// PriceUnit classifies what a listed price refers to.
type PriceUnit string

const (
	UnitMonthly        PriceUnit = "monthly"
	UnitPerAreaMonthly PriceUnit = "per_area_monthly"
	UnitAnnual         PriceUnit = "annual"
)

// ManualEntry is the serialized form of a price that could not be computed.
const ManualEntry = "manual entry required"

// Price is a normalized monthly price. When Manual is set the value is
// unknown and must be filled in by a person.
type Price struct {
	Value  float64
	Manual bool
}

// Amount returns a numeric price.
func Amount(v float64) *Price {
	if v < 0 {
		v = 0
	}
	return &Price{Value: v}
}

// ManualPrice returns the "manual entry required" sentinel.
func ManualPrice() *Price {
	return &Price{Manual: true}
}

func (p Price) String() string {
	if p.Manual {
		return ManualEntry
	}
	return fmt.Sprintf("%g", p.Value)
}

// MarshalJSON encodes a number, or the ManualEntry string for the sentinel.
func (p Price) MarshalJSON() ([]byte, error) {
	if p.Manual {
		return json.Marshal(ManualEntry)
	}
	return json.Marshal(p.Value)
}

// UnmarshalJSON accepts either form produced by MarshalJSON.
func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != ManualEntry {
			return fmt.Errorf("price: unexpected string %q", s)
		}
		*p = Price{Manual: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("price: negative value %g", v)
	}
	*p = Price{Value: v}
	return nil
}

// PriceHistoryEntry is one dated price from a listing's history tooltip.
// Date stays in the site's locale, e.g. "12 января 2024".
type PriceHistoryEntry struct {
	Date  string `json:"date"`
	Price int    `json:"price"`
	// Delta is the change figure printed next to the price, when the site
	// grammar captures it.
	Delta *int `json:"delta,omitempty"`
}

// ScreenshotSet holds the on-disk evidence images of one listing.
// Every slot is optional.
type ScreenshotSet struct {
	Top             string `json:"top,omitempty"`
	Description     string `json:"description,omitempty"`
	DescriptionTail string `json:"description_tail,omitempty"`
	PublicationDate string `json:"publication_date,omitempty"`
	Bottom          string `json:"bottom,omitempty"`
}

// Paths returns the non-empty slot paths in document order.
func (s ScreenshotSet) Paths() []string {
	var out []string
	for _, p := range []string{s.Top, s.Description, s.DescriptionTail, s.PublicationDate, s.Bottom} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ScreenshotRegion is a crop rectangle in device pixels.
// 0 <= Left < Right <= width and 0 <= Top < Bottom <= height.
type ScreenshotRegion struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

func (r ScreenshotRegion) Width() int  { return r.Right - r.Left }
func (r ScreenshotRegion) Height() int { return r.Bottom - r.Top }

// ListingRecord is the structured result for one listing URL.
// It is written once by the assembler and treated as read-only afterwards.
type ListingRecord struct {
	ID            string              `json:"id,omitempty"`
	Site          string              `json:"site,omitempty"`
	URL           string              `json:"url"`
	Status        Status              `json:"status"`
	Title         string              `json:"title,omitempty"`
	PriceText     string              `json:"price_text,omitempty"`
	PriceInfo     string              `json:"price_info,omitempty"`
	Price         *Price              `json:"price,omitempty"`
	PriceUnit     PriceUnit           `json:"price_unit,omitempty"`
	PricePerArea  *float64            `json:"price_per_m2,omitempty"`
	PriceHistory  []PriceHistoryEntry `json:"price_history,omitempty"`
	Address       string              `json:"address,omitempty"`
	Description   string              `json:"description,omitempty"`
	// DescriptionMarkdown keeps paragraph and list structure of the
	// description block for document exporters.
	DescriptionMarkdown string            `json:"description_markdown,omitempty"`
	Params              map[string]string `json:"params,omitempty"`
	AreaM2              *float64          `json:"area_m2,omitempty"`
	LandAreaM2          *float64          `json:"land_area_m2,omitempty"`
	SellerName          string            `json:"seller_name,omitempty"`
	PublishedDate       string            `json:"published_date,omitempty"`
	Screenshots         ScreenshotSet     `json:"screenshots"`
	// DuplicateOf is the URL of an earlier record in the same run with a
	// near-identical description.
	DuplicateOf string       `json:"duplicate_of,omitempty"`
	Error       *ErrorDetail `json:"error,omitempty"`
	ParsedAt    time.Time    `json:"parsed_at"`
}

// Minimal returns a record carrying only url, status and error.
func Minimal(url string, status Status, err error) *ListingRecord {
	rec := &ListingRecord{URL: url, Status: status, ParsedAt: time.Now()}
	if err != nil {
		rec.Error = Detail(err)
	}
	return rec
}
