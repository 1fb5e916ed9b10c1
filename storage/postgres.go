package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/use-agent/appraise/models"
)

// Schema creates the listings table used by Postgres.
const Schema = `
CREATE TABLE IF NOT EXISTS listings (
	url             TEXT PRIMARY KEY,
	listing_id      TEXT,
	site            TEXT,
	status          TEXT NOT NULL,
	title           TEXT,
	price_text      TEXT,
	price           JSONB,
	price_unit      TEXT,
	price_per_m2    DOUBLE PRECISION,
	area_m2         DOUBLE PRECISION,
	land_area_m2    DOUBLE PRECISION,
	address         TEXT,
	description     TEXT,
	seller_name     TEXT,
	published_date  TEXT,
	duplicate_of    TEXT,
	price_history   JSONB,
	params          JSONB,
	screenshots     JSONB,
	error           JSONB,
	parsed_at       TIMESTAMPTZ NOT NULL
)`

const upsertListing = `
INSERT INTO listings (
	url, listing_id, site, status, title, price_text, price, price_unit,
	price_per_m2, area_m2, land_area_m2, address, description, seller_name,
	published_date, duplicate_of, price_history, params, screenshots, error, parsed_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
)
ON CONFLICT (url) DO UPDATE SET
	listing_id = EXCLUDED.listing_id,
	site = EXCLUDED.site,
	status = EXCLUDED.status,
	title = EXCLUDED.title,
	price_text = EXCLUDED.price_text,
	price = EXCLUDED.price,
	price_unit = EXCLUDED.price_unit,
	price_per_m2 = EXCLUDED.price_per_m2,
	area_m2 = EXCLUDED.area_m2,
	land_area_m2 = EXCLUDED.land_area_m2,
	address = EXCLUDED.address,
	description = EXCLUDED.description,
	seller_name = EXCLUDED.seller_name,
	published_date = EXCLUDED.published_date,
	duplicate_of = EXCLUDED.duplicate_of,
	price_history = EXCLUDED.price_history,
	params = EXCLUDED.params,
	screenshots = EXCLUDED.screenshots,
	error = EXCLUDED.error,
	parsed_at = EXCLUDED.parsed_at`

// Postgres upserts records into the listings table, keyed by URL.
type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// OpenPostgres connects to dsn, pings the server and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string, log *slog.Logger) (*Postgres, error) {
	if log == nil {
		log = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: create schema: %w", err)
	}
	log.Info("postgres sink ready")
	return &Postgres{pool: pool, log: log}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Put upserts one record.
func (p *Postgres) Put(ctx context.Context, rec *models.ListingRecord) error {
	args, err := upsertArgs(rec)
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, upsertListing, args...); err != nil {
		return fmt.Errorf("storage: upsert %s: %w", rec.URL, err)
	}
	p.log.Debug("record stored", "url", rec.URL, "status", rec.Status)
	return nil
}

// Get returns the stored record of url, or nil when there is none.
func (p *Postgres) Get(ctx context.Context, url string) (*models.ListingRecord, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT url, listing_id, site, status, title, price_text, price, price_unit,
			price_per_m2, area_m2, land_area_m2, address, description, seller_name,
			published_date, duplicate_of, price_history, params, screenshots, error, parsed_at
		FROM listings WHERE url = $1`, url)

	var rec models.ListingRecord
	var status string
	var id, site, title, priceText, unit, address, desc, seller, published, dupOf *string
	var price, history, params, shots, errJSON []byte
	err := row.Scan(&rec.URL, &id, &site, &status, &title, &priceText, &price, &unit,
		&rec.PricePerArea, &rec.AreaM2, &rec.LandAreaM2, &address, &desc, &seller,
		&published, &dupOf, &history, &params, &shots, &errJSON, &rec.ParsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", url, err)
	}

	rec.Status = models.Status(status)
	rec.ID, rec.Site, rec.Title, rec.PriceText = deref(id), deref(site), deref(title), deref(priceText)
	rec.PriceUnit = models.PriceUnit(deref(unit))
	rec.Address, rec.Description, rec.SellerName = deref(address), deref(desc), deref(seller)
	rec.PublishedDate, rec.DuplicateOf = deref(published), deref(dupOf)

	for _, col := range []struct {
		raw []byte
		dst any
	}{
		{price, &rec.Price},
		{history, &rec.PriceHistory},
		{params, &rec.Params},
		{shots, &rec.Screenshots},
		{errJSON, &rec.Error},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("storage: decode %s: %w", url, err)
		}
	}
	return &rec, nil
}

// upsertArgs returns the positional arguments of upsertListing. Nested
// values are encoded as JSON for the JSONB columns; absent ones are NULL.
func upsertArgs(rec *models.ListingRecord) ([]any, error) {
	price, err := jsonb(rec.Price, rec.Price == nil)
	if err != nil {
		return nil, err
	}
	history, err := jsonb(rec.PriceHistory, len(rec.PriceHistory) == 0)
	if err != nil {
		return nil, err
	}
	params, err := jsonb(rec.Params, len(rec.Params) == 0)
	if err != nil {
		return nil, err
	}
	shots, err := jsonb(rec.Screenshots, false)
	if err != nil {
		return nil, err
	}
	errJSON, err := jsonb(rec.Error, rec.Error == nil)
	if err != nil {
		return nil, err
	}
	return []any{
		rec.URL, nullable(rec.ID), nullable(rec.Site), string(rec.Status), nullable(rec.Title),
		nullable(rec.PriceText), price, nullable(string(rec.PriceUnit)), rec.PricePerArea,
		rec.AreaM2, rec.LandAreaM2, nullable(rec.Address), nullable(rec.Description),
		nullable(rec.SellerName), nullable(rec.PublishedDate), nullable(rec.DuplicateOf),
		history, params, shots, errJSON, rec.ParsedAt,
	}, nil
}

func jsonb(v any, absent bool) (any, error) {
	if absent {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("storage: encode column: %w", err)
	}
	return string(data), nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
