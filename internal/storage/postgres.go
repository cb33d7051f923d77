package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/engine"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/models"
)

// PostgresStore persists normalized listings so downstream consumers can
// query recent results without a live fetch.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, runs schema migration, and returns a
// ready-to-use store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	st := &PostgresStore{pool: pool}
	if err := st.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			source_id         VARCHAR(64)  NOT NULL,
			source_listing_id VARCHAR(128) NOT NULL,
			title             TEXT         NOT NULL DEFAULT '',
			price_amount      NUMERIC(14,2) NOT NULL,
			price_currency    CHAR(3)      NOT NULL,
			location          TEXT         NOT NULL DEFAULT '',
			neighborhood      TEXT         NOT NULL DEFAULT '',
			size_m2           NUMERIC(8,2),
			bedrooms          SMALLINT,
			bathrooms         SMALLINT,
			property_type     VARCHAR(16)  NOT NULL DEFAULT '',
			url               TEXT         NOT NULL,
			image_url         TEXT         NOT NULL DEFAULT '',
			lat               DOUBLE PRECISION,
			lon               DOUBLE PRECISION,
			fetched_at        TIMESTAMPTZ  NOT NULL,
			PRIMARY KEY (source_id, source_listing_id)
		);

		CREATE INDEX IF NOT EXISTS idx_listings_location ON listings(location);
		CREATE INDEX IF NOT EXISTS idx_listings_price    ON listings(price_amount);
		CREATE INDEX IF NOT EXISTS idx_listings_fetched  ON listings(fetched_at);
	`)
	return err
}

// SaveListings upserts a batch keyed by (source_id, source_listing_id);
// a re-fetched listing replaces its previous snapshot.
func (s *PostgresStore) SaveListings(ctx context.Context, listings []engine.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range listings {
		batch.Queue(`
			INSERT INTO listings (
				source_id, source_listing_id, title, price_amount, price_currency,
				location, neighborhood, size_m2, bedrooms, bathrooms,
				property_type, url, image_url, lat, lon, fetched_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (source_id, source_listing_id) DO UPDATE SET
				title = EXCLUDED.title,
				price_amount = EXCLUDED.price_amount,
				price_currency = EXCLUDED.price_currency,
				location = EXCLUDED.location,
				neighborhood = EXCLUDED.neighborhood,
				size_m2 = EXCLUDED.size_m2,
				bedrooms = EXCLUDED.bedrooms,
				bathrooms = EXCLUDED.bathrooms,
				property_type = EXCLUDED.property_type,
				url = EXCLUDED.url,
				image_url = EXCLUDED.image_url,
				lat = EXCLUDED.lat,
				lon = EXCLUDED.lon,
				fetched_at = EXCLUDED.fetched_at`,
			l.SourceID, l.SourceListingID, l.Title, l.PriceAmount, l.PriceCurrency,
			l.LocationText, l.Neighborhood, l.SizeSquareMeters, l.Bedrooms, l.Bathrooms,
			string(l.PropertyType), l.URL, l.ImageURL, l.Latitude, l.Longitude, l.FetchedAt,
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range listings {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert: %w", err)
		}
	}
	return nil
}

// Recent returns the freshest stored listings for a location, newest first.
func (s *PostgresStore) Recent(ctx context.Context, location string, limit int) ([]engine.Listing, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT source_id, source_listing_id, title, price_amount, price_currency,
		       location, neighborhood, size_m2, bedrooms, bathrooms,
		       property_type, url, image_url, lat, lon, fetched_at
		FROM listings
		WHERE ($1 = '' OR location = $1)
		ORDER BY fetched_at DESC
		LIMIT $2`, location, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: query recent: %w", err)
	}
	defer rows.Close()

	var out []engine.Listing
	for rows.Next() {
		var l engine.Listing
		var propertyType string
		var fetched time.Time
		if err := rows.Scan(
			&l.SourceID, &l.SourceListingID, &l.Title, &l.PriceAmount, &l.PriceCurrency,
			&l.LocationText, &l.Neighborhood, &l.SizeSquareMeters, &l.Bedrooms, &l.Bathrooms,
			&propertyType, &l.URL, &l.ImageURL, &l.Latitude, &l.Longitude, &fetched,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		l.PropertyType = propertyTypeFromString(propertyType)
		l.FetchedAt = fetched
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func propertyTypeFromString(s string) models.PropertyType {
	switch models.PropertyType(s) {
	case models.PropertyHouse, models.PropertyApartment, models.PropertyPH:
		return models.PropertyType(s)
	default:
		return ""
	}
}
