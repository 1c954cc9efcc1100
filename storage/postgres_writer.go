package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"immo-scraper/models"
)

// PostgresStore persists the listing feed and the tracking snapshot to
// PostgreSQL. It satisfies both ListingWriter and SnapshotStore.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresStore.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresStore) migrate() error {
	_, err := ps.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			id            TEXT          PRIMARY KEY,
			source        VARCHAR(32)   NOT NULL,
			source_id     TEXT          NOT NULL,
			url           TEXT          NOT NULL,
			title         TEXT          NOT NULL DEFAULT '',
			property_type VARCHAR(32)   NOT NULL DEFAULT '',
			deal_type     VARCHAR(16)   NOT NULL DEFAULT '',
			price         NUMERIC(14,2) NOT NULL DEFAULT 0,
			price_type    VARCHAR(16)   NOT NULL DEFAULT '',
			living_sqm    NUMERIC(10,2) NOT NULL DEFAULT 0,
			rooms         NUMERIC(4,1)  NOT NULL DEFAULT 0,
			postcode      VARCHAR(8)    NOT NULL DEFAULT '',
			city          TEXT          NOT NULL DEFAULT '',
			doc           JSONB         NOT NULL,
			updated_at    TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_source ON listings(source, source_id);
		CREATE INDEX IF NOT EXISTS idx_listings_city   ON listings(city);
		CREATE INDEX IF NOT EXISTS idx_listings_price  ON listings(price);

		CREATE TABLE IF NOT EXISTS listing_snapshot (
			id         TEXT          PRIMARY KEY,
			price      NUMERIC(14,2) NOT NULL,
			currency   VARCHAR(8)    NOT NULL DEFAULT '',
			price_type VARCHAR(16)   NOT NULL DEFAULT '',
			status     VARCHAR(16)   NOT NULL,
			last_seen  TIMESTAMPTZ   NOT NULL,
			checksum   VARCHAR(16)   NOT NULL,
			source     VARCHAR(32)   NOT NULL DEFAULT ''
		);
	`)
	return err
}

// Write upserts the listings by canonical id.
func (ps *PostgresStore) Write(listings []*models.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	const batchSize = 50
	for i := 0; i < len(listings); i += batchSize {
		end := i + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		if err := ps.upsertBatch(listings[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (ps *PostgresStore) upsertBatch(batch []*models.Listing) error {
	const cols = 14
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*cols)

	// A batch may carry the same id twice (merged record plus original);
	// ON CONFLICT cannot touch one row twice in a statement.
	seen := make(map[string]struct{}, len(batch))
	for _, l := range batch {
		if _, dup := seen[l.ID]; dup {
			continue
		}
		seen[l.ID] = struct{}{}

		doc, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("postgres: encode listing %s: %w", l.ID, err)
		}

		base := len(valueStrings) * cols
		ph := make([]string, cols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs,
			l.ID, string(l.Source), l.SourceID, l.URL, l.Title, l.PropertyType, l.DealType,
			l.Price.Total, l.Price.Type, l.Size.LivingSqm, l.Rooms, l.Address.Postcode, l.Address.City, string(doc))
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (id, source, source_id, url, title, property_type, deal_type,
			price, price_type, living_sqm, rooms, postcode, city, doc)
		VALUES %s
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			price_type = EXCLUDED.price_type,
			doc = EXCLUDED.doc,
			updated_at = NOW()
	`, strings.Join(valueStrings, ","))

	if _, err := ps.db.Exec(query, valueArgs...); err != nil {
		return fmt.Errorf("postgres: upsert listings: %w", err)
	}
	return nil
}

// FetchAll retrieves all stored listings, most recently updated first.
func (ps *PostgresStore) FetchAll() ([]*models.Listing, error) {
	rows, err := ps.db.Query(`SELECT doc FROM listings ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		l := &models.Listing{}
		if err := json.Unmarshal(doc, l); err != nil {
			return nil, fmt.Errorf("postgres: decode listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// Load reads the tracking snapshot.
func (ps *PostgresStore) Load(ctx context.Context) (models.StateSnapshot, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT id, price, currency, price_type, status, last_seen, checksum, source
		FROM listing_snapshot
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load snapshot: %w", err)
	}
	defer rows.Close()

	snap := models.StateSnapshot{}
	for rows.Next() {
		var (
			id     string
			e      models.SnapshotEntry
			status string
			source string
		)
		if err := rows.Scan(&id, &e.Price.Total, &e.Price.Currency, &e.Price.Type,
			&status, &e.LastSeen, &e.Checksum, &source); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		e.Status = models.ListingStatus(status)
		e.Source = models.Source(source)
		snap[id] = e
	}
	return snap, rows.Err()
}

// Save replaces the snapshot table contents in a single transaction.
func (ps *PostgresStore) Save(ctx context.Context, snap models.StateSnapshot) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM listing_snapshot`); err != nil {
		return fmt.Errorf("postgres: clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO listing_snapshot (id, price, currency, price_type, status, last_seen, checksum, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("postgres: prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for id, e := range snap {
		if _, err := stmt.ExecContext(ctx, id, e.Price.Total, e.Price.Currency, e.Price.Type,
			string(e.Status), e.LastSeen, e.Checksum, string(e.Source)); err != nil {
			return fmt.Errorf("postgres: insert snapshot %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit snapshot: %w", err)
	}
	return nil
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}
