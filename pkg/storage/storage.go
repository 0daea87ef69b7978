// Package storage persists articles, saved stores and settings in a local
// SQLite database. Per-brand maps are stored as JSON columns; the row layout
// only carries what queries filter on.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shelfwatch/shelfwatch/pkg/article"
	"github.com/shelfwatch/shelfwatch/pkg/brands"
)

// MaxStoresPerBrand caps how many stores can be saved per brand. Every
// availability refresh queries each saved store, so the cap bounds the
// scraping fan-out.
const MaxStoresPerBrand = 4

var (
	// ErrStoreExists is returned when saving a storeId that is already saved.
	ErrStoreExists = errors.New("store already saved")

	// ErrStoreLimit is returned when a brand has reached its store cap. The
	// text is rendered to API clients verbatim.
	ErrStoreLimit = fmt.Errorf("Brand store limit (%d) reached", MaxStoresPerBrand)
)

// DefaultBrands is the resolution order used until settings say otherwise.
var DefaultBrands = []string{"dm", "rossmann", "mueller", "budni"}

// SavedStore is a store the user follows, pinned to a brand.
type SavedStore struct {
	Brand string `json:"brand"`
	brands.StoreInfo
}

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS articles (
  id                      INTEGER PRIMARY KEY,
  ean                     TEXT NOT NULL UNIQUE,
  name                    TEXT NOT NULL,
  image_url               TEXT,
  prices                  TEXT NOT NULL DEFAULT '{}',
  product_urls            TEXT NOT NULL DEFAULT '{}',
  article_numbers         TEXT NOT NULL DEFAULT '{}',
  availability            TEXT NOT NULL DEFAULT '{}',
  price_updated_at        TEXT,
  availability_updated_at TEXT,
  created_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS stores (
  id            INTEGER PRIMARY KEY,
  store_id      TEXT NOT NULL UNIQUE,
  brand         TEXT NOT NULL,
  store_number  TEXT,
  address       TEXT NOT NULL DEFAULT '{}',
  phone         TEXT,
  lat           REAL NOT NULL DEFAULT 0,
  lon           REAL NOT NULL DEFAULT 0,
  opening_hours TEXT NOT NULL DEFAULT '{}',
  created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_stores_brand ON stores(brand);
CREATE TABLE IF NOT EXISTS settings (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// GetArticle returns the article for ean, or (nil, nil) when absent.
func (d *DB) GetArticle(ean string) (*article.Article, error) {
	row := d.sql.QueryRow(`SELECT ean, name, image_url, prices, product_urls, article_numbers, availability, price_updated_at, availability_updated_at FROM articles WHERE ean = ?`, ean)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*article.Article, error) {
	var (
		a                            article.Article
		imageURL                     sql.NullString
		prices, urls, numbers, avail string
		priceUpdated, availUpdated   sql.NullString
	)
	if err := row.Scan(&a.EAN, &a.Name, &imageURL, &prices, &urls, &numbers, &avail, &priceUpdated, &availUpdated); err != nil {
		return nil, err
	}
	if imageURL.Valid {
		a.ImageURL = &imageURL.String
	}
	for _, col := range []struct {
		raw string
		dst any
	}{
		{prices, &a.Prices},
		{urls, &a.ProductURLs},
		{numbers, &a.ArticleNumbers},
		{avail, &a.Availability},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("decoding article %s: %w", a.EAN, err)
		}
	}
	a.PriceUpdatedAt = parseTimestamp(priceUpdated)
	a.AvailabilityUpdatedAt = parseTimestamp(availUpdated)
	return &a, nil
}

func parseTimestamp(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SaveArticle inserts or replaces the article keyed by its EAN.
func (d *DB) SaveArticle(a *article.Article) error {
	prices, err := json.Marshal(a.Prices)
	if err != nil {
		return err
	}
	urls, err := json.Marshal(a.ProductURLs)
	if err != nil {
		return err
	}
	numbers, err := json.Marshal(a.ArticleNumbers)
	if err != nil {
		return err
	}
	avail, err := json.Marshal(a.Availability)
	if err != nil {
		return err
	}

	var imageURL any
	if a.ImageURL != nil {
		imageURL = *a.ImageURL
	}

	_, err = d.sql.Exec(`
INSERT INTO articles(ean, name, image_url, prices, product_urls, article_numbers, availability, price_updated_at, availability_updated_at)
VALUES(?,?,?,?,?,?,?,?,?)
ON CONFLICT(ean) DO UPDATE SET
  name = excluded.name,
  image_url = excluded.image_url,
  prices = excluded.prices,
  product_urls = excluded.product_urls,
  article_numbers = excluded.article_numbers,
  availability = excluded.availability,
  price_updated_at = excluded.price_updated_at,
  availability_updated_at = excluded.availability_updated_at`,
		a.EAN, a.Name, imageURL, string(prices), string(urls), string(numbers), string(avail),
		a.PriceUpdatedAt.Format(time.RFC3339Nano), a.AvailabilityUpdatedAt.Format(time.RFC3339Nano))
	return err
}

// ListArticles returns all articles, newest first.
func (d *DB) ListArticles() ([]*article.Article, error) {
	rows, err := d.sql.Query(`SELECT ean, name, image_url, prices, product_urls, article_numbers, availability, price_updated_at, availability_updated_at FROM articles ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*article.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteArticle removes an article by EAN.
func (d *DB) DeleteArticle(ean string) error {
	res, err := d.sql.Exec(`DELETE FROM articles WHERE ean = ?`, ean)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return article.ErrNotFound
	}
	return nil
}

// SaveStore adds a store for a brand, enforcing the per-brand cap and
// storeId uniqueness.
func (d *DB) SaveStore(s SavedStore) error {
	var count int
	if err := d.sql.QueryRow(`SELECT COUNT(*) FROM stores WHERE brand = ?`, s.Brand).Scan(&count); err != nil {
		return err
	}
	if count >= MaxStoresPerBrand {
		return ErrStoreLimit
	}

	var exists int
	if err := d.sql.QueryRow(`SELECT COUNT(*) FROM stores WHERE store_id = ?`, s.StoreID).Scan(&exists); err != nil {
		return err
	}
	if exists > 0 {
		return ErrStoreExists
	}

	address, err := json.Marshal(s.Address)
	if err != nil {
		return err
	}
	hours, err := json.Marshal(s.OpeningHours)
	if err != nil {
		return err
	}
	var phone any
	if s.Phone != nil {
		phone = *s.Phone
	}

	_, err = d.sql.Exec(`INSERT INTO stores(store_id, brand, store_number, address, phone, lat, lon, opening_hours) VALUES(?,?,?,?,?,?,?,?)`,
		s.StoreID, s.Brand, s.StoreNumber, string(address), phone, s.Coordinates[0], s.Coordinates[1], string(hours))
	return err
}

// StoresByBrand returns the saved stores of one brand in insertion order.
func (d *DB) StoresByBrand(brand string) ([]SavedStore, error) {
	rows, err := d.sql.Query(`SELECT store_id, brand, store_number, address, phone, lat, lon, opening_hours FROM stores WHERE brand = ? ORDER BY id`, brand)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SavedStore{}
	for rows.Next() {
		var (
			s              SavedStore
			address, hours string
			phone          sql.NullString
		)
		if err := rows.Scan(&s.StoreID, &s.Brand, &s.StoreNumber, &address, &phone, &s.Coordinates[0], &s.Coordinates[1], &hours); err != nil {
			return nil, err
		}
		if phone.Valid {
			s.Phone = &phone.String
		}
		if err := json.Unmarshal([]byte(address), &s.Address); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(hours), &s.OpeningHours); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StoreIDsByBrand lists just the store ids, for availability fan-out.
func (d *DB) StoreIDsByBrand(brand string) ([]string, error) {
	rows, err := d.sql.Query(`SELECT store_id FROM stores WHERE brand = ? ORDER BY id`, brand)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteStore removes a saved store by its storeId.
func (d *DB) DeleteStore(storeID string) error {
	res, err := d.sql.Exec(`DELETE FROM stores WHERE store_id = ?`, storeID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Brands returns the configured brand order, falling back to the default.
func (d *DB) Brands() ([]string, error) {
	var value string
	err := d.sql.QueryRow(`SELECT value FROM settings WHERE key = 'brands'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return append([]string(nil), DefaultBrands...), nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetBrands stores the brand order.
func (d *DB) SetBrands(names []string) error {
	value, err := json.Marshal(names)
	if err != nil {
		return err
	}
	_, err = d.sql.Exec(`INSERT INTO settings(key, value) VALUES('brands', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, string(value))
	return err
}
