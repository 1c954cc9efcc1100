package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"immo-scraper/models"
)

var csvHeader = []string{
	"id", "source", "source_id", "url", "title", "property_type", "deal_type",
	"price", "price_type", "price_per_sqm", "living_sqm", "rooms",
	"street", "house_no", "postcode", "city", "lat", "lng",
	"alternative_sources", "posted_at", "extracted_at",
}

// CSVWriter exports the listing feed as a flat CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// Write appends one row per listing.
func (c *CSVWriter) Write(listings []*models.Listing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range listings {
		if err := c.writer.Write(csvRow(l)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

func csvRow(l *models.Listing) []string {
	var lat, lng string
	if l.Geo != nil {
		lat = formatCSVFloat(l.Geo.Lat)
		lng = formatCSVFloat(l.Geo.Lng)
	}
	var alts []string
	if l.Dedupe != nil {
		for _, a := range l.Dedupe.AlternativeSources {
			alts = append(alts, string(a.Source)+":"+a.SourceID)
		}
	}
	var posted string
	if l.Dates.PostedAt != nil {
		posted = l.Dates.PostedAt.Format(time.RFC3339)
	}
	return []string{
		l.ID,
		string(l.Source),
		l.SourceID,
		l.URL,
		l.Title,
		l.PropertyType,
		l.DealType,
		formatCSVFloat(l.Price.Total),
		l.Price.Type,
		formatCSVFloat(l.PricePerSqm),
		formatCSVFloat(l.Size.LivingSqm),
		formatCSVFloat(l.Rooms),
		l.Address.Street,
		l.Address.HouseNo,
		l.Address.Postcode,
		l.Address.City,
		lat,
		lng,
		strings.Join(alts, ";"),
		posted,
		l.Dates.ExtractedAt.Format(time.RFC3339),
	}
}

func formatCSVFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}
