package services

import (
	"errors"
	"testing"
	"time"

	"immo-scraper/models"
	"immo-scraper/utils"
)

func newTestLogger() *utils.Logger { return utils.NewNopLogger() }

func TestParseGermanNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"1.117,55 €", 1117.55},
		{"350.000 €", 350000},
		{"1.250.000", 1250000},
		{"67,73 m²", 67.73},
		{"85.5m²", 85.5},
		{"Kaltmiete: 1200 EUR", 1200},
		{"", 0},
		{"auf Anfrage", 0},
	}

	for _, tt := range tests {
		if got := parseGermanNumber(tt.raw); got != tt.want {
			t.Errorf("parseGermanNumber(%q) = %.2f; want %.2f", tt.raw, got, tt.want)
		}
	}
}

func TestParseRooms(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"3 Zimmer", 3},
		{"2,5 Zi.", 2.5},
		{"4-Zimmer-Wohnung", 4},
		{"1.5", 1.5},
		{"", 0},
	}

	for _, tt := range tests {
		if got := parseRooms(tt.raw); got != tt.want {
			t.Errorf("parseRooms(%q) = %.1f; want %.1f", tt.raw, got, tt.want)
		}
	}
}

func TestParseGermanDate(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)
	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-01T10:00:00Z", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), true},
		{"01.03.2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"1. März 2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"15 Dez. 2023", time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC), true},
		{"heute", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), true},
		{"Gestern", time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC), true},
		{"bald", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		got, ok := parseGermanDate(tt.raw, now)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("parseGermanDate(%q) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNormaliseTypes(t *testing.T) {
	props := []struct{ raw, want string }{
		{"Etagenwohnung", "apartment"},
		{"Reihenhaus", "house"},
		{"Baugrundstück", "land"},
		{"Büro/Praxis", "commercial"},
		{"Garage", "other"},
		{"", "unknown"},
	}
	for _, tt := range props {
		if got := normalisePropertyType(tt.raw); got != tt.want {
			t.Errorf("normalisePropertyType(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}

	deals := []struct{ raw, want string }{
		{"Miete", models.DealRent},
		{"kaufen", models.DealSale},
		{"https://www.immowelt.de/liste/berlin/wohnungen/mieten", models.DealRent},
		{"", models.DealUnknown},
	}
	for _, tt := range deals {
		if got := normaliseDealType(tt.raw); got != tt.want {
			t.Errorf("normaliseDealType(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCleanOne(t *testing.T) {
	c := NewCleaner(newTestLogger())
	scraped := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	l, err := c.CleanOne(&models.RawListing{
		Source:       models.SourceImmowelt,
		SourceID:     "2abc3",
		URL:          " https://www.immowelt.de/expose/2abc3 ",
		Title:        "  Helle   2-Zimmer-Wohnung ",
		PropertyType: "Wohnung",
		DealType:     "Miete",
		RawPrice:     "1.117,55 € Kaltmiete",
		RawSize:      "67,73 m²",
		RawRooms:     "2 Zimmer",
		RawAddress:   "Langhansstraße 70, Weißensee, 13086 Berlin",
		Lat:          "52.5512",
		Lng:          "13.4473",
		Features:     []string{"Balkon", "balkon", " Keller "},
		Images:       []string{"https://img.example.de/a.jpg", ""},
		ContactPhone: "+49 30 1234567",
		EnergyClass:  "c",
		PostedAt:     "28.04.2024",
		ScrapedAt:    scraped,
	})
	if err != nil {
		t.Fatalf("CleanOne: %v", err)
	}

	if l.URL != "https://www.immowelt.de/expose/2abc3" {
		t.Errorf("URL not trimmed: %q", l.URL)
	}
	if l.Title != "Helle 2-Zimmer-Wohnung" {
		t.Errorf("Title = %q", l.Title)
	}
	if l.PropertyType != "apartment" || l.DealType != models.DealRent {
		t.Errorf("types = %s/%s", l.PropertyType, l.DealType)
	}
	if l.Price.Total != 1117.55 || l.Price.Type != models.PriceKalt || l.Price.Currency != "EUR" {
		t.Errorf("Price = %+v", l.Price)
	}
	if l.Size.LivingSqm != 67.73 || l.Rooms != 2 {
		t.Errorf("size/rooms = %v/%v", l.Size.LivingSqm, l.Rooms)
	}
	if l.PricePerSqm != 16.5 {
		t.Errorf("PricePerSqm = %v; want 16.5", l.PricePerSqm)
	}
	if l.Address.City != "Berlin" || l.Address.Postcode != "13086" || l.Address.Street != "Langhansstraße" || l.Address.Country != "DE" {
		t.Errorf("Address = %+v", l.Address)
	}
	if l.Geo == nil || l.Geo.Lat != 52.5512 {
		t.Errorf("Geo = %+v", l.Geo)
	}
	if len(l.Features) != 2 || len(l.Images) != 1 {
		t.Errorf("features %v images %v", l.Features, l.Images)
	}
	if l.Contact == nil || l.Contact.Phone != "+49 30 1234567" {
		t.Errorf("Contact = %+v", l.Contact)
	}
	if l.Energy == nil || l.Energy.EfficiencyClass != "C" {
		t.Errorf("Energy = %+v", l.Energy)
	}
	if l.Dates.PostedAt == nil || l.Dates.PostedAt.Day() != 28 || !l.Dates.ExtractedAt.Equal(scraped) {
		t.Errorf("Dates = %+v", l.Dates)
	}
	if l.ID != CanonicalID(l) || l.ID == "" {
		t.Errorf("ID = %q", l.ID)
	}
}

func TestCleanOneSalePriceType(t *testing.T) {
	c := NewCleaner(newTestLogger())
	l, err := c.CleanOne(&models.RawListing{
		Source: models.SourceImmonet, SourceID: "1", URL: "https://www.immonet.de/angebot/1",
		Title: "Einfamilienhaus", DealType: "Kauf", RawPrice: "450.000 €",
	})
	if err != nil {
		t.Fatal(err)
	}
	if l.Price.Type != models.PriceKaufpreis || l.Price.Total != 450000 {
		t.Errorf("Price = %+v", l.Price)
	}
	if l.PropertyType != "house" {
		t.Errorf("PropertyType from title = %q", l.PropertyType)
	}
}

func TestCleanOneRejectsIncomplete(t *testing.T) {
	c := NewCleaner(newTestLogger())

	if _, err := c.CleanOne(&models.RawListing{SourceID: "1"}); !errors.Is(err, ErrMissingURL) {
		t.Errorf("missing url: got %v", err)
	}
	if _, err := c.CleanOne(&models.RawListing{URL: "https://www.immonet.de/angebot/1"}); !errors.Is(err, ErrMissingSourceID) {
		t.Errorf("missing source id: got %v", err)
	}
}

func TestCleanerDropsEmptyURL(t *testing.T) {
	c := NewCleaner(newTestLogger())
	raw := []*models.RawListing{
		{Title: "No URL", SourceID: "1", Source: models.SourceImmowelt, ScrapedAt: time.Now()},
		{Title: "Has URL", SourceID: "2", URL: "https://www.immowelt.de/expose/2", Source: models.SourceImmowelt, ScrapedAt: time.Now()},
	}

	cleaned := c.Clean(raw)
	if len(cleaned) != 1 {
		t.Errorf("expected 1 listing after dropping empty URL, got %d", len(cleaned))
	}
}

func TestCleanerDeduplicatesSourceID(t *testing.T) {
	c := NewCleaner(newTestLogger())
	raw := []*models.RawListing{
		{Title: "A", SourceID: "1", URL: "https://www.immowelt.de/expose/1", Source: models.SourceImmowelt, ScrapedAt: time.Now()},
		{Title: "B", SourceID: "1", URL: "https://www.immowelt.de/expose/1?ref=x", Source: models.SourceImmowelt, ScrapedAt: time.Now()},
		{Title: "C", SourceID: "1", URL: "https://www.immonet.de/angebot/1", Source: models.SourceImmonet, ScrapedAt: time.Now()},
	}

	cleaned := c.Clean(raw)
	if len(cleaned) != 2 {
		t.Errorf("expected 2 listings after deduplication, got %d", len(cleaned))
	}
}
