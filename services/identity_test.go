package services

import (
	"testing"

	"immo-scraper/models"
)

func TestRollingHash(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"", 8, "0"},
		{"a", 8, "61"},
		{"ab", 8, "c21"},
		{"hello world", 8, "6aefe2c4"},
		{"hello world", 4, "6aef"},
		// Wraps to a negative int32; the absolute value is used.
		{"de_ber_10115_apa_rent_1200_65_3", 8, "59f24771"},
		// Hashes to math.MinInt32.
		{"polygenelubricants", 8, "80000000"},
		{"ä", 8, "e4"},
	}
	for _, tt := range tests {
		if got := RollingHash(tt.in, tt.n); got != tt.want {
			t.Errorf("RollingHash(%q, %d) = %q; want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		name    string
		listing *models.Listing
		want    string
	}{
		{
			name: "full attributes",
			listing: &models.Listing{
				PropertyType: "apartment",
				DealType:     models.DealRent,
				Price:        models.Price{Total: 1200},
				Size:         models.Size{LivingSqm: 64.6},
				Rooms:        2.5,
				Address:      models.Address{City: "Berlin", Postcode: "10115"},
			},
			want: "de_ber_10115_apa_rent_1200_65_3_59f24771",
		},
		{
			name: "unknown location",
			listing: &models.Listing{
				PropertyType: "house",
				DealType:     models.DealSale,
				Price:        models.Price{Total: 350000},
				Size:         models.Size{LivingSqm: 120},
				Rooms:        5,
			},
			want: "de_unk_00000_hou_sale_350000_120_5_3c68a7f5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanonicalID(tt.listing)
			if got != tt.want {
				t.Errorf("CanonicalID() = %q; want %q", got, tt.want)
			}
			if again := CanonicalID(tt.listing); again != got {
				t.Errorf("CanonicalID not deterministic: %q then %q", got, again)
			}
		})
	}
}

func TestCanonicalIDSensitiveToRounding(t *testing.T) {
	a := &models.Listing{PropertyType: "apartment", DealType: models.DealRent, Price: models.Price{Total: 1200.4}}
	b := &models.Listing{PropertyType: "apartment", DealType: models.DealRent, Price: models.Price{Total: 1200.5}}
	if CanonicalID(a) == CanonicalID(b) {
		t.Error("prices rounding to different integers produced the same id")
	}
}

func TestContentChecksumIgnoresFeatureOrder(t *testing.T) {
	a := &models.Listing{Title: "Altbau", Description: "A", Price: models.Price{Total: 1200}, Features: []string{"balkon", "keller"}}
	b := &models.Listing{Title: "Altbau", Description: "A", Price: models.Price{Total: 1200}, Features: []string{"keller", "balkon"}}
	if ContentChecksum(a) != ContentChecksum(b) {
		t.Error("feature order changed the checksum")
	}
	if a.Features[0] != "balkon" {
		t.Error("ContentChecksum reordered the listing's features")
	}

	b.Description = "B"
	if ContentChecksum(a) == ContentChecksum(b) {
		t.Error("description change not reflected in checksum")
	}
}

func TestParseGermanAddress(t *testing.T) {
	tests := []struct {
		raw  string
		want parsedAddress
	}{
		{"Langhansstraße 70, Weißensee, 13086 Berlin",
			parsedAddress{Street: "Langhansstraße", HouseNo: "70", Postcode: "13086", City: "Berlin"}},
		{"Langhansstraße 70,Weißensee,Berlin (13086)",
			parsedAddress{Street: "Langhansstraße", HouseNo: "70", Postcode: "13086", City: "Berlin"}},
		{"10115 Berlin", parsedAddress{Postcode: "10115", City: "Berlin"}},
		{"Am Markt, München", parsedAddress{Street: "Am Markt", City: "München"}},
		{"", parsedAddress{}},
	}
	for _, tt := range tests {
		if got := parseGermanAddress(tt.raw); got != tt.want {
			t.Errorf("parseGermanAddress(%q) = %+v; want %+v", tt.raw, got, tt.want)
		}
	}
}
