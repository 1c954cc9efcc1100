package services

import (
	"crypto/sha1"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"unicode"

	"immo-scraper/models"
)

const (
	noGeo   = "nogeo"
	noImage = "noimg"

	keyDelimiter    = "|"
	bucketDelimiter = "#"
)

// Fingerprint is the four-key coarse signature of a listing. An empty key
// means the source data was missing. It is recomputed on demand and never
// persisted.
type Fingerprint struct {
	AddressKey string
	GeoKey     string
	MetricsKey string
	ImageKey   string

	// Bucketed values behind MetricsKey, used by the match tolerance check.
	Price float64
	Size  float64
	Rooms float64
}

// BucketKey concatenates all four keys; geo and image fall back to
// sentinels when absent.
func (fp Fingerprint) BucketKey() string {
	geo := fp.GeoKey
	if geo == "" {
		geo = noGeo
	}
	img := fp.ImageKey
	if img == "" {
		img = noImage
	}
	return strings.Join([]string{fp.AddressKey, geo, fp.MetricsKey, img}, bucketDelimiter)
}

// Keys lists the non-empty keys, stored on the listing's dedupe metadata.
func (fp Fingerprint) Keys() []string {
	var keys []string
	for _, k := range []string{fp.AddressKey, fp.GeoKey, fp.MetricsKey, fp.ImageKey} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// FingerprintGenerator derives fingerprints. It never fails.
type FingerprintGenerator struct {
	normalizer AddressNormalizer
}

// NewFingerprintGenerator uses the German normalizer when n is nil.
func NewFingerprintGenerator(n AddressNormalizer) *FingerprintGenerator {
	if n == nil {
		n = GermanAddressNormalizer{}
	}
	return &FingerprintGenerator{normalizer: n}
}

func (g *FingerprintGenerator) Generate(l *models.Listing) Fingerprint {
	price := roundTo(l.Price.Total, 50)
	size := roundTo(l.Size.LivingSqm, 5)
	rooms := roundTo(l.Rooms, 0.5)

	return Fingerprint{
		AddressKey: g.addressKey(l.Address),
		GeoKey:     geoKey(l.Geo),
		MetricsKey: metricsKey(price, size, rooms),
		ImageKey:   imageKey(l.Images),
		Price:      price,
		Size:       size,
		Rooms:      rooms,
	}
}

func (g *FingerprintGenerator) addressKey(a models.Address) string {
	var parts []string
	for _, c := range []string{a.Street, a.HouseNo, a.Postcode, a.City} {
		if strings.TrimSpace(c) == "" {
			continue
		}
		n := stripSpaces(strings.ToLower(g.normalizer.Normalize(c)))
		if n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, keyDelimiter)
}

// metricsKey is empty only when price, size and rooms are all unknown.
// A single missing metric stays in the key as 0.
func metricsKey(price, size, rooms float64) string {
	if price == 0 && size == 0 && rooms == 0 {
		return ""
	}
	return strings.Join([]string{formatFloat(price), formatFloat(size), formatFloat(rooms)}, keyDelimiter)
}

// geoKey quantises to 4 decimals (about 11 m).
func geoKey(geo *models.Geo) string {
	if geo == nil {
		return ""
	}
	// 0,0 is what portals emit for an unset map pin.
	if geo.Lat == 0 && geo.Lng == 0 {
		return ""
	}
	return strconv.FormatFloat(geo.Lat, 'f', 4, 64) + "," + strconv.FormatFloat(geo.Lng, 'f', 4, 64)
}

// imageKey hashes only the first image URL.
func imageKey(images []string) string {
	if len(images) == 0 || images[0] == "" {
		return ""
	}
	sum := sha1.Sum([]byte(images[0]))
	return hex.EncodeToString(sum[:])[:8]
}

func roundTo(v, step float64) float64 {
	return math.Round(v/step) * step
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
