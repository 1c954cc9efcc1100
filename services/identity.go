package services

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"

	"immo-scraper/models"
)

const (
	countryTag      = "de"
	unknownCity     = "unk"
	unknownPostcode = "00000"
	hashLen         = 8
)

// RollingHash is the 32-bit shift-subtract hash used for id suffixes and
// content checksums: h = h*31 + c over UTF-16 code units with two's
// complement wraparound, then |h| in lowercase hex truncated to n chars.
//
// It is not collision resistant and must not be used where uniqueness
// matters for security.
func RollingHash(s string, n int) string {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	out := strconv.FormatInt(abs, 16)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// CanonicalID derives the stable listing id from its attributes. Identical
// attribute tuples always yield identical ids.
func CanonicalID(l *models.Listing) string {
	city := unknownCity
	if c := strings.TrimSpace(l.Address.City); c != "" {
		city = firstRunes(strings.ToLower(c), 3)
	}
	postcode := unknownPostcode
	if p := strings.TrimSpace(l.Address.Postcode); p != "" {
		postcode = p
	}

	base := strings.Join([]string{
		countryTag,
		city,
		postcode,
		firstRunes(l.PropertyType, 3),
		l.DealType,
		formatRounded(l.Price.Total),
		formatRounded(l.Size.LivingSqm),
		formatRounded(l.Rooms),
	}, "_")

	return base + "_" + RollingHash(base, hashLen)
}

// ContentChecksum fingerprints the fields whose change is reported as a
// description update: title, description, price, living area and features.
func ContentChecksum(l *models.Listing) string {
	features := append([]string(nil), l.Features...)
	sort.Strings(features)

	content := strings.Join([]string{
		l.Title,
		l.Description,
		strconv.FormatFloat(l.Price.Total, 'f', -1, 64),
		strconv.FormatFloat(l.Size.LivingSqm, 'f', -1, 64),
		strings.Join(features, ","),
	}, "|")

	return RollingHash(content, hashLen)
}

// roundHalfUp rounds .5 towards positive infinity.
func roundHalfUp(f float64) float64 {
	return math.Floor(f + 0.5)
}

func formatRounded(f float64) string {
	return strconv.FormatFloat(roundHalfUp(f), 'f', 0, 64)
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
