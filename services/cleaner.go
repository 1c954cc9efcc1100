package services

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"immo-scraper/models"
	"immo-scraper/utils"
)

var (
	// numberRegexp captures the first number in German or plain notation
	numberRegexp = regexp.MustCompile(`\d[\d.,]*`)
	// thousandsRegexp matches "350.000" or "1.250.000" (dots as group separators)
	thousandsRegexp = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
	// roomsRegexp captures "3 Zimmer", "2,5 Zi." or "4-Zimmer"
	roomsRegexp = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*[-.]?\s*(?:zimmer|zi\.?|rooms?)`)
	// germanDateRegexp captures "1. März 2024" and "1 Mär. 2024"
	germanDateRegexp = regexp.MustCompile(`^(\d{1,2})\.?\s+([a-zäöü]+)\.?\s+(\d{4})$`)
)

var (
	ErrMissingURL      = errors.New("missing url")
	ErrMissingSourceID = errors.New("missing source id")
)

var germanMonths = map[string]time.Month{
	"januar": time.January, "jan": time.January,
	"februar": time.February, "feb": time.February,
	"märz": time.March, "mär": time.March, "maerz": time.March,
	"april": time.April, "apr": time.April,
	"mai": time.May,
	"juni": time.June, "jun": time.June,
	"juli": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"oktober": time.October, "okt": time.October,
	"november": time.November, "nov": time.November,
	"dezember": time.December, "dez": time.December,
}

var propertyTypeWords = []struct {
	kind  string
	words []string
}{
	{"apartment", []string{"wohnung", "apartment", "etw", "eigentumswohnung", "maisonette", "penthouse"}},
	{"house", []string{"haus", "einfamilienhaus", "reihenhaus", "villa", "doppelhaus", "house"}},
	{"land", []string{"grundstück", "grundstueck", "bauland", "land"}},
	{"commercial", []string{"büro", "buero", "gewerbe", "laden", "praxis", "commercial"}},
}

// Cleaner transforms RawListings into clean, validated Listings.
type Cleaner struct {
	logger *utils.Logger
	now    func() time.Time
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Cleaner{logger: logger, now: time.Now}
}

// Clean processes a page of raw listings. Listings that fail to clean and
// exact source/sourceId repeats are dropped and logged.
func (c *Cleaner) Clean(raw []*models.RawListing) []*models.Listing {
	seen := make(map[string]struct{})
	result := make([]*models.Listing, 0, len(raw))

	for _, r := range raw {
		l, err := c.CleanOne(r)
		if err != nil {
			c.logger.Warn("[cleaner] Dropping listing %q: %v", r.Title, err)
			continue
		}

		key := string(l.Source) + ":" + l.SourceID
		if _, dup := seen[key]; dup {
			c.logger.Debug("[cleaner] Duplicate listing skipped: %s", key)
			continue
		}
		seen[key] = struct{}{}
		result = append(result, l)
	}

	c.logger.Info("[cleaner] Cleaned %d → %d listings (dropped %d)",
		len(raw), len(result), len(raw)-len(result))
	return result
}

// CleanOne normalizes a single raw listing and assigns its canonical id.
func (c *Cleaner) CleanOne(r *models.RawListing) (*models.Listing, error) {
	if r == nil {
		return nil, errors.New("nil listing")
	}
	url := strings.TrimSpace(r.URL)
	if url == "" {
		return nil, ErrMissingURL
	}
	sourceID := strings.TrimSpace(r.SourceID)
	if sourceID == "" {
		return nil, fmt.Errorf("%s: %w", url, ErrMissingSourceID)
	}

	extractedAt := r.ScrapedAt
	if extractedAt.IsZero() {
		extractedAt = c.now()
	}

	kind := r.PropertyType
	if strings.TrimSpace(kind) == "" {
		kind = r.Title
	}
	deal := normaliseDealType(r.DealType)
	if deal == models.DealUnknown {
		deal = normaliseDealType(r.URL)
	}

	l := &models.Listing{
		Source:       r.Source,
		SourceID:     sourceID,
		URL:          url,
		Title:        normaliseText(r.Title),
		Description:  normaliseText(r.Description),
		PropertyType: normalisePropertyType(kind),
		DealType:     deal,
		Price: models.Price{
			Total:    parseGermanNumber(r.RawPrice),
			Currency: "EUR",
			Type:     priceType(r.PriceType, r.RawPrice, deal),
		},
		Size: models.Size{
			LivingSqm: parseGermanNumber(r.RawSize),
			PlotSqm:   parseGermanNumber(r.RawPlot),
		},
		Rooms:    parseRooms(r.RawRooms),
		Address:  buildAddress(r.RawAddress),
		Geo:      parseGeo(r.Lat, r.Lng),
		Features: normaliseFeatures(r.Features),
		Images:   nonEmpty(r.Images),
		Dates:    models.Dates{ExtractedAt: extractedAt},
	}

	if t, ok := parseGermanDate(r.PostedAt, extractedAt); ok {
		l.Dates.PostedAt = &t
	}
	if r.ContactName != "" || r.ContactPhone != "" || r.Agency != "" {
		l.Contact = &models.Contact{
			Name:   normaliseText(r.ContactName),
			Phone:  strings.TrimSpace(r.ContactPhone),
			Agency: normaliseText(r.Agency),
		}
	}
	if r.EnergyClass != "" || r.HeatingType != "" {
		l.Energy = &models.Energy{
			EfficiencyClass: strings.ToUpper(strings.TrimSpace(r.EnergyClass)),
			HeatingType:     normaliseText(r.HeatingType),
		}
	}
	if l.Price.Total > 0 && l.Size.LivingSqm > 0 {
		l.PricePerSqm = round2(l.Price.Total / l.Size.LivingSqm)
	}

	l.ID = CanonicalID(l)
	return l, nil
}

// parseGermanNumber reads "1.117,55 €", "350.000", "67,73 m²" or "1200".
// Unparseable input yields 0.
func parseGermanNumber(raw string) float64 {
	m := numberRegexp.FindString(raw)
	if m == "" {
		return 0
	}
	m = strings.TrimRight(m, ".,")

	switch {
	case strings.Contains(m, ","):
		m = strings.ReplaceAll(m, ".", "")
		m = strings.Replace(m, ",", ".", 1)
	case thousandsRegexp.MatchString(m):
		m = strings.ReplaceAll(m, ".", "")
	}

	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseRooms(raw string) float64 {
	if m := roomsRegexp.FindStringSubmatch(raw); m != nil {
		return parseGermanNumber(m[1])
	}
	return parseGermanNumber(raw)
}

func parseGeo(lat, lng string) *models.Geo {
	la, err1 := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	ln, err2 := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	if la < -90 || la > 90 || ln < -180 || ln > 180 {
		return nil
	}
	return &models.Geo{Lat: la, Lng: ln}
}

func buildAddress(raw string) models.Address {
	raw = normaliseText(raw)
	p := parseGermanAddress(raw)
	return models.Address{
		Raw:      raw,
		Street:   p.Street,
		HouseNo:  p.HouseNo,
		Postcode: p.Postcode,
		City:     p.City,
		Country:  "DE",
	}
}

// parseGermanDate accepts ISO timestamps, "02.01.2006", German month names
// and the relative words "heute" and "gestern".
func parseGermanDate(raw string, now time.Time) (time.Time, bool) {
	s := normaliseText(raw)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02", "02.01.2006", "2.1.2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	s = strings.ToLower(s)
	switch s {
	case "heute", "today":
		return startOfDay(now), true
	case "gestern", "yesterday":
		return startOfDay(now).AddDate(0, 0, -1), true
	}

	if m := germanDateRegexp.FindStringSubmatch(s); m != nil {
		month, ok := germanMonths[m[2]]
		if !ok {
			return time.Time{}, false
		}
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func normalisePropertyType(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "unknown"
	}
	for _, pt := range propertyTypeWords {
		for _, w := range pt.words {
			if strings.Contains(s, w) {
				return pt.kind
			}
		}
	}
	return "other"
}

func normaliseDealType(raw string) string {
	s := strings.ToLower(raw)
	for _, w := range []string{"miete", "mieten", "rent", "vermietung"} {
		if strings.Contains(s, w) {
			return models.DealRent
		}
	}
	for _, w := range []string{"kauf", "kaufen", "verkauf", "sale", "eigentum"} {
		if strings.Contains(s, w) {
			return models.DealSale
		}
	}
	return models.DealUnknown
}

func priceType(explicit, rawPrice, deal string) string {
	s := strings.ToLower(explicit + " " + rawPrice)
	switch {
	case strings.Contains(s, "warm"):
		return models.PriceWarm
	case strings.Contains(s, "kalt"):
		return models.PriceKalt
	case strings.Contains(s, "kauf") || deal == models.DealSale:
		return models.PriceKaufpreis
	}
	return models.PriceKalt
}

func normaliseFeatures(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, f := range in {
		f = strings.ToLower(normaliseText(f))
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}
