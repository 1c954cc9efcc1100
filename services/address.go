package services

import (
	"regexp"
	"strings"
)

// AddressNormalizer canonicalises one address component before it enters
// a fingerprint.
type AddressNormalizer interface {
	Normalize(component string) string
}

var (
	houseNoRegexp      = regexp.MustCompile(`^(.+?)\s+(\d+.*?)$`)
	postcodeCityRegexp = regexp.MustCompile(`(\d{5})\s+(.+)`)
	cityPostcodeRegexp = regexp.MustCompile(`^(.+?)\s*\((\d{5})\)$`)
)

// GermanAddressNormalizer folds umlauts and common street spellings so that
// "Hauptstr. 5" and "Hauptstraße 5" collide.
type GermanAddressNormalizer struct{}

var streetReplacer = strings.NewReplacer("straße", "strasse", "str.", "strasse")

var umlautReplacer = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
	"Ä", "ae", "Ö", "oe", "Ü", "ue",
)

func (GermanAddressNormalizer) Normalize(component string) string {
	s := strings.ToLower(strings.TrimSpace(component))
	s = streetReplacer.Replace(s)
	s = umlautReplacer.Replace(s)
	return s
}

// parsedAddress holds the components recovered from a free-text address.
type parsedAddress struct {
	Street   string
	HouseNo  string
	Postcode string
	City     string
}

// parseGermanAddress splits "Langhansstraße 70, Weißensee, 13086 Berlin"
// and the portal variant "Langhansstraße 70,Weißensee,Berlin (13086)".
// The postcode/city pair is taken from the last comma part, street and
// house number from the first.
func parseGermanAddress(raw string) parsedAddress {
	var out parsedAddress
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out
	}

	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	last := parts[len(parts)-1]
	if m := postcodeCityRegexp.FindStringSubmatch(last); m != nil {
		out.Postcode = m[1]
		out.City = strings.TrimSpace(m[2])
	} else if m := cityPostcodeRegexp.FindStringSubmatch(last); m != nil {
		out.City = strings.TrimSpace(m[1])
		out.Postcode = m[2]
	} else if len(parts) > 1 {
		out.City = parts[len(parts)-1]
	}

	if len(parts) > 1 {
		if m := houseNoRegexp.FindStringSubmatch(parts[0]); m != nil {
			out.Street = strings.TrimSpace(m[1])
			out.HouseNo = strings.TrimSpace(m[2])
		} else {
			out.Street = parts[0]
		}
	}
	return out
}
