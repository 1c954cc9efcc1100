package models

import "time"

// Source identifies the portal a listing was extracted from.
type Source string

const (
	SourceImmoScout24 Source = "immoscout24"
	SourceImmowelt    Source = "immowelt"
	SourceImmonet     Source = "immonet"
)

// DefaultSourcePriority is the merge tie-break order. Lower index wins.
var DefaultSourcePriority = []Source{SourceImmoScout24, SourceImmowelt, SourceImmonet}

// Deal types.
const (
	DealRent    = "rent"
	DealSale    = "sale"
	DealUnknown = "unknown"
)

// Price types.
const (
	PriceKalt      = "kalt"
	PriceWarm      = "warm"
	PriceKaufpreis = "kaufpreis"
)

// RawListing holds unprocessed extracted data straight from a portal page.
// All numeric values are still text; the Cleaner turns them into a Listing.
type RawListing struct {
	Source       Source    `json:"source"`
	SourceID     string    `json:"sourceId"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	PropertyType string    `json:"propertyType,omitempty"`
	DealType     string    `json:"dealType,omitempty"`
	RawPrice     string    `json:"price,omitempty"`
	PriceType    string    `json:"priceType,omitempty"`
	RawSize      string    `json:"size,omitempty"`
	RawPlot      string    `json:"plot,omitempty"`
	RawRooms     string    `json:"rooms,omitempty"`
	RawAddress   string    `json:"address,omitempty"`
	Lat          string    `json:"lat,omitempty"`
	Lng          string    `json:"lng,omitempty"`
	Features     []string  `json:"features,omitempty"`
	Images       []string  `json:"images,omitempty"`
	ContactName  string    `json:"contactName,omitempty"`
	ContactPhone string    `json:"contactPhone,omitempty"`
	Agency       string    `json:"agency,omitempty"`
	EnergyClass  string    `json:"energyClass,omitempty"`
	HeatingType  string    `json:"heatingType,omitempty"`
	PostedAt     string    `json:"postedAt,omitempty"`
	ScrapedAt    time.Time `json:"scrapedAt"`
}

type Price struct {
	Total    float64            `json:"total"`
	Currency string             `json:"currency"`
	Type     string             `json:"type,omitempty"`
	Extra    map[string]float64 `json:"extra,omitempty"`
}

// Equal compares the fields that make up a price change.
func (p Price) Equal(o Price) bool {
	return p.Total == o.Total && p.Currency == o.Currency && p.Type == o.Type
}

type Size struct {
	LivingSqm float64 `json:"livingSqm,omitempty"`
	PlotSqm   float64 `json:"plotSqm,omitempty"`
}

type Address struct {
	Raw      string `json:"raw,omitempty"`
	Street   string `json:"street,omitempty"`
	HouseNo  string `json:"houseNo,omitempty"`
	Postcode string `json:"postcode,omitempty"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Country  string `json:"country"`
}

type Geo struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Contact struct {
	Name   string `json:"name,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Agency string `json:"agency,omitempty"`
}

type Energy struct {
	EfficiencyClass string  `json:"efficiencyClass,omitempty"`
	Consumption     float64 `json:"consumption,omitempty"`
	HeatingType     string  `json:"heatingType,omitempty"`
}

type Dates struct {
	ExtractedAt time.Time  `json:"extractedAt"`
	PostedAt    *time.Time `json:"postedAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// AlternativeSource is a cross-link to the same property on another portal.
type AlternativeSource struct {
	Source   Source `json:"source"`
	SourceID string `json:"sourceId"`
	URL      string `json:"url"`
}

type DedupeInfo struct {
	Fingerprints       []string            `json:"fingerprints,omitempty"`
	AlternativeSources []AlternativeSource `json:"alternativeSources,omitempty"`
}

// Listing is the normalized, canonical record emitted to the feed.
type Listing struct {
	ID           string      `json:"id"`
	Source       Source      `json:"source"`
	SourceID     string      `json:"sourceId"`
	URL          string      `json:"url"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	PropertyType string      `json:"propertyType"`
	DealType     string      `json:"dealType"`
	Price        Price       `json:"price"`
	PricePerSqm  float64     `json:"pricePerSqm,omitempty"`
	Size         Size        `json:"size"`
	Rooms        float64     `json:"rooms,omitempty"`
	Address      Address     `json:"address"`
	Geo          *Geo        `json:"geo,omitempty"`
	Features     []string    `json:"features,omitempty"`
	Images       []string    `json:"images,omitempty"`
	Contact      *Contact    `json:"contact,omitempty"`
	Energy       *Energy     `json:"energy,omitempty"`
	Dates        Dates       `json:"dates"`
	Dedupe       *DedupeInfo `json:"dedupe,omitempty"`
}

// Clone returns a deep copy so a merged record never aliases its origin.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	c := *l
	if l.Price.Extra != nil {
		c.Price.Extra = make(map[string]float64, len(l.Price.Extra))
		for k, v := range l.Price.Extra {
			c.Price.Extra[k] = v
		}
	}
	if l.Geo != nil {
		g := *l.Geo
		c.Geo = &g
	}
	if l.Contact != nil {
		ct := *l.Contact
		c.Contact = &ct
	}
	if l.Energy != nil {
		e := *l.Energy
		c.Energy = &e
	}
	if l.Dates.PostedAt != nil {
		t := *l.Dates.PostedAt
		c.Dates.PostedAt = &t
	}
	if l.Dates.UpdatedAt != nil {
		t := *l.Dates.UpdatedAt
		c.Dates.UpdatedAt = &t
	}
	c.Features = append([]string(nil), l.Features...)
	c.Images = append([]string(nil), l.Images...)
	if l.Dedupe != nil {
		c.Dedupe = &DedupeInfo{
			Fingerprints:       append([]string(nil), l.Dedupe.Fingerprints...),
			AlternativeSources: append([]AlternativeSource(nil), l.Dedupe.AlternativeSources...),
		}
	}
	return &c
}

// Ref returns the cross-link entry that points at this listing.
func (l *Listing) Ref() AlternativeSource {
	return AlternativeSource{Source: l.Source, SourceID: l.SourceID, URL: l.URL}
}

// InsightReport holds the computed analytics over the feed of one run.
type InsightReport struct {
	TotalListings       int
	BySource            map[Source]int
	ByDealType          map[string]int
	AveragePrice        float64
	MinPrice            float64
	MaxPrice            float64
	AveragePricePerSqm  float64
	MostExpensive       *Listing
	CheapestPerSqm      []*Listing
	ListingsByCity      map[string]int
	CrossLinkedListings int
}
