package portal

import (
	"fmt"
	"net/url"
	"strings"

	"immo-scraper/models"
	"immo-scraper/utils"
)

// Selectors tell the SelectorExtractor where a portal keeps each field on
// a search result page. Attribute fields name the attribute to read; an
// empty attribute means the element text.
type Selectors struct {
	Card      string `yaml:"card"`
	IDAttr    string `yaml:"id_attr"`
	Link      string `yaml:"link"`
	Title     string `yaml:"title"`
	Price     string `yaml:"price"`
	Size      string `yaml:"size"`
	Rooms     string `yaml:"rooms"`
	Address   string `yaml:"address"`
	Image     string `yaml:"image"`
	ImageAttr string `yaml:"image_attr"`
	NextPage  string `yaml:"next_page"`
}

// merge returns s with every empty field taken from def.
func (s Selectors) merge(def Selectors) Selectors {
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&s.Card, def.Card)
	fill(&s.IDAttr, def.IDAttr)
	fill(&s.Link, def.Link)
	fill(&s.Title, def.Title)
	fill(&s.Price, def.Price)
	fill(&s.Size, def.Size)
	fill(&s.Rooms, def.Rooms)
	fill(&s.Address, def.Address)
	fill(&s.Image, def.Image)
	fill(&s.ImageAttr, def.ImageAttr)
	fill(&s.NextPage, def.NextPage)
	return s
}

// Portal describes one supported listing site.
type Portal struct {
	Source    models.Source
	Domain    string
	Selectors Selectors
}

var registry = []Portal{
	{
		Source: models.SourceImmoScout24,
		Domain: "immobilienscout24.de",
		Selectors: Selectors{
			Card:      "li.result-list__listing",
			IDAttr:    "data-id",
			Link:      "a.result-list-entry__brand-title-container",
			Title:     "h2.result-list-entry__brand-title",
			Price:     "dl.result-list-entry__primary-criterion:nth-of-type(1) dd",
			Size:      "dl.result-list-entry__primary-criterion:nth-of-type(2) dd",
			Rooms:     "dl.result-list-entry__primary-criterion:nth-of-type(3) dd",
			Address:   "div.result-list-entry__address",
			Image:     "img.gallery__image",
			ImageAttr: "src",
			NextPage:  "a[data-nav-next-page]",
		},
	},
	{
		Source: models.SourceImmowelt,
		Domain: "immowelt.de",
		Selectors: Selectors{
			Card:      "div[data-testid='serp-core-classified-card-testid']",
			Link:      "a[data-testid='card-mfe-covering-link-testid']",
			Title:     "div[data-testid='cardmfe-description-box-text-test-id']",
			Price:     "div[data-testid='cardmfe-price-testid']",
			Size:      "div[data-testid='cardmfe-keyfacts-testid'] div:nth-of-type(3)",
			Rooms:     "div[data-testid='cardmfe-keyfacts-testid'] div:nth-of-type(1)",
			Address:   "div[data-testid='cardmfe-description-box-address']",
			Image:     "picture img",
			ImageAttr: "src",
			NextPage:  "a[data-testid='pagination-next-page']",
		},
	},
	{
		Source: models.SourceImmonet,
		Domain: "immonet.de",
		Selectors: Selectors{
			Card:      "div.search-list-entry",
			IDAttr:    "data-object-id",
			Link:      "a.js-object-link",
			Title:     "a.js-object-link",
			Price:     "div[id^='selPrice'] span",
			Size:      "p[id^='selArea'] span",
			Rooms:     "p[id^='selRooms'] span",
			Address:   "span.text-100",
			Image:     "img.js-lazy-load",
			ImageAttr: "data-src",
			NextPage:  "a.pagination-next",
		},
	},
}

// Portals lists the supported portals.
func Portals() []Portal {
	return append([]Portal(nil), registry...)
}

// Lookup returns the portal for a source.
func Lookup(src models.Source) (Portal, bool) {
	for _, p := range registry {
		if p.Source == src {
			return p, true
		}
	}
	return Portal{}, false
}

// DetectPortal maps a URL to the portal serving it.
func DetectPortal(rawURL string) (models.Source, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", rawURL)
	}
	domain := utils.DomainOf(rawURL)
	for _, p := range registry {
		if domain == p.Domain || strings.HasSuffix(domain, "."+p.Domain) {
			return p.Source, nil
		}
	}
	return "", fmt.Errorf("unsupported portal %q", domain)
}

// ValidateURLs fails on the first URL that no portal serves.
func ValidateURLs(urls []string) error {
	if len(urls) == 0 {
		return fmt.Errorf("no search urls")
	}
	for _, u := range urls {
		if _, err := DetectPortal(u); err != nil {
			return err
		}
	}
	return nil
}
