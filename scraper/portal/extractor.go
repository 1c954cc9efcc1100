package portal

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"immo-scraper/models"
)

// Extractor turns one rendered search page into raw listings and the URL
// of the following page, which is empty on the last page.
type Extractor interface {
	Extract(src models.Source, pageURL, html string) ([]*models.RawListing, string, error)
}

// SelectorExtractor reads result cards with per-portal CSS selectors.
type SelectorExtractor struct {
	selectors map[models.Source]Selectors
	now       func() time.Time
}

// NewSelectorExtractor builds an extractor from the built-in selectors,
// with any non-empty override field taking precedence.
func NewSelectorExtractor(overrides map[models.Source]Selectors) *SelectorExtractor {
	sel := make(map[models.Source]Selectors, len(registry))
	for _, p := range registry {
		s := p.Selectors
		if o, ok := overrides[p.Source]; ok {
			s = o.merge(p.Selectors)
		}
		sel[p.Source] = s
	}
	return &SelectorExtractor{selectors: sel, now: time.Now}
}

func (e *SelectorExtractor) Extract(src models.Source, pageURL, html string) ([]*models.RawListing, string, error) {
	sel, ok := e.selectors[src]
	if !ok {
		return nil, "", fmt.Errorf("no selectors for %q", src)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, "", fmt.Errorf("parse html: %w", err)
	}

	scrapedAt := e.now().UTC()
	var raws []*models.RawListing
	doc.Find(sel.Card).Each(func(_ int, card *goquery.Selection) {
		href, _ := card.Find(sel.Link).First().Attr("href")
		link := resolve(base, href)
		if link == "" {
			return
		}

		id := ""
		if sel.IDAttr != "" {
			id, _ = card.Attr(sel.IDAttr)
		}
		if id == "" {
			id = lastSegment(link)
		}

		raw := &models.RawListing{
			Source:     src,
			SourceID:   strings.TrimSpace(id),
			URL:        link,
			Title:      text(card, sel.Title),
			RawPrice:   text(card, sel.Price),
			RawSize:    text(card, sel.Size),
			RawRooms:   text(card, sel.Rooms),
			RawAddress: text(card, sel.Address),
			ScrapedAt:  scrapedAt,
		}
		if sel.Image != "" {
			card.Find(sel.Image).Each(func(_ int, img *goquery.Selection) {
				if v, ok := img.Attr(sel.ImageAttr); ok {
					if abs := resolve(base, v); abs != "" {
						raw.Images = append(raw.Images, abs)
					}
				}
			})
		}
		raws = append(raws, raw)
	})

	next := ""
	if sel.NextPage != "" {
		if href, ok := doc.Find(sel.NextPage).First().Attr("href"); ok {
			next = resolve(base, href)
		}
	}
	return raws, next, nil
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(s.Find(selector).First().Text()), " ")
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func lastSegment(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimSuffix(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}
