package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"immo-scraper/models"
	"immo-scraper/utils"
)

const (
	colorTitle   = "#7D56F4"
	colorSection = "#E5C07B"
	colorPrice   = "#04B575"
	colorAlert   = "#FF5F5F"
	colorBorder  = "#874BFD"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(colorTitle))

	sectionStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(colorSection)).
		MarginTop(1)

	priceStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(colorPrice))

	alertStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color(colorAlert))

	boxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(colorBorder)).
		Padding(0, 2)
)

const topCheapest = 5

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(listings []*models.Listing) *models.InsightReport {
	report := &models.InsightReport{
		BySource:       make(map[models.Source]int),
		ByDealType:     make(map[string]int),
		ListingsByCity: make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var priced []*models.Listing
	var perSqm []*models.Listing

	for _, l := range listings {
		report.BySource[l.Source]++
		report.ByDealType[l.DealType]++
		if l.Address.City != "" {
			report.ListingsByCity[l.Address.City]++
		}
		if l.Dedupe != nil && len(l.Dedupe.AlternativeSources) > 0 {
			report.CrossLinkedListings++
		}
		if l.Price.Total > 0 {
			priced = append(priced, l)
		}
		if l.PricePerSqm > 0 {
			perSqm = append(perSqm, l)
		}
	}

	// Price stats (only listings with price > 0)
	if len(priced) > 0 {
		report.MinPrice = priced[0].Price.Total
		report.MaxPrice = priced[0].Price.Total
		report.MostExpensive = priced[0]
		var total float64
		for _, l := range priced {
			total += l.Price.Total
			if l.Price.Total < report.MinPrice {
				report.MinPrice = l.Price.Total
			}
			if l.Price.Total > report.MaxPrice {
				report.MaxPrice = l.Price.Total
				report.MostExpensive = l
			}
		}
		report.AveragePrice = round2(total / float64(len(priced)))
		report.MinPrice = round2(report.MinPrice)
		report.MaxPrice = round2(report.MaxPrice)
	}

	if len(perSqm) > 0 {
		var total float64
		for _, l := range perSqm {
			total += l.PricePerSqm
		}
		report.AveragePricePerSqm = round2(total / float64(len(perSqm)))

		sort.SliceStable(perSqm, func(i, j int) bool {
			return perSqm[i].PricePerSqm < perSqm[j].PricePerSqm
		})
		if len(perSqm) > topCheapest {
			perSqm = perSqm[:topCheapest]
		}
		report.CheapestPerSqm = perSqm
	}

	return report
}

// Print writes the report to stdout.
func (s *InsightService) Print(r *models.InsightReport) {
	fmt.Println(s.Render(r))
}

// Render formats the report as a boxed terminal panel.
func (s *InsightService) Render(r *models.InsightReport) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("📊 LISTING FEED INSIGHTS"))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Overview"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total listings  : %d\n", r.TotalListings)
	fmt.Fprintf(&b, "Cross-linked    : %d\n", r.CrossLinkedListings)
	for _, k := range sortedKeys(r.BySource) {
		fmt.Fprintf(&b, "  %-14s: %d\n", k, r.BySource[models.Source(k)])
	}
	for _, k := range sortedKeys(r.ByDealType) {
		fmt.Fprintf(&b, "  %-14s: %d\n", k, r.ByDealType[k])
	}

	b.WriteString(sectionStyle.Render("Price Statistics"))
	b.WriteString("\n")
	if r.AveragePrice > 0 {
		fmt.Fprintf(&b, "Average price   : %s\n", priceStyle.Render(fmt.Sprintf("%.2f €", r.AveragePrice)))
		fmt.Fprintf(&b, "Minimum price   : %s\n", priceStyle.Render(fmt.Sprintf("%.2f €", r.MinPrice)))
		fmt.Fprintf(&b, "Maximum price   : %s\n", priceStyle.Render(fmt.Sprintf("%.2f €", r.MaxPrice)))
	} else {
		b.WriteString("No price data available\n")
	}
	if r.AveragePricePerSqm > 0 {
		fmt.Fprintf(&b, "Average per m²  : %s\n", priceStyle.Render(fmt.Sprintf("%.2f €", r.AveragePricePerSqm)))
	}

	if r.MostExpensive != nil {
		b.WriteString(sectionStyle.Render("Most Expensive Listing"))
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s\n", truncate(r.MostExpensive.Title, 50))
		fmt.Fprintf(&b, "City  : %s\n", r.MostExpensive.Address.City)
		fmt.Fprintf(&b, "Price : %s\n", alertStyle.Render(fmt.Sprintf("%.2f €", r.MostExpensive.Price.Total)))
	}

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Top %d Cheapest per m²", topCheapest)))
	b.WriteString("\n")
	if len(r.CheapestPerSqm) == 0 {
		b.WriteString("No listings with living area\n")
	} else {
		for i, l := range r.CheapestPerSqm {
			fmt.Fprintf(&b, "%d. %-40s %s\n", i+1, truncate(l.Title, 38),
				priceStyle.Render(fmt.Sprintf("%.2f €/m²", l.PricePerSqm)))
		}
	}

	b.WriteString(sectionStyle.Render("Listings by City"))
	b.WriteString("\n")
	if len(r.ListingsByCity) == 0 {
		b.WriteString("No location data\n")
	} else {
		type cityCount struct {
			city  string
			count int
		}
		var cities []cityCount
		for city, cnt := range r.ListingsByCity {
			cities = append(cities, cityCount{city, cnt})
		}
		sort.Slice(cities, func(i, j int) bool {
			if cities[i].count != cities[j].count {
				return cities[i].count > cities[j].count
			}
			return cities[i].city < cities[j].city
		})
		for _, cc := range cities {
			bar := strings.Repeat("█", min(cc.count, 40))
			fmt.Fprintf(&b, "%-30s %s (%d)\n", truncate(cc.city, 28), bar, cc.count)
		}
	}

	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// RenderRunStats formats the statistics of one aggregation run.
func (s *InsightService) RenderRunStats(st models.RunStats) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("RUN " + st.RunID))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Duration        : %.1fs\n", st.DurationSeconds)
	fmt.Fprintf(&b, "Processed       : %d\n", st.TotalProcessed)
	fmt.Fprintf(&b, "Extracted       : %d\n", st.SuccessfulExtractions)
	fmt.Fprintf(&b, "Failed          : %d\n", st.FailedExtractions)
	fmt.Fprintf(&b, "Duplicates      : %d\n", st.DuplicatesRemoved)
	fmt.Fprintf(&b, "Buckets         : %d (%d duplicates)\n", st.Dedup.UniqueFingerprints, st.Dedup.DuplicatesFound)

	if len(st.Events) > 0 {
		b.WriteString(sectionStyle.Render("Changes"))
		b.WriteString("\n")
		for _, k := range sortedKeys(st.Events) {
			fmt.Fprintf(&b, "  %-20s: %d\n", k, st.Events[models.ChangeType(k)])
		}
	}
	if len(st.SessionErrors) > 0 {
		b.WriteString(sectionStyle.Render("Failed Sessions"))
		b.WriteString("\n")
		for _, k := range sortedKeys(st.SessionErrors) {
			fmt.Fprintf(&b, "  %s\n    %s\n", k, alertStyle.Render(st.SessionErrors[k]))
		}
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func sortedKeys[K ~string, V any](m map[K]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
