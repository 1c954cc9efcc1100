package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"immo-scraper/config"
	"immo-scraper/models"
	"immo-scraper/storage"
	"immo-scraper/utils"
)

// PageCrawler walks the result pages of one search URL.
type PageCrawler interface {
	Crawl(ctx context.Context, searchURL string, onPage func([]*models.RawListing)) error
}

// Notifier delivers the change events of a tracking run.
type Notifier interface {
	Notify(ctx context.Context, events []models.ChangeEvent, stats models.RunStats) error
}

// AggregatorConfig selects what one run does.
type AggregatorConfig struct {
	Searches       []string
	MaxConcurrency int
	MaxResults     int
	DedupeLevel    string
	TrackingMode   bool
}

// RunResult is the output of one aggregation run.
type RunResult struct {
	Listings []*models.Listing
	Events   []models.ChangeEvent
	Stats    models.RunStats
}

// Aggregator runs every search as a crawl session and funnels all pages into
// one dedup store.
type Aggregator struct {
	cfg          AggregatorConfig
	crawler      PageCrawler
	cleaner      *Cleaner
	dedup        *DedupStore
	detector     *ChangeDetector
	writers      []storage.ListingWriter
	eventWriters []storage.EventWriter
	notifiers    []Notifier
	logger       *utils.Logger
	now          func() time.Time

	mu      sync.Mutex
	seen    *utils.KeySet
	results []*models.Listing
	slots   map[string]int // feed index by source:sourceId
	stats   models.RunStats
}

// NewAggregator wires a run. detector may be nil when tracking is off.
func NewAggregator(
	cfg AggregatorConfig,
	crawler PageCrawler,
	cleaner *Cleaner,
	dedup *DedupStore,
	detector *ChangeDetector,
	logger *utils.Logger,
) *Aggregator {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.DedupeLevel == "" {
		cfg.DedupeLevel = config.DedupeCrossPortal
	}
	return &Aggregator{
		cfg:      cfg,
		crawler:  crawler,
		cleaner:  cleaner,
		dedup:    dedup,
		detector: detector,
		logger:   logger,
		now:      time.Now,
	}
}

// AddListingWriter registers a sink for the final listing feed.
func (a *Aggregator) AddListingWriter(w storage.ListingWriter) {
	a.writers = append(a.writers, w)
}

// AddEventWriter registers a sink for change events.
func (a *Aggregator) AddEventWriter(w storage.EventWriter) {
	a.eventWriters = append(a.eventWriters, w)
}

// AddNotifier registers a change notifier.
func (a *Aggregator) AddNotifier(n Notifier) {
	a.notifiers = append(a.notifiers, n)
}

// Run executes one aggregation run. A failing session is recorded in the
// stats and does not stop the others. Only a failed change detection makes
// Run return an error.
func (a *Aggregator) Run(ctx context.Context) (*RunResult, error) {
	a.reset()
	a.stats.StartedAt = a.now().UTC()

	pool := utils.NewWorkerPool(a.cfg.MaxConcurrency)
	for _, searchURL := range a.cfg.Searches {
		pool.Submit(func() {
			a.logger.Info("[aggregator] Session started: %s", searchURL)
			if err := a.crawler.Crawl(ctx, searchURL, a.ingest); err != nil {
				a.logger.Error("[aggregator] Session failed: %s: %v", searchURL, err)
				a.mu.Lock()
				a.stats.SessionErrors[searchURL] = err.Error()
				a.mu.Unlock()
			}
		})
	}
	pool.Wait()

	listings := a.finalListings()
	a.stats.Dedup = a.dedup.GetStats()

	for _, w := range a.writers {
		if err := w.Write(listings); err != nil {
			a.logger.Error("[aggregator] Listing write failed: %v", err)
		}
	}

	result := &RunResult{Listings: listings}
	if a.cfg.TrackingMode && a.detector != nil {
		events, err := a.detector.Run(ctx, a.stats.RunID, listings)
		if err != nil {
			a.finishStats()
			result.Stats = a.stats
			return result, fmt.Errorf("aggregator: %w", err)
		}
		result.Events = events
		a.stats.Events = CountEvents(events)
		a.finishStats()
		a.publish(ctx, events)
	} else {
		a.finishStats()
	}

	result.Stats = a.stats
	a.logger.Infow("run finished",
		"runId", a.stats.RunID,
		"listings", len(listings),
		"failed", a.stats.FailedExtractions,
		"duplicates", a.stats.DuplicatesRemoved,
		"sessionErrors", len(a.stats.SessionErrors),
	)
	return result, nil
}

// resettable is implemented by crawlers that keep per-run state.
type resettable interface {
	Reset()
}

func (a *Aggregator) reset() {
	a.dedup.Reset()
	if r, ok := a.crawler.(resettable); ok {
		r.Reset()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = utils.NewKeySet()
	a.results = nil
	a.slots = make(map[string]int)
	a.stats = models.RunStats{
		RunID:         uuid.NewString(),
		SessionErrors: make(map[string]string),
	}
}

// ingest cleans and deduplicates one page of raw listings.
func (a *Aggregator) ingest(raws []*models.RawListing) {
	for _, r := range raws {
		l, err := a.cleaner.CleanOne(r)

		a.mu.Lock()
		a.stats.TotalProcessed++
		if err != nil {
			a.stats.FailedExtractions++
			a.mu.Unlock()
			a.logger.Warn("[aggregator] Dropping listing %q: %v", r.Title, err)
			continue
		}
		a.stats.SuccessfulExtractions++
		a.mu.Unlock()

		a.accept(l)
	}
}

// accept runs the dedupe steps and the feed update as one critical
// section, so a merged record always finds the entry it replaces.
func (a *Aggregator) accept(l *models.Listing) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg.DedupeLevel != config.DedupeNone {
		if !a.seen.Add(feedKey(l.Source, l.SourceID)) {
			a.stats.DuplicatesRemoved++
			return
		}
	}

	if a.cfg.DedupeLevel == config.DedupeCrossPortal {
		if kept := a.dedup.AddListing(l); kept != l {
			a.replace(kept)
			a.stats.DuplicatesRemoved++
			return
		}
		// A better ranked copy arriving after its match takes over the
		// match's feed slot, so the feed does not depend on session order.
		if i, ok := a.linkedSlot(l); ok {
			a.results[i] = mergeInto(l, a.results[i])
			a.slots[feedKey(l.Source, l.SourceID)] = i
			a.stats.DuplicatesRemoved++
			return
		}
	}

	a.slots[feedKey(l.Source, l.SourceID)] = len(a.results)
	a.results = append(a.results, l)
}

// replace swaps the feed entry the merged record was copied from. a.mu must
// be held.
func (a *Aggregator) replace(merged *models.Listing) {
	if i, ok := a.slots[feedKey(merged.Source, merged.SourceID)]; ok {
		if cur := a.results[i]; cur.Source != merged.Source {
			// The slot was already taken over by a better ranked copy.
			a.results[i] = mergeInto(cur, merged)
			return
		}
		a.results[i] = merged
		return
	}
	a.slots[feedKey(merged.Source, merged.SourceID)] = len(a.results)
	a.results = append(a.results, merged)
}

// linkedSlot finds the feed entry of a listing l was cross-linked with.
// a.mu must be held.
func (a *Aggregator) linkedSlot(l *models.Listing) (int, bool) {
	if l.Dedupe == nil {
		return 0, false
	}
	for _, alt := range l.Dedupe.AlternativeSources {
		if i, ok := a.slots[feedKey(alt.Source, alt.SourceID)]; ok {
			return i, true
		}
	}
	return 0, false
}

func feedKey(src models.Source, id string) string {
	return string(src) + ":" + id
}

// finalListings sorts the feed newest first and applies the result cap.
func (a *Aggregator) finalListings() []*models.Listing {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := append([]*models.Listing(nil), a.results...)
	sort.SliceStable(out, func(i, j int) bool {
		return listingTime(out[i]).After(listingTime(out[j]))
	})
	if a.cfg.MaxResults > 0 && len(out) > a.cfg.MaxResults {
		out = out[:a.cfg.MaxResults]
	}
	return out
}

func listingTime(l *models.Listing) time.Time {
	if l.Dates.PostedAt != nil {
		return *l.Dates.PostedAt
	}
	return l.Dates.ExtractedAt
}

func (a *Aggregator) finishStats() {
	a.stats.FinishedAt = a.now().UTC()
	a.stats.DurationSeconds = round2(a.stats.FinishedAt.Sub(a.stats.StartedAt).Seconds())
}

// publish hands events to the event writers and notifiers. Failures are
// logged and never fail the run.
func (a *Aggregator) publish(ctx context.Context, events []models.ChangeEvent) {
	for _, w := range a.eventWriters {
		if err := w.WriteEvents(events); err != nil {
			a.logger.Error("[aggregator] Event write failed: %v", err)
		}
	}
	for _, n := range a.notifiers {
		if err := n.Notify(ctx, events, a.stats); err != nil {
			a.logger.Warn("[aggregator] Notification failed: %v", err)
		}
	}
}
