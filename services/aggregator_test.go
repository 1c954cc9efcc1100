package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"immo-scraper/config"
	"immo-scraper/models"
	"immo-scraper/utils"
)

const (
	scoutSearch = "https://www.immobilienscout24.de/Suche/berlin"
	weltSearch  = "https://www.immowelt.de/liste/berlin"
)

type fakeCrawler struct {
	mu    sync.Mutex
	pages map[string][][]*models.RawListing
	errs  map[string]error
}

func (f *fakeCrawler) Crawl(_ context.Context, searchURL string, onPage func([]*models.RawListing)) error {
	f.mu.Lock()
	pages := f.pages[searchURL]
	err := f.errs[searchURL]
	f.mu.Unlock()

	for _, p := range pages {
		onPage(p)
	}
	return err
}

type recordingWriter struct {
	listings []*models.Listing
	events   []models.ChangeEvent
}

func (w *recordingWriter) Write(l []*models.Listing) error { w.listings = l; return nil }

func (w *recordingWriter) WriteEvents(e []models.ChangeEvent) error {
	w.events = append(w.events, e...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

type recordingNotifier struct {
	calls int
	stats models.RunStats
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, _ []models.ChangeEvent, stats models.RunStats) error {
	n.calls++
	n.stats = stats
	return n.err
}

func berlinRaw(src models.Source, id string) *models.RawListing {
	return &models.RawListing{
		Source:       src,
		SourceID:     id,
		URL:          "https://" + string(src) + ".example/expose/" + id,
		Title:        "Altbau mit Balkon",
		PropertyType: "Wohnung",
		DealType:     "Miete",
		RawPrice:     "1.190 €",
		RawSize:      "66 m²",
		RawRooms:     "2,5",
		RawAddress:   "Hauptstraße 5, 10827 Berlin",
		PostedAt:     "01.05.2024",
	}
}

func newestRaw() *models.RawListing {
	r := berlinRaw(models.SourceImmowelt, "iw-2")
	r.RawAddress = "Lindenallee 3, 14050 Berlin"
	r.RawPrice = "2.000 €"
	r.PostedAt = "03.05.2024"
	return r
}

func testPages() map[string][][]*models.RawListing {
	welt := berlinRaw(models.SourceImmowelt, "iw-1")
	welt.Description = "Ruhige Lage"
	welt.ContactPhone = "+49 30 999"

	broken := &models.RawListing{Source: models.SourceImmowelt, Title: "kaputt"}
	weltPages := [][]*models.RawListing{
		{welt, newestRaw()},
		{berlinRaw(models.SourceImmowelt, "iw-1"), broken},
	}
	return map[string][][]*models.RawListing{
		scoutSearch: {{berlinRaw(models.SourceImmoScout24, "is-1")}},
		weltSearch:  weltPages,
	}
}

func newTestAggregator(cfg AggregatorConfig, crawler PageCrawler, detector *ChangeDetector) *Aggregator {
	logger := utils.NewNopLogger()
	if cfg.Searches == nil {
		cfg.Searches = []string{scoutSearch, weltSearch}
	}
	cfg.MaxConcurrency = 1
	return NewAggregator(cfg, crawler, NewCleaner(logger), NewDedupStore(nil, nil, logger), detector, logger)
}

func TestAggregatorCrossPortalRun(t *testing.T) {
	agg := newTestAggregator(AggregatorConfig{MaxResults: 10}, &fakeCrawler{pages: testPages()}, nil)
	out := &recordingWriter{}
	agg.AddListingWriter(out)

	res, err := agg.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Listings) != 2 {
		t.Fatalf("got %d listings, want 2", len(res.Listings))
	}
	if res.Listings[0].SourceID != "iw-2" {
		t.Errorf("feed not newest first: %s", res.Listings[0].SourceID)
	}

	merged := res.Listings[1]
	if merged.Source != models.SourceImmoScout24 {
		t.Errorf("merged source = %s, want immoscout24", merged.Source)
	}
	if merged.Description != "Ruhige Lage" || merged.Contact == nil || merged.Contact.Phone != "+49 30 999" {
		t.Errorf("merged record not filled: desc=%q contact=%+v", merged.Description, merged.Contact)
	}
	if !hasAlternative(merged, models.AlternativeSource{
		Source: models.SourceImmowelt, SourceID: "iw-1", URL: "https://immowelt.example/expose/iw-1",
	}) {
		t.Errorf("merged record lacks immowelt link: %+v", merged.Dedupe)
	}

	st := res.Stats
	if st.TotalProcessed != 5 || st.SuccessfulExtractions != 4 || st.FailedExtractions != 1 {
		t.Errorf("extraction counts = %d/%d/%d", st.TotalProcessed, st.SuccessfulExtractions, st.FailedExtractions)
	}
	if st.DuplicatesRemoved != 2 {
		t.Errorf("DuplicatesRemoved = %d, want 2", st.DuplicatesRemoved)
	}
	if st.RunID == "" || len(st.SessionErrors) != 0 {
		t.Errorf("stats = %+v", st)
	}
	if len(out.listings) != 2 {
		t.Errorf("writer got %d listings", len(out.listings))
	}
}

func TestAggregatorConcurrentSessionsKeepOneRecordPerProperty(t *testing.T) {
	const pairs = 200
	var scoutPages, weltPages [][]*models.RawListing
	for i := 0; i < pairs; i++ {
		price := fmt.Sprintf("%d €", 1000+i*100)
		s := berlinRaw(models.SourceImmoScout24, fmt.Sprintf("is-%d", i))
		s.RawPrice = price
		w := berlinRaw(models.SourceImmowelt, fmt.Sprintf("iw-%d", i))
		w.RawPrice = price
		w.Description = "Ruhige Lage"
		scoutPages = append(scoutPages, []*models.RawListing{s})
		weltPages = append(weltPages, []*models.RawListing{w})
	}
	crawler := &fakeCrawler{pages: map[string][][]*models.RawListing{
		scoutSearch: scoutPages,
		weltSearch:  weltPages,
	}}

	logger := utils.NewNopLogger()
	agg := NewAggregator(AggregatorConfig{
		Searches:       []string{scoutSearch, weltSearch},
		MaxConcurrency: 2,
	}, crawler, NewCleaner(logger), NewDedupStore(nil, nil, logger), nil, logger)

	res, err := agg.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Listings) != pairs {
		t.Fatalf("got %d listings, want %d", len(res.Listings), pairs)
	}
	ids := make(map[string]bool, pairs)
	for _, l := range res.Listings {
		if ids[l.ID] {
			t.Errorf("id %s appears twice", l.ID)
		}
		ids[l.ID] = true
		if l.Source != models.SourceImmoScout24 || l.Description != "Ruhige Lage" {
			t.Errorf("%s: source=%s desc=%q, want immoscout24 record filled from immowelt", l.ID, l.Source, l.Description)
		}
	}
	if res.Stats.DuplicatesRemoved != pairs {
		t.Errorf("DuplicatesRemoved = %d, want %d", res.Stats.DuplicatesRemoved, pairs)
	}
}

func TestAggregatorHigherRankArrivingSecondTakesSlot(t *testing.T) {
	welt := berlinRaw(models.SourceImmowelt, "iw-1")
	welt.Description = "Ruhige Lage"
	crawler := &fakeCrawler{pages: map[string][][]*models.RawListing{
		weltSearch:  {{welt}},
		scoutSearch: {{berlinRaw(models.SourceImmoScout24, "is-1")}},
	}}
	agg := newTestAggregator(AggregatorConfig{Searches: []string{weltSearch, scoutSearch}}, crawler, nil)

	res, err := agg.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Listings) != 1 {
		t.Fatalf("got %d listings, want 1", len(res.Listings))
	}
	got := res.Listings[0]
	if got.Source != models.SourceImmoScout24 || got.Description != "Ruhige Lage" {
		t.Errorf("record = %s/%q, want immoscout24 filled from immowelt", got.Source, got.Description)
	}
	if !hasAlternative(got, models.AlternativeSource{
		Source: models.SourceImmowelt, SourceID: "iw-1", URL: "https://immowelt.example/expose/iw-1",
	}) {
		t.Errorf("record lacks immowelt link: %+v", got.Dedupe)
	}
}

func TestAggregatorDedupeLevels(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{config.DedupeNone, 4},
		{config.DedupePortal, 3},
		{config.DedupeCrossPortal, 2},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			agg := newTestAggregator(AggregatorConfig{DedupeLevel: tt.level}, &fakeCrawler{pages: testPages()}, nil)
			res, err := agg.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(res.Listings) != tt.want {
				t.Errorf("got %d listings, want %d", len(res.Listings), tt.want)
			}
		})
	}
}

func TestAggregatorMaxResults(t *testing.T) {
	agg := newTestAggregator(AggregatorConfig{MaxResults: 1}, &fakeCrawler{pages: testPages()}, nil)
	res, err := agg.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Listings) != 1 || res.Listings[0].SourceID != "iw-2" {
		t.Errorf("listings = %v", res.Listings)
	}
}

func TestAggregatorSessionFailureIsolated(t *testing.T) {
	crawler := &fakeCrawler{
		pages: testPages(),
		errs:  map[string]error{scoutSearch: utils.ErrBlocked},
	}
	agg := newTestAggregator(AggregatorConfig{}, crawler, nil)
	res, err := agg.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := res.Stats.SessionErrors[scoutSearch]; !ok {
		t.Errorf("session error not recorded: %v", res.Stats.SessionErrors)
	}
	if len(res.Listings) == 0 {
		t.Error("sibling session results lost")
	}
}

func TestAggregatorTracking(t *testing.T) {
	store := &memorySnapshotStore{}
	crawler := &fakeCrawler{pages: testPages()}
	agg := newTestAggregator(AggregatorConfig{TrackingMode: true}, crawler, NewChangeDetector(store, utils.NewNopLogger()))
	events := &recordingWriter{}
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	agg.AddEventWriter(events)
	agg.AddNotifier(notifier)

	res, err := agg.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if res.Stats.Events[models.ChangeNew] != 2 || len(events.events) != 2 {
		t.Errorf("first run events = %v", res.Stats.Events)
	}
	if notifier.calls != 1 || notifier.stats.RunID != res.Stats.RunID {
		t.Errorf("notifier calls = %d", notifier.calls)
	}
	for _, e := range res.Events {
		if e.RunID != res.Stats.RunID {
			t.Errorf("event run id = %q, want %q", e.RunID, res.Stats.RunID)
		}
	}

	// iw-2 disappears.
	crawler.mu.Lock()
	pages := testPages()
	pages[weltSearch][0] = pages[weltSearch][0][:1]
	crawler.pages = pages
	crawler.mu.Unlock()

	res, err = agg.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Stats.Events[models.ChangeStatusOffline] != 1 || len(res.Events) != 1 {
		t.Errorf("second run events = %v", res.Events)
	}
}

func TestAggregatorTrackingSaveFailure(t *testing.T) {
	store := &memorySnapshotStore{saveErr: errors.New("disk full")}
	notifier := &recordingNotifier{}
	agg := newTestAggregator(AggregatorConfig{TrackingMode: true}, &fakeCrawler{pages: testPages()}, NewChangeDetector(store, utils.NewNopLogger()))
	agg.AddNotifier(notifier)

	res, err := agg.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(res.Listings) != 2 || notifier.calls != 0 {
		t.Errorf("listings = %d, notifier calls = %d", len(res.Listings), notifier.calls)
	}
}
