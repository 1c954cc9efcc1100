package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"immo-scraper/models"
	"immo-scraper/storage"
	"immo-scraper/utils"
)

// ChangeDetector diffs one fully materialized batch against the persisted
// snapshot. It runs once per tracking run, after all sessions finished.
type ChangeDetector struct {
	store  storage.SnapshotStore
	logger *utils.Logger
	now    func() time.Time
}

func NewChangeDetector(store storage.SnapshotStore, logger *utils.Logger) *ChangeDetector {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &ChangeDetector{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the detection timestamp source.
func (d *ChangeDetector) WithClock(now func() time.Time) *ChangeDetector {
	d.now = now
	return d
}

// Run loads the prior snapshot, diffs the batch against it and saves the
// next snapshot. Events are only returned when the save succeeded, so a
// failed run is replayed in full next time.
func (d *ChangeDetector) Run(ctx context.Context, runID string, listings []*models.Listing) ([]models.ChangeEvent, error) {
	prev, err := d.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("changes: load snapshot: %w", err)
	}

	events, next := Diff(prev, listings, d.now())
	for i := range events {
		events[i].RunID = runID
	}

	if err := d.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("changes: save snapshot: %w", err)
	}

	d.logger.Info("[changes] %d tracked → %d tracked, %d events", len(prev), len(next), len(events))
	return events, nil
}

// Diff is the pure part of change detection. Listings are evaluated in
// order; a repeated id within the batch is ignored after its first
// occurrence. IDs of the prior snapshot that are missing from the batch
// yield STATUS_OFFLINE and are dropped from the next snapshot.
func Diff(prev models.StateSnapshot, listings []*models.Listing, now time.Time) ([]models.ChangeEvent, models.StateSnapshot) {
	next := make(models.StateSnapshot, len(listings))
	var events []models.ChangeEvent

	for _, l := range listings {
		if l == nil || l.ID == "" {
			continue
		}
		if _, seen := next[l.ID]; seen {
			continue
		}

		checksum := ContentChecksum(l)
		after := l.Price

		old, known := prev[l.ID]
		switch {
		case !known:
			events = append(events, models.ChangeEvent{
				Type:        models.ChangeNew,
				CanonicalID: l.ID,
				After:       &after,
				DetectedAt:  now,
				Source:      l.Source,
			})
		case !old.Price.Equal(l.Price):
			before := old.Price
			events = append(events, models.ChangeEvent{
				Type:        models.ChangePriceChange,
				CanonicalID: l.ID,
				Before:      &before,
				After:       &after,
				DetectedAt:  now,
				Source:      l.Source,
			})
		case old.Checksum != checksum:
			events = append(events, models.ChangeEvent{
				Type:        models.ChangeDescriptionUpdate,
				CanonicalID: l.ID,
				DetectedAt:  now,
				Source:      l.Source,
			})
		}

		next[l.ID] = models.SnapshotEntry{
			Price:    l.Price,
			Status:   models.StatusActive,
			LastSeen: now,
			Checksum: checksum,
			Source:   l.Source,
		}
	}

	// Sorted so offline events come out in a stable order.
	var gone []string
	for id := range prev {
		if _, ok := next[id]; !ok {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	for _, id := range gone {
		before := prev[id].Price
		events = append(events, models.ChangeEvent{
			Type:        models.ChangeStatusOffline,
			CanonicalID: id,
			Before:      &before,
			DetectedAt:  now,
			Source:      prev[id].Source,
		})
	}

	return events, next
}

// CountEvents tallies events per type for the run statistics.
func CountEvents(events []models.ChangeEvent) map[models.ChangeType]int {
	counts := make(map[models.ChangeType]int)
	for _, e := range events {
		counts[e.Type]++
	}
	return counts
}
