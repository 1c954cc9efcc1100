package storage

import (
	"context"

	"immo-scraper/models"
)

// SnapshotKey is the fixed key the tracking state is stored under.
const SnapshotKey = "STATE_SNAPSHOT"

// ListingWriter is the interface any listing feed backend must satisfy.
type ListingWriter interface {
	Write(listings []*models.Listing) error
	Close() error
}

// EventWriter persists the change events of a tracking run.
type EventWriter interface {
	WriteEvents(events []models.ChangeEvent) error
	Close() error
}

// SnapshotStore persists the tracking state between runs. Load returns an
// empty snapshot when nothing was saved yet. Save replaces the stored
// snapshot wholesale; a failed Save must leave the previous one intact.
type SnapshotStore interface {
	Load(ctx context.Context) (models.StateSnapshot, error)
	Save(ctx context.Context, snap models.StateSnapshot) error
}
