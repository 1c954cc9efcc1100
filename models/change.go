package models

import "time"

type ChangeType string

const (
	ChangeNew               ChangeType = "NEW"
	ChangePriceChange       ChangeType = "PRICE_CHANGE"
	ChangeStatusOffline     ChangeType = "STATUS_OFFLINE"
	ChangeDescriptionUpdate ChangeType = "DESCRIPTION_UPDATE"
)

// ChangeEvent is emitted once per detected transition per tracking run.
type ChangeEvent struct {
	Type        ChangeType `json:"type"`
	CanonicalID string     `json:"canonicalId"`
	Before      *Price     `json:"before,omitempty"`
	After       *Price     `json:"after,omitempty"`
	DetectedAt  time.Time  `json:"detectedAt"`
	Source      Source     `json:"source"`
	RunID       string     `json:"runId,omitempty"`
}

type ListingStatus string

const (
	StatusActive  ListingStatus = "active"
	StatusOffline ListingStatus = "offline"
)

// SnapshotEntry is the last known state of one tracked listing.
type SnapshotEntry struct {
	Price    Price         `json:"price" bson:"price"`
	Status   ListingStatus `json:"status" bson:"status"`
	LastSeen time.Time     `json:"lastSeen" bson:"lastSeen"`
	Checksum string        `json:"checksum" bson:"checksum"`
	Source   Source        `json:"source,omitempty" bson:"source,omitempty"`
}

// StateSnapshot maps canonical listing ids to their last known state.
type StateSnapshot map[string]SnapshotEntry

// RunStats summarizes one aggregation run.
type RunStats struct {
	RunID                 string             `json:"runId"`
	StartedAt             time.Time          `json:"startedAt"`
	FinishedAt            time.Time          `json:"finishedAt"`
	DurationSeconds       float64            `json:"durationSeconds"`
	TotalProcessed        int                `json:"totalProcessed"`
	SuccessfulExtractions int                `json:"successfulExtractions"`
	FailedExtractions     int                `json:"failedExtractions"`
	DuplicatesRemoved     int                `json:"duplicatesRemoved"`
	Dedup                 DedupStats         `json:"dedup"`
	Events                map[ChangeType]int `json:"events,omitempty"`
	SessionErrors         map[string]string  `json:"sessionErrors,omitempty"`
}

// DedupStats is reported by the dedup store.
type DedupStats struct {
	TotalListings      int `json:"totalListings"`
	UniqueFingerprints int `json:"uniqueFingerprints"`
	DuplicatesFound    int `json:"duplicatesFound"`
}
