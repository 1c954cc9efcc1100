package services

import (
	"sync"

	"immo-scraper/models"
	"immo-scraper/utils"
)

// mergeField fills one optional field of dst from src when dst lacks it.
type mergeField struct {
	name string
	fill func(dst, src *models.Listing) bool
}

// mergeFields is the complete list of fields a merged record may inherit
// from a lower priority duplicate.
var mergeFields = []mergeField{
	{"images", func(dst, src *models.Listing) bool {
		if len(dst.Images) > 0 || len(src.Images) == 0 {
			return false
		}
		dst.Images = append([]string(nil), src.Images...)
		return true
	}},
	{"description", func(dst, src *models.Listing) bool {
		if dst.Description != "" || src.Description == "" {
			return false
		}
		dst.Description = src.Description
		return true
	}},
	{"contact.phone", func(dst, src *models.Listing) bool {
		if src.Contact == nil || src.Contact.Phone == "" {
			return false
		}
		if dst.Contact != nil && dst.Contact.Phone != "" {
			return false
		}
		if dst.Contact == nil {
			dst.Contact = &models.Contact{}
		}
		dst.Contact.Phone = src.Contact.Phone
		return true
	}},
	{"geo", func(dst, src *models.Listing) bool {
		if dst.Geo != nil || src.Geo == nil {
			return false
		}
		g := *src.Geo
		dst.Geo = &g
		return true
	}},
	{"energy", func(dst, src *models.Listing) bool {
		if dst.Energy != nil || src.Energy == nil {
			return false
		}
		e := *src.Energy
		dst.Energy = &e
		return true
	}},
}

// DedupStore holds every fingerprint bucket seen in one run. A single store
// must be shared by all crawl sessions; sharding it would disable cross
// portal matching.
type DedupStore struct {
	mu      sync.Mutex
	buckets map[string][]*models.Listing
	rank    map[models.Source]int
	fpGen   *FingerprintGenerator
	logger  *utils.Logger
}

// NewDedupStore builds a store. priority lists sources best first; sources
// missing from it rank after all listed ones.
func NewDedupStore(priority []models.Source, normalizer AddressNormalizer, logger *utils.Logger) *DedupStore {
	if len(priority) == 0 {
		priority = models.DefaultSourcePriority
	}
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	rank := make(map[models.Source]int, len(priority))
	for i, s := range priority {
		if _, ok := rank[s]; !ok {
			rank[s] = i
		}
	}
	return &DedupStore{
		buckets: make(map[string][]*models.Listing),
		rank:    rank,
		fpGen:   NewFingerprintGenerator(normalizer),
		logger:  logger,
	}
}

func (s *DedupStore) priorityOf(src models.Source) int {
	if r, ok := s.rank[src]; ok {
		return r
	}
	return len(s.rank)
}

// AddListing files l into its bucket. Matching listings from other sources
// are cross-linked in place on both sides. When an existing match comes
// from a higher priority source, a merged copy of it is returned instead of
// l and l is not stored; the bucket keeps the unmerged original.
func (s *DedupStore) AddListing(l *models.Listing) *models.Listing {
	fp := s.fpGen.Generate(l)
	key := fp.BucketKey()

	if l.Dedupe == nil {
		l.Dedupe = &models.DedupeInfo{}
	}
	l.Dedupe.Fingerprints = fp.Keys()

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.buckets[key]
	var merged *models.Listing

	for _, existing := range bucket {
		if existing.Source == l.Source {
			continue
		}
		if !IsMatch(s.fpGen.Generate(existing), fp) {
			continue
		}

		crossLink(existing, l)
		s.logger.Debug("[dedup] %s/%s matches %s/%s", l.Source, l.SourceID, existing.Source, existing.SourceID)

		if merged == nil && s.priorityOf(l.Source) > s.priorityOf(existing.Source) {
			merged = mergeInto(existing, l)
		}
	}

	if merged != nil {
		return merged
	}
	s.buckets[key] = append(bucket, l)
	return l
}

// Reset drops every bucket.
func (s *DedupStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string][]*models.Listing)
}

// GetStats reports bucket counts. Within-source repeats count as duplicates.
func (s *DedupStore) GetStats() models.DedupStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats models.DedupStats
	stats.UniqueFingerprints = len(s.buckets)
	for _, b := range s.buckets {
		stats.TotalListings += len(b)
		if len(b) > 1 {
			stats.DuplicatesFound += len(b) - 1
		}
	}
	return stats
}

// crossLink records each listing on the other's alternative sources.
func crossLink(a, b *models.Listing) {
	addAlternative(a, b.Ref())
	addAlternative(b, a.Ref())
}

func addAlternative(l *models.Listing, ref models.AlternativeSource) {
	if l.Source == ref.Source && l.SourceID == ref.SourceID {
		return
	}
	if l.Dedupe == nil {
		l.Dedupe = &models.DedupeInfo{}
	}
	for _, alt := range l.Dedupe.AlternativeSources {
		if alt.Source == ref.Source && alt.SourceID == ref.SourceID {
			return
		}
	}
	l.Dedupe.AlternativeSources = append(l.Dedupe.AlternativeSources, ref)
}

// mergeInto copies primary and fills its gaps from secondary.
func mergeInto(primary, secondary *models.Listing) *models.Listing {
	out := primary.Clone()
	for _, f := range mergeFields {
		f.fill(out, secondary)
	}
	if secondary.Dedupe != nil {
		for _, alt := range secondary.Dedupe.AlternativeSources {
			addAlternative(out, alt)
		}
	}
	addAlternative(out, secondary.Ref())
	return out
}
