package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/javigz/bdnsync-go/internal/datastore"
	"github.com/javigz/bdnsync-go/internal/observability/metrics"
	"github.com/javigz/bdnsync-go/internal/registry"
	gocache "github.com/patrickmn/go-cache"
)

// Classification kinds handled by the normalizer.
const (
	kindSector     = "sector"
	kindInstrument = "instrument"
	kindRegion     = "region"
)

// classification lookup cache tuning: a run revisits the same few hundred
// (code, name) pairs constantly.
const (
	cacheExpiration      = 30 * time.Minute
	cacheCleanupInterval = 10 * time.Minute
)

// Normalizer materializes sector/instrument/region entities and their
// junction links from a record's legacy classification payloads.
type Normalizer struct {
	store   datastore.Interface
	cache   *gocache.Cache
	metrics *metrics.SyncMetrics
}

// NewNormalizer creates a junction normalizer backed by the given store.
// metrics may be nil.
func NewNormalizer(store datastore.Interface, syncMetrics *metrics.SyncMetrics) *Normalizer {
	return &Normalizer{
		store:   store,
		cache:   gocache.New(cacheExpiration, cacheCleanupInterval),
		metrics: syncMetrics,
	}
}

// LinkClassifications derives and persists all classification links for one
// grant record. A malformed payload or failed write for one kind degrades to
// zero links for that kind with a logged cause; it never aborts the record's
// core fields or subsequent records. Returns the number of links written.
func (n *Normalizer) LinkClassifications(record *datastore.GrantRecord, raw *registry.Convocatoria) int {
	total := 0
	total += n.linkKind(kindSector, record, raw.Sector)
	total += n.linkKind(kindInstrument, record, raw.Instrumento)
	total += n.linkKind(kindRegion, record, raw.Region)
	return total
}

func (n *Normalizer) linkKind(kind string, record *datastore.GrantRecord, raw json.RawMessage) int {
	links, err := n.linkCandidates(kind, record.ID, raw)
	if err != nil {
		getLogger().Warn("Classification payload failed, record keeps zero links for this kind",
			"kind", kind,
			"bdns_code", record.BDNSCode,
			"error", err)
		if n.metrics != nil {
			n.metrics.RecordClassificationError(kind)
		}
		return 0
	}
	return links
}

func (n *Normalizer) linkCandidates(kind string, grantID uint, raw json.RawMessage) (int, error) {
	candidates, err := ExtractCandidates(raw)
	if err != nil {
		return 0, err
	}

	links := 0
	for _, candidate := range candidates {
		if kind == kindRegion {
			candidate = SplitRegionName(candidate.Name)
		}

		classificationID, err := n.resolve(kind, candidate)
		if err != nil {
			return links, err
		}

		if err := n.link(kind, grantID, classificationID); err != nil {
			return links, err
		}
		links++
		if n.metrics != nil {
			n.metrics.RecordClassificationLink(kind)
		}
	}
	return links, nil
}

// resolve returns the classification row ID for a candidate, creating the row
// on first encounter. Hot pairs are served from the in-process cache.
func (n *Normalizer) resolve(kind string, candidate Candidate) (uint, error) {
	cacheKey := kind + "\x1f" + candidate.Code + "\x1f" + candidate.Name
	if cached, found := n.cache.Get(cacheKey); found {
		return cached.(uint), nil
	}

	var id uint
	switch kind {
	case kindSector:
		sector, err := n.store.FindOrCreateSector(candidate.Code, candidate.Name)
		if err != nil {
			return 0, err
		}
		id = sector.ID
	case kindInstrument:
		instrument, err := n.store.FindOrCreateInstrument(candidate.Code, candidate.Name)
		if err != nil {
			return 0, err
		}
		id = instrument.ID
	case kindRegion:
		region, err := n.store.FindOrCreateRegion(candidate.Code, candidate.Name)
		if err != nil {
			return 0, err
		}
		id = region.ID
	default:
		return 0, fmt.Errorf("unknown classification kind %q", kind)
	}

	n.cache.Set(cacheKey, id, gocache.DefaultExpiration)
	return id, nil
}

func (n *Normalizer) link(kind string, grantID, classificationID uint) error {
	switch kind {
	case kindSector:
		return n.store.LinkGrantSector(grantID, classificationID)
	case kindInstrument:
		return n.store.LinkGrantInstrument(grantID, classificationID)
	case kindRegion:
		return n.store.LinkGrantRegion(grantID, classificationID)
	default:
		return fmt.Errorf("unknown classification kind %q", kind)
	}
}
