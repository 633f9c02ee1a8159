package assimilation

import (
	"github.com/tphakala/aquatrack/internal/datastore"
)

// Field names used as keys in the sources and confidence maps of a daily
// state row. The set is closed: no other keys are ever written.
const (
	FieldWeight    = "weight"
	FieldTemp      = "temp"
	FieldMortality = "mortality"
	FieldFeed      = "feed"
	FieldFCR       = "fcr"
)

// Source tags describing where a daily state field value came from.
const (
	SourceMeasured      = "measured"
	SourceTGCComputed   = "tgc_computed"
	SourceUnchanged     = "unchanged"
	SourceInterpolated  = "interpolated"
	SourceNearestBefore = "nearest_before"
	SourceNearestAfter  = "nearest_after"
	SourceProfile       = "profile"
	SourceActual        = "actual"
	SourceModel         = "model"
	SourceObserved      = "observed"
	SourceNone          = "none"
)

// provenance accumulates per-field source tags and confidence scores while a
// day is being computed, then yields the two maps stored on the row.
type provenance struct {
	sources    datastore.SourceMap
	confidence datastore.ConfidenceMap
}

func newProvenance() *provenance {
	return &provenance{
		sources:    make(datastore.SourceMap, 5),
		confidence: make(datastore.ConfidenceMap, 5),
	}
}

// set records the source tag and confidence for one field. Confidence is
// clamped to [0, 1] so stored rows always satisfy the contract.
func (p *provenance) set(field, source string, confidence float64) {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	p.sources[field] = source
	p.confidence[field] = confidence
}

func (p *provenance) maps() (datastore.SourceMap, datastore.ConfidenceMap) {
	return p.sources, p.confidence
}
