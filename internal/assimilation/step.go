package assimilation

import (
	"context"
	"math"
	"time"

	"github.com/tphakala/aquatrack/internal/datastore"
)

const (
	unchangedWeightConfidence = 0.3
	tgcComputedMaxConfidence  = 0.8
	modelFCRConfidence        = 0.3

	gramsPerKg = 1000.0
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// computeDay runs one day of the assimilation loop: resolve observations,
// advance population and weight, derive biomass and FCR, and decide the stage
// label. It is pure apart from the storage reads behind the resolvers.
//
// boot is non-nil only on the first day of a bootstrapped window: that day
// stores the initial state instead of growing it, tagged with the bootstrap
// provenance. Growth starts on the following day.
func (e *Engine) computeDay(ctx context.Context, ac *assignmentContext, date time.Time, prev dayState, anchors map[string]Anchor, boot *bootstrapWeight) (*datastore.DailyState, dayState, error) {
	dateStr := formatDate(date)
	prov := newProvenance()

	// Anchor lookup. A measured weight on this date overrides the model.
	var anchorType *string
	measuredWeight := 0.0
	anchored := false
	if anchor, ok := anchors[dateStr]; ok {
		measuredWeight = anchor.WeightG
		anchored = true
		t := anchor.Type
		anchorType = &t
		prov.set(FieldWeight, SourceMeasured, anchor.Confidence)
	}

	temp, err := e.resolveTemperature(ctx, ac, date)
	if err != nil {
		return nil, prev, err
	}
	prov.set(FieldTemp, temp.Source, temp.Confidence)

	mortality, err := e.resolveMortality(ctx, ac, date, prev.Population, prev.Stage)
	if err != nil {
		return nil, prev, err
	}
	prov.set(FieldMortality, mortality.Source, mortality.Confidence)

	feed, err := e.resolveFeed(ctx, ac, date)
	if err != nil {
		return nil, prev, err
	}
	prov.set(FieldFeed, feed.Source, feed.Confidence)

	placements, err := e.resolvePlacements(ctx, ac, date)
	if err != nil {
		return nil, prev, err
	}

	newPopulation := prev.Population + placements - mortality.Count
	if newPopulation < 0 {
		newPopulation = 0
	}

	var newWeight float64
	switch {
	case anchored:
		newWeight = measuredWeight
	case boot != nil:
		newWeight = prev.WeightG
		prov.set(FieldWeight, boot.Source, boot.Confidence)
	case temp.Known:
		newWeight = e.growWeight(ac, prev.Stage, prev.WeightG, temp.TempC)
		confidence := temp.Confidence
		if confidence > tgcComputedMaxConfidence {
			confidence = tgcComputedMaxConfidence
		}
		prov.set(FieldWeight, SourceTGCComputed, confidence)
	default:
		newWeight = prev.WeightG
		prov.set(FieldWeight, SourceUnchanged, unchangedWeightConfidence)
	}
	// Round before deriving biomass so stored rows satisfy
	// biomass == round(population * avg_weight / 1000, 2) exactly, and so a
	// later window starting from this stored row reproduces the same series.
	newWeight = round2(newWeight)

	newBiomass := round2(float64(newPopulation) * newWeight / gramsPerKg)

	// Observed FCR with a configurable gain floor to suppress noise at tiny
	// biomasses.
	var observedFCR *float64
	gain := newBiomass - prev.BiomassKg
	if gain > e.settings.Growth.FCRGainFloorKg {
		if feed.AmountKg > 0 {
			fcr := feed.AmountKg / gain
			if fcr > e.settings.Growth.FCRCap {
				fcr = e.settings.Growth.FCRCap
			}
			rounded := round3(fcr)
			observedFCR = &rounded
			confidence := feed.Confidence
			if prov.confidence[FieldWeight] < confidence {
				confidence = prov.confidence[FieldWeight]
			}
			prov.set(FieldFCR, SourceObserved, confidence)
		} else {
			// Growth without recorded feed: FCR attribution deferred to the
			// projection model.
			prov.set(FieldFCR, SourceModel, modelFCRConfidence)
		}
	}

	newStage := e.transitionStage(ac, prev.Stage, newWeight)

	var tempC *float64
	if temp.Known {
		rounded := round2(temp.TempC)
		tempC = &rounded
	}

	sources, confidenceScores := prov.maps()
	row := &datastore.DailyState{
		AssignmentID:     ac.assignment.ID,
		Date:             dateStr,
		DayNumber:        ac.dayNumber(date),
		AvgWeightG:       newWeight,
		Population:       newPopulation,
		BiomassKg:        newBiomass,
		TempC:            tempC,
		MortalityCount:   mortality.Count,
		FeedKg:           round2(feed.AmountKg),
		ObservedFCR:      observedFCR,
		AnchorType:       anchorType,
		LifecycleStage:   newStage,
		Sources:          sources,
		ConfidenceScores: confidenceScores,
	}

	next := dayState{
		WeightG:    newWeight,
		Population: newPopulation,
		BiomassKg:  newBiomass,
		Stage:      newStage,
	}
	return row, next, nil
}
