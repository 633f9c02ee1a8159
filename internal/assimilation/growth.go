package assimilation

import (
	"math"
	"strings"
)

// tgcPerMille converts the stored TGC value (per 1000 degree-days) to the
// per-degree-day coefficient used in the cube-root update.
const tgcPerMille = 1000.0

// Freshwater stages grow against the freshwater reference temperature
// regardless of the measured container temperature; sea stages use the
// resolved temperature verbatim.
var freshwaterStages = map[string]bool{
	"egg&alevin": true,
	"fry":        true,
	"parr":       true,
	"smolt":      true,
}

func normalizeStage(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// effectiveTemperature substitutes the freshwater reference for freshwater stages.
func (e *Engine) effectiveTemperature(stage string, tempC float64) float64 {
	if freshwaterStages[normalizeStage(stage)] {
		return e.settings.Growth.FreshwaterTempC
	}
	return tempC
}

// growWeight advances the weight one day with the canonical cube-root TGC
// update, then applies the permissive per-stage safety cap. The model's
// temperature and weight exponents are deliberately not used here.
func (e *Engine) growWeight(ac *assignmentContext, stage string, weightG, tempC float64) float64 {
	tgc, ok := ac.master.TGCForStage(stage)
	if !ok {
		return weightG
	}
	dtgc := tgc / tgcPerMille
	effectiveTemp := e.effectiveTemperature(stage, tempC)

	newWeight := math.Pow(math.Cbrt(weightG)+dtgc*effectiveTemp, 3)

	if capG, ok := e.stageCap(stage); ok && newWeight > capG {
		newWeight = capG
	}
	return newWeight
}

// stageCap looks up the configured safety cap for a stage.
func (e *Engine) stageCap(stage string) (float64, bool) {
	capG, ok := e.settings.Growth.StageCaps[normalizeStage(stage)]
	return capG, ok
}

// transitionStage decides the stage label for the day from the new weight.
// The stage's max weight comes from the constraint set, falling back to the
// stage's expected maximum; a freshwater container additionally honors the
// constraint's freshwater maximum. Crossing the maximum advances to the next
// stage by species order.
func (e *Engine) transitionStage(ac *assignmentContext, stage string, weightG float64) string {
	maxWeight := 0.0
	if constraint, ok := ac.master.ConstraintFor(stage); ok && constraint.MaxWeightG > 0 {
		maxWeight = constraint.MaxWeightG
		if ac.container.IsFreshwater() && constraint.FreshwaterMaxWeightG != nil && *constraint.FreshwaterMaxWeightG < maxWeight {
			maxWeight = *constraint.FreshwaterMaxWeightG
		}
	} else if stageInfo, ok := ac.master.StageByName(stage); ok && stageInfo.ExpectedWeightMaxG > 0 {
		maxWeight = stageInfo.ExpectedWeightMaxG
	}

	if maxWeight <= 0 || weightG < maxWeight {
		return stage
	}
	next, ok := ac.master.NextStage(stage)
	if !ok {
		return stage
	}
	return next.Name
}
