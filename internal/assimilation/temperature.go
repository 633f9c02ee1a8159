package assimilation

import (
	"context"
	"time"
)

const (
	// How far the resolver is willing to look for a nearby reading.
	readingSearchDays = 7

	interpolatedBaseConfidence = 0.9
	interpolatedMinConfidence  = 0.4
	interpolatedSpanPenalty    = 30.0
	nearestConfidence          = 0.6
	profileConfidence          = 0.5
)

// tempResult is the outcome of the temperature fallback ladder for one day.
type tempResult struct {
	TempC      float64
	Known      bool
	Source     string
	Confidence float64
}

// resolveTemperature walks the fallback ladder for (container, date):
// measured mean, interpolation between the nearest readings, nearest single
// reading within a week, the TGC model's temperature profile, then nothing.
func (e *Engine) resolveTemperature(ctx context.Context, ac *assignmentContext, date time.Time) (tempResult, error) {
	dateStr := formatDate(date)

	readings, err := e.ds.GetReadingsOnDate(ctx, ac.container.ID, dateStr)
	if err != nil {
		return tempResult{}, err
	}
	if len(readings) > 0 {
		sum := 0.0
		for i := range readings {
			sum += readings[i].Value
		}
		return tempResult{
			TempC:      sum / float64(len(readings)),
			Known:      true,
			Source:     SourceMeasured,
			Confidence: 1.0,
		}, nil
	}

	before, err := e.ds.GetNearestReadingBefore(ctx, ac.container.ID, dateStr, readingSearchDays)
	if err != nil {
		return tempResult{}, err
	}
	after, err := e.ds.GetNearestReadingAfter(ctx, ac.container.ID, dateStr, readingSearchDays)
	if err != nil {
		return tempResult{}, err
	}

	if before != nil && after != nil {
		beforeDay := before.Timestamp.UTC().Truncate(24 * time.Hour)
		afterDay := after.Timestamp.UTC().Truncate(24 * time.Hour)
		spanDays := daysBetween(beforeDay, afterDay)
		if spanDays > 0 {
			fraction := float64(daysBetween(beforeDay, date)) / float64(spanDays)
			confidence := interpolatedBaseConfidence - float64(spanDays)/interpolatedSpanPenalty
			if confidence < interpolatedMinConfidence {
				confidence = interpolatedMinConfidence
			}
			return tempResult{
				TempC:      before.Value + (after.Value-before.Value)*fraction,
				Known:      true,
				Source:     SourceInterpolated,
				Confidence: confidence,
			}, nil
		}
	}

	if before != nil {
		return tempResult{
			TempC:      before.Value,
			Known:      true,
			Source:     SourceNearestBefore,
			Confidence: nearestConfidence,
		}, nil
	}
	if after != nil {
		return tempResult{
			TempC:      after.Value,
			Known:      true,
			Source:     SourceNearestAfter,
			Confidence: nearestConfidence,
		}, nil
	}

	if temp, ok := ac.master.ProfileTemp(ac.dayNumber(date)); ok {
		return tempResult{
			TempC:      temp,
			Known:      true,
			Source:     SourceProfile,
			Confidence: profileConfidence,
		}, nil
	}

	return tempResult{Source: SourceNone}, nil
}
