// Package selector chooses the next question to serve from a bank, either
// by maximum IRT information (adaptive condition) or by authored order
// (static condition).
package selector

import (
	"math"

	"github.com/dlalloyd/adaptive-kernel/internal/irt"
	"github.com/dlalloyd/adaptive-kernel/internal/models"
)

// Criteria constrains eligible items for one selection.
type Criteria struct {
	TargetTheta float64
	ExcludeIDs  map[string]bool
	BloomLevel  int // 0 means unset, no filter
	Static      bool
}

// Select returns the next eligible question from bank under criteria, or
// ok=false if none are eligible. bank need not be pre-sorted; for static
// selection the item with the smallest Order wins.
func Select(bank []models.Question, criteria Criteria) (models.Question, bool, error) {
	eligible := make([]models.Question, 0, len(bank))
	for _, q := range bank {
		if criteria.ExcludeIDs[q.ID] {
			continue
		}
		if criteria.BloomLevel != 0 && q.Bloom != criteria.BloomLevel {
			continue
		}
		eligible = append(eligible, q)
	}

	if len(eligible) == 0 {
		return models.Question{}, false, nil
	}

	if criteria.Static {
		return selectStatic(eligible), true, nil
	}
	return selectAdaptive(eligible, criteria.TargetTheta)
}

func selectStatic(eligible []models.Question) models.Question {
	best := eligible[0]
	for _, q := range eligible[1:] {
		if q.Order < best.Order {
			best = q
		}
	}
	return best
}

func selectAdaptive(eligible []models.Question, targetTheta float64) (models.Question, bool, error) {
	var best models.Question
	bestInfo := -1.0
	bestDist := math.Inf(1)
	found := false

	for _, q := range eligible {
		info, err := irt.ItemInformation(targetTheta, q.A, q.B, q.C)
		if err != nil {
			return models.Question{}, false, err
		}
		dist := math.Abs(q.B - targetTheta)

		switch {
		case !found:
			best, bestInfo, bestDist, found = q, info, dist, true
		case info > bestInfo:
			best, bestInfo, bestDist = q, info, dist
		case info == bestInfo && dist < bestDist:
			best, bestDist = q, dist
		case info == bestInfo && dist == bestDist && q.ID < best.ID:
			best = q
		}
	}

	return best, found, nil
}

// InformationAt returns the item information of q at theta, rounded to
// three decimals as the engine reports it in the next-question envelope.
func InformationAt(theta float64, q models.Question) (float64, error) {
	info, err := irt.ItemInformation(theta, q.A, q.B, q.C)
	if err != nil {
		return 0, err
	}
	return math.Round(info*1000) / 1000, nil
}
