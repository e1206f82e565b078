// Package bkt implements Bayesian Knowledge Tracing: a two-state hidden
// Markov model of mastery per knowledge component. Like internal/irt, every
// function here is pure — the session engine owns all I/O and persistence.
package bkt

import (
	"math"

	"github.com/dlalloyd/adaptive-kernel/internal/apperr"
	"github.com/dlalloyd/adaptive-kernel/internal/models"
)

// UpdateBKT runs one Bayesian filter step followed by the learning
// transition, and reports whether the resulting posterior has crossed the
// mastery threshold.
func UpdateBKT(pLearned float64, isCorrect bool, params models.KCParams) (float64, bool, error) {
	if pLearned < 0 || pLearned > 1 {
		return 0, false, apperr.InvalidArgument("bkt update: pLearned out of range: %v", pLearned)
	}

	var numerator, denominator float64
	if isCorrect {
		numerator = pLearned * (1 - params.PS)
		denominator = numerator + (1-pLearned)*params.PG
	} else {
		numerator = pLearned * params.PS
		denominator = numerator + (1-pLearned)*(1-params.PG)
	}

	if denominator == 0 {
		return 0, false, apperr.Numeric("bkt update: zero denominator for pLearned=%v correct=%v params=%+v", pLearned, isCorrect, params)
	}
	posterior := numerator / denominator

	posterior = posterior + (1-posterior)*params.PT
	if posterior > 1 {
		posterior = 1
	}
	if posterior < 0 {
		posterior = 0
	}

	return posterior, posterior >= models.MasteryThreshold, nil
}

// UpdateKCState folds one scored response into a KC's running state.
func UpdateKCState(state models.KCState, isCorrect bool, params models.KCParams) (models.KCState, error) {
	posterior, mastered, err := UpdateBKT(state.PLearned, isCorrect, params)
	if err != nil {
		return models.KCState{}, err
	}

	next := state
	next.PLearned = posterior
	next.Attempts++
	if isCorrect {
		next.Correct++
	}
	next.IsMastered = mastered
	return next, nil
}

// InitialiseAllKCs seeds a fresh per-session KC state map from a quiz's
// catalogue, one entry per knowledge component, at its prior pL0.
func InitialiseAllKCs(catalogue map[string]models.KCParams) map[string]models.KCState {
	states := make(map[string]models.KCState, len(catalogue))
	for kcID, params := range catalogue {
		states[kcID] = models.KCState{
			KCID:       kcID,
			PLearned:   params.PL0,
			IsMastered: params.PL0 >= models.MasteryThreshold,
		}
	}
	return states
}

// Summary aggregates mastery progress across a session's KC states.
type Summary struct {
	TotalKCs        int
	MasteredKCs     int
	InProgressKCs   int // attempts > 0, not yet mastered
	NotStartedKCs   int // attempts == 0
	MeanPLearned    float64
	OverallProgress int // round(100 * masteredKCs / totalKCs)
}

// Summarise computes aggregate mastery statistics over a KC state map.
func Summarise(states map[string]models.KCState) Summary {
	s := Summary{TotalKCs: len(states)}
	if len(states) == 0 {
		return s
	}
	var sum float64
	for _, st := range states {
		sum += st.PLearned
		switch {
		case st.IsMastered:
			s.MasteredKCs++
		case st.Attempts > 0:
			s.InProgressKCs++
		default:
			s.NotStartedKCs++
		}
	}
	s.MeanPLearned = sum / float64(len(states))
	s.OverallProgress = int(math.Round(100 * float64(s.MasteredKCs) / float64(s.TotalKCs)))
	return s
}

// WeakestUnmastered returns the KC id with the lowest pLearned among those
// not yet mastered, and false if every KC is mastered (or there are none).
func WeakestUnmastered(states map[string]models.KCState) (string, bool) {
	var weakestID string
	weakestP := 2.0 // above any valid pLearned
	found := false
	for kcID, st := range states {
		if st.IsMastered {
			continue
		}
		if !found || st.PLearned < weakestP || (st.PLearned == weakestP && kcID < weakestID) {
			weakestID = kcID
			weakestP = st.PLearned
			found = true
		}
	}
	return weakestID, found
}

// AllMastered reports whether every KC in states has crossed the mastery
// threshold. An empty state map is vacuously true.
func AllMastered(states map[string]models.KCState) bool {
	for _, st := range states {
		if !st.IsMastered {
			return false
		}
	}
	return true
}
