// Package irt implements the 3-parameter logistic Item Response Theory
// model: the item characteristic function, Fisher information, and a
// grid-based EAP ability estimator. Every function here is pure and
// side-effect-free, deterministic scoring math with no I/O.
package irt

import (
	"math"

	"github.com/dlalloyd/adaptive-kernel/internal/apperr"
)

// D is the IRT scaling constant that makes the logistic approximate the
// normal ogive.
const D = 1.7

// Grid constants for the EAP estimator. A different discretisation
// produces a different theta trajectory, so these are fixed rather than
// configurable.
const (
	GridMin    = -4.0
	GridMax    = 4.0
	GridPoints = 161
	GridStep   = (GridMax - GridMin) / float64(GridPoints-1)
)

// Theta0 and Sigma0 are the default EAP priors.
const (
	Theta0 = -0.780
	Sigma0 = 0.543
)

// P3PL returns the probability of a correct response under the 3PL model.
// Domain: a > 0, c in [0,1). Result is in [c, 1).
func P3PL(theta, a, b, c float64) float64 {
	z := -D * a * (theta - b)
	return c + (1-c)/(1+math.Exp(z))
}

// ItemInformation returns the Fisher information of an item at theta.
// It fails with a NumericError if the item-characteristic probability
// evaluates to 0 or 1, which should not occur for c in (0,1) and finite
// theta.
func ItemInformation(theta, a, b, c float64) (float64, error) {
	p := P3PL(theta, a, b, c)
	if p <= 0 || p >= 1 {
		return 0, apperr.Numeric("item information: p3PL collapsed to %v", p)
	}
	denom := (1 - c) * (1 - c) * p * (1 - p)
	if denom == 0 {
		return 0, apperr.Numeric("item information: zero denominator")
	}
	num := D * D * a * a * (p - c) * (p - c)
	return num / denom, nil
}

// Response is one scored answer contributing to the EAP likelihood.
type Response struct {
	A, B, C float64
	Correct bool
}

// EAPResult is the posterior summary returned by EAPEstimate.
type EAPResult struct {
	Theta    float64
	SD       float64
	CI95Low  float64
	CI95High float64
}

// grid returns the 161 equally spaced points on [-4, 4].
func grid() [GridPoints]float64 {
	var g [GridPoints]float64
	for i := 0; i < GridPoints; i++ {
		g[i] = GridMin + float64(i)*GridStep
	}
	return g
}

// EAPEstimate computes the grid-based Expected A Posteriori ability
// estimate and a conservative 95% credible interval, given a Gaussian
// prior and the full response history. An empty response list returns
// the prior unchanged (theta = priorMean, sd = priorSd), within grid
// resolution.
func EAPEstimate(responses []Response, priorMean, priorSd float64) (EAPResult, error) {
	g := grid()

	var posterior [GridPoints]float64
	sum := 0.0
	for i, t := range g {
		dz := (t - priorMean) / priorSd
		lik := math.Exp(-0.5 * dz * dz)
		for _, r := range responses {
			p := P3PL(t, r.A, r.B, r.C)
			if r.Correct {
				lik *= p
			} else {
				lik *= 1 - p
			}
		}
		posterior[i] = lik
		sum += lik
	}

	if sum <= 0 || math.IsNaN(sum) {
		return EAPResult{}, apperr.Numeric("eap estimate: posterior sum is non-positive (%v)", sum)
	}

	for i := range posterior {
		posterior[i] /= sum
	}

	theta := 0.0
	for i, t := range g {
		theta += t * posterior[i]
	}

	variance := 0.0
	for i, t := range g {
		d := t - theta
		variance += d * d * posterior[i]
	}
	sd := math.Sqrt(variance)

	ci95Low := g[GridPoints-1]
	ci95High := g[GridPoints-1]
	cum := 0.0
	foundLow, foundHigh := false, false
	for i, t := range g {
		cum += posterior[i]
		if !foundLow && cum >= 0.025 {
			ci95Low = t
			foundLow = true
		}
		if !foundHigh && cum >= 0.975 {
			ci95High = t
			foundHigh = true
			break
		}
	}

	return EAPResult{
		Theta:    theta,
		SD:       sd,
		CI95Low:  ci95Low,
		CI95High: ci95High,
	}, nil
}
