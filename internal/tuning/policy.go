package tuning

import (
	"fmt"
	"math"
)

// AttemptPolicy decides how many tuning attempts a continuation stage gets.
// layer counts from 1 and numAngles is the size of the vector being tuned.
type AttemptPolicy interface {
	Name() string
	Attempts(baseAttempts, layer, totalLayers, numAngles int) int
}

type FixedAttemptPolicy struct{}

func (FixedAttemptPolicy) Name() string { return "fixed" }

func (FixedAttemptPolicy) Attempts(baseAttempts, _, _, _ int) int {
	if baseAttempts < 0 {
		return 0
	}
	return baseAttempts
}

type LinearDecayAttemptPolicy struct {
	MinAttempts int
}

func (LinearDecayAttemptPolicy) Name() string { return "linear_decay" }

func (p LinearDecayAttemptPolicy) Attempts(baseAttempts, layer, totalLayers, _ int) int {
	if baseAttempts <= 0 {
		return 0
	}
	if totalLayers <= 0 {
		return baseAttempts
	}
	remaining := max(totalLayers-layer+1, 1)
	attempts := (baseAttempts * remaining) / totalLayers
	return max(attempts, p.MinAttempts, 0)
}

// SizeProportionalAttemptPolicy grows attempts with numAngles^Power,
// saturating the growth at 100.
type SizeProportionalAttemptPolicy struct {
	Power float64
}

func (SizeProportionalAttemptPolicy) Name() string { return "size_proportional" }

func (p SizeProportionalAttemptPolicy) Attempts(baseAttempts, _, _, numAngles int) int {
	if baseAttempts <= 0 {
		return 0
	}
	power := p.Power
	if power <= 0 {
		power = 1.0
	}
	scaled := satInt(int(math.Round(math.Pow(float64(numAngles), power))), 0, 100)
	return baseAttempts + scaled
}

func AttemptPolicyFromConfig(name string, param float64) (AttemptPolicy, error) {
	switch NormalizeAttemptPolicyName(name) {
	case "fixed":
		return FixedAttemptPolicy{}, nil
	case "linear_decay":
		return LinearDecayAttemptPolicy{MinAttempts: max(int(param), 1)}, nil
	case "size_proportional":
		power := param
		if power <= 0 {
			power = 1.0
		}
		return SizeProportionalAttemptPolicy{Power: power}, nil
	default:
		return nil, fmt.Errorf("unsupported attempt policy: %s", name)
	}
}

func NormalizeAttemptPolicyName(name string) string {
	switch name {
	case "", "fixed", "const":
		return "fixed"
	default:
		return name
	}
}

func satInt(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}
