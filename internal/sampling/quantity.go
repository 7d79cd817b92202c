package sampling

import (
	"fmt"
	"strings"
)

// Quantity names one column group of a sample row.
type Quantity string

const (
	QuantityTheta              Quantity = "theta"
	QuantityValue              Quantity = "value"
	QuantityApproximationRatio Quantity = "approximation_ratio"
	QuantityGradient           Quantity = "gradient"
	QuantityGradientNorm       Quantity = "gradient_norm"
	QuantityHessianEigenvalues Quantity = "hessian_eigenvalues"
)

var allQuantities = []Quantity{
	QuantityTheta,
	QuantityValue,
	QuantityApproximationRatio,
	QuantityGradient,
	QuantityGradientNorm,
	QuantityHessianEigenvalues,
}

func AllQuantities() []Quantity {
	return append([]Quantity(nil), allQuantities...)
}

// ParseQuantities normalizes names such as "Gradient Norm" or
// "gradient-norm" and drops duplicates, keeping first-seen order.
func ParseQuantities(names []string) ([]Quantity, error) {
	out := make([]Quantity, 0, len(names))
	seen := make(map[Quantity]bool, len(names))
	for _, name := range names {
		q, err := ParseQuantity(name)
		if err != nil {
			return nil, err
		}
		if !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}
	return out, nil
}

func ParseQuantity(name string) (Quantity, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	switch key {
	case "theta", "angles":
		return QuantityTheta, nil
	case "value", "objective_value", "fval":
		return QuantityValue, nil
	case "approximation_ratio", "apr":
		return QuantityApproximationRatio, nil
	case "gradient", "grad":
		return QuantityGradient, nil
	case "gradient_norm", "gnorm":
		return QuantityGradientNorm, nil
	case "hessian_eigenvalues", "heig":
		return QuantityHessianEigenvalues, nil
	default:
		return "", fmt.Errorf("unknown sample quantity %q", name)
	}
}

// width is the number of CSV columns q contributes for L stages.
func (q Quantity) width(stages int) int {
	switch q {
	case QuantityTheta, QuantityGradient, QuantityHessianEigenvalues:
		return stages
	default:
		return 1
	}
}

// Header lists the CSV column names for quantities over L stages, always
// led by the sample index.
func Header(quantities []Quantity, stages int) []string {
	header := []string{"index"}
	for _, q := range quantities {
		if q.width(stages) == 1 {
			header = append(header, string(q))
			continue
		}
		for i := 0; i < stages; i++ {
			header = append(header, fmt.Sprintf("%s_%d", q, i))
		}
	}
	return header
}
