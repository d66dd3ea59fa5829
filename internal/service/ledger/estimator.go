package ledger

import (
	"dream-san/internal/config"
	"math"
	"unicode/utf8"
)

// CostEstimator prices a query in app tokens
type CostEstimator interface {
	EstimateCost(text string) int
}

// CostEstimatorFunc adapts a plain function to CostEstimator
type CostEstimatorFunc func(text string) int

func (f CostEstimatorFunc) EstimateCost(text string) int {
	return f(text)
}

// rateEpsilon absorbs float noise such as 70*0.1 = 7.000000000000001
const rateEpsilon = 1e-9

// LengthEstimator prices by character count: ceil(chars*CharRate), at least
// MinFloor. It approximates, it does not tokenize, and only the length of the
// text matters.
type LengthEstimator struct {
	CharRate float64
	MinFloor int
}

// NewLengthEstimator builds the estimator from ledger configuration
func NewLengthEstimator(cfg config.LedgerConfig) LengthEstimator {
	return LengthEstimator{CharRate: cfg.CharRate, MinFloor: cfg.MinFloor}
}

func (e LengthEstimator) EstimateCost(text string) int {
	chars := utf8.RuneCountInString(text)
	tokens := int(math.Ceil(float64(chars)*e.CharRate - rateEpsilon))
	if tokens < e.MinFloor {
		return e.MinFloor
	}
	return tokens
}
