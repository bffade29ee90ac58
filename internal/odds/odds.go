// Package odds converts venue-native odds representations into devigged
// implied probabilities.
package odds

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solvys/predictipulse/internal/domain"
)

// Format identifies a sportsbook's native odds convention.
type Format string

const (
	FormatAmerican   Format = "american"
	FormatDecimal    Format = "decimal"
	FormatFractional Format = "fractional"
)

// Normalizer converts native odds to implied probabilities and removes the
// bookmaker's margin. FlatVigFactor is the configured margin removed when
// only one side of a market is available; two-sided pairs use proportional
// devigging instead.
type Normalizer struct {
	FlatVigFactor float64 // e.g. 0.025 for a 2.5% one-sided haircut
}

// ImpliedProb converts a raw odds value in the given format to its implied
// probability, vig included. It returns a *domain.MalformedOddsError for
// values outside the format's valid domain.
func (n Normalizer) ImpliedProb(format Format, value string) (float64, error) {
	switch format {
	case FormatAmerican:
		return americanProb(value)
	case FormatDecimal:
		return decimalProb(value)
	case FormatFractional:
		return fractionalProb(value)
	default:
		return 0, &domain.MalformedOddsError{Format: string(format), Value: value, Reason: "unknown odds format"}
	}
}

// DevigPair removes the vig from both sides of a binary market by
// proportional normalization: each side's raw implied probability divided by
// the sum of both. The results sum to 1.
func (n Normalizer) DevigPair(probA, probB float64) (fairA, fairB float64, err error) {
	if probA <= 0 || probA >= 1 {
		return 0, 0, &domain.MalformedOddsError{Format: "probability", Value: fmt.Sprintf("%g", probA), Reason: "outside (0,1)"}
	}
	if probB <= 0 || probB >= 1 {
		return 0, 0, &domain.MalformedOddsError{Format: "probability", Value: fmt.Sprintf("%g", probB), Reason: "outside (0,1)"}
	}
	total := probA + probB
	return probA / total, probB / total, nil
}

// DevigSingle removes the configured flat vig factor from a one-sided
// probability, clamping the result inside (0,1).
func (n Normalizer) DevigSingle(prob float64) (float64, error) {
	if prob <= 0 || prob >= 1 {
		return 0, &domain.MalformedOddsError{Format: "probability", Value: fmt.Sprintf("%g", prob), Reason: "outside (0,1)"}
	}
	fair := prob * (1 - n.FlatVigFactor)
	if fair <= 0 {
		fair = prob
	}
	return fair, nil
}

// NormalizePair converts both sides of a binary market from native odds and
// devigs them proportionally.
func (n Normalizer) NormalizePair(format Format, sideA, sideB string) (fairA, fairB float64, err error) {
	probA, err := n.ImpliedProb(format, sideA)
	if err != nil {
		return 0, 0, err
	}
	probB, err := n.ImpliedProb(format, sideB)
	if err != nil {
		return 0, 0, err
	}
	return n.DevigPair(probA, probB)
}

// NormalizeSingle converts one side from native odds and applies the flat
// vig factor.
func (n Normalizer) NormalizeSingle(format Format, value string) (float64, error) {
	prob, err := n.ImpliedProb(format, value)
	if err != nil {
		return 0, err
	}
	return n.DevigSingle(prob)
}

func americanProb(value string) (float64, error) {
	odds, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(value, "+")), 64)
	if err != nil {
		return 0, &domain.MalformedOddsError{Format: "american", Value: value, Reason: "not a number"}
	}
	if odds > -100 && odds < 100 {
		// American odds live outside (-100, 100); zero in particular has no meaning.
		return 0, &domain.MalformedOddsError{Format: "american", Value: value, Reason: "magnitude below 100"}
	}
	if odds > 0 {
		return 100 / (odds + 100), nil
	}
	return -odds / (-odds + 100), nil
}

func decimalProb(value string) (float64, error) {
	odds, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, &domain.MalformedOddsError{Format: "decimal", Value: value, Reason: "not a number"}
	}
	if odds <= 1 {
		return 0, &domain.MalformedOddsError{Format: "decimal", Value: value, Reason: "must exceed 1.0"}
	}
	return 1 / odds, nil
}

func fractionalProb(value string) (float64, error) {
	parts := strings.SplitN(strings.TrimSpace(value), "/", 2)
	if len(parts) != 2 {
		return 0, &domain.MalformedOddsError{Format: "fractional", Value: value, Reason: "want numerator/denominator"}
	}
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, &domain.MalformedOddsError{Format: "fractional", Value: value, Reason: "bad numerator"}
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, &domain.MalformedOddsError{Format: "fractional", Value: value, Reason: "bad denominator"}
	}
	if num <= 0 || den <= 0 {
		return 0, &domain.MalformedOddsError{Format: "fractional", Value: value, Reason: "terms must be positive"}
	}
	return den / (num + den), nil
}
