package odds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvys/predictipulse/internal/domain"
)

func TestImpliedProbAmerican(t *testing.T) {
	n := Normalizer{}

	p, err := n.ImpliedProb(FormatAmerican, "+150")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, p, 1e-9)

	p, err = n.ImpliedProb(FormatAmerican, "-150")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, p, 1e-9)

	p, err = n.ImpliedProb(FormatAmerican, "-110")
	require.NoError(t, err)
	assert.InDelta(t, 110.0/210.0, p, 1e-9)
}

func TestImpliedProbDecimal(t *testing.T) {
	n := Normalizer{}

	p, err := n.ImpliedProb(FormatDecimal, "2.50")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, p, 1e-9)
}

func TestImpliedProbFractional(t *testing.T) {
	n := Normalizer{}

	p, err := n.ImpliedProb(FormatFractional, "3/2")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, p, 1e-9)
}

func TestImpliedProbMalformed(t *testing.T) {
	n := Normalizer{}

	cases := []struct {
		format Format
		value  string
	}{
		{FormatAmerican, "0"},
		{FormatAmerican, "50"},
		{FormatAmerican, "abc"},
		{FormatDecimal, "0"},
		{FormatDecimal, "-2.0"},
		{FormatDecimal, "1.0"},
		{FormatFractional, "3"},
		{FormatFractional, "-1/2"},
		{FormatFractional, "1/0"},
		{Format("roman"), "IV"},
	}
	for _, tc := range cases {
		_, err := n.ImpliedProb(tc.format, tc.value)
		require.Error(t, err, "%s %q", tc.format, tc.value)
		var malformed *domain.MalformedOddsError
		assert.ErrorAs(t, err, &malformed, "%s %q", tc.format, tc.value)
	}
}

func TestDevigPairSumsToOne(t *testing.T) {
	n := Normalizer{}

	// Standard -110/-110 market carries ~4.76% vig; devigged sides must
	// split it proportionally and sum to 1.
	pairs := [][2]string{
		{"-110", "-110"},
		{"-150", "+130"},
		{"+200", "-250"},
		{"-10000", "+3000"},
	}
	for _, pair := range pairs {
		fairA, fairB, err := n.NormalizePair(FormatAmerican, pair[0], pair[1])
		require.NoError(t, err)
		assert.InDelta(t, 1.0, fairA+fairB, 1e-9, "pair %v", pair)
		assert.Greater(t, fairA, 0.0)
		assert.Less(t, fairA, 1.0)
	}
}

func TestDevigPairEvenMarket(t *testing.T) {
	n := Normalizer{}

	fairA, fairB, err := n.NormalizePair(FormatAmerican, "-110", "-110")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, fairA, 1e-9)
	assert.InDelta(t, 0.5, fairB, 1e-9)
}

func TestDevigSingleFlatFactor(t *testing.T) {
	n := Normalizer{FlatVigFactor: 0.025}

	fair, err := n.DevigSingle(0.60)
	require.NoError(t, err)
	assert.InDelta(t, 0.585, fair, 1e-9)

	_, err = n.DevigSingle(1.0)
	require.Error(t, err)
}
