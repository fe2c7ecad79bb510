package aggregates

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRollupBySignalTypeSeparatesBuckets(t *testing.T) {
	outcomes := []SignalOutcome{
		{SignalType: "buy", Confidence: 0.9, Correct: true},
		{SignalType: "buy", Confidence: 0.85, Correct: true},
		{SignalType: "buy", Confidence: 0.3, Correct: false},
		{SignalType: "sell", Confidence: 0.5, Correct: false},
	}
	rollups := RollupBySignalType(outcomes)

	buy := rollups["buy"]
	require.Equal(t, 3, buy.TotalSignals)
	require.Equal(t, 2, buy.CorrectSignals)
	require.InDelta(t, 0.575, buy.ConfidenceAccuracy, 1e-9)

	sell := rollups["sell"]
	require.Equal(t, 1, sell.TotalSignals)
	require.Equal(t, 0, sell.CorrectSignals)
}

func TestRollupBySignalTypeEmptyInput(t *testing.T) {
	rollups := RollupBySignalType(nil)
	require.Empty(t, rollups)
}
