package decode

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"copytrade-core/internal/domain"
)

func TestDecodeSlotNotification(t *testing.T) {
	raw := json.RawMessage(`{"slot":123,"parent":122,"root":100}`)
	events, decErr := Decode(1, raw)
	require.Nil(t, decErr)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventSlotUpdate, events[0].Kind)
	require.EqualValues(t, 123, events[0].SlotUpdate.Slot)
}

func TestDecodeUnknownOwnerYieldsNoEvent(t *testing.T) {
	raw := json.RawMessage(`{"context":{"slot":5},"value":{"pubkey":"abc","owner":"SomeRandomProgram11111111111111111111111"}}`)
	events, decErr := Decode(2, raw)
	require.Nil(t, decErr)
	require.Empty(t, events)
}

func TestDecodeMalformedJSONReturnsError(t *testing.T) {
	_, decErr := Decode(3, json.RawMessage(`not json`))
	require.NotNil(t, decErr)
}

func TestDecodeIsDeterministic(t *testing.T) {
	raw := json.RawMessage(`{"context":{"slot":9},"value":{"pubkey":"xyz","owner":"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4","data":{"signature":"sig1","wallet":"w1","tokenIn":"SOL","tokenOut":"MINT","direction":"buy"}}}`)
	a, errA := Decode(4, raw)
	b, errB := Decode(4, raw)
	require.Nil(t, errA)
	require.Nil(t, errB)
	require.Equal(t, a, b)
}

func TestDecodeSwapLogEmitsSwapDetected(t *testing.T) {
	raw := json.RawMessage(`{"context":{"slot":9},"value":{"pubkey":"xyz","owner":"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4","data":{"signature":"sig1","wallet":"w1","tokenIn":"SOL","tokenOut":"MINT","direction":"sell"}}}`)
	events, decErr := Decode(5, raw)
	require.Nil(t, decErr)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventSwapDetected, events[0].Kind)
	require.Equal(t, domain.SwapSell, events[0].SwapDetected.Direction)
}

func TestDecodePoolAccountTooShortYieldsGenericUpdate(t *testing.T) {
	shortData := base64.StdEncoding.EncodeToString([]byte("short"))
	raw := json.RawMessage(`{"context":{"slot":9},"value":{"pubkey":"pool1","owner":"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8","data":["` + shortData + `","base64"]}}`)
	events, decErr := Decode(6, raw)
	require.Nil(t, decErr)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventAccountUpdate, events[0].Kind)
}

func TestDecodeEmptyFrameYieldsNothing(t *testing.T) {
	events, decErr := Decode(7, nil)
	require.Nil(t, decErr)
	require.Nil(t, events)
}

func TestBondingProgressClampedToRange(t *testing.T) {
	require.Equal(t, 0.0, BondingProgress(0, 5))
	require.InDelta(t, 50.0, BondingProgress(100, 50), 0.001)
	require.Equal(t, 100.0, BondingProgress(100, -1000))
}
