package transcriber

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSimulatedCostModel(t *testing.T) {
	engine := &Simulated{}
	for _, tc := range []struct {
		payloadLen int
		usedMs     int64
		words      int
	}{
		{1, MsPerWord, 1},
		{BytesPerWord - 1, MsPerWord, 1},
		{BytesPerWord, MsPerWord, 1},
		{BytesPerWord + 1, 2 * MsPerWord, 2},
		{4 * BytesPerWord, 4 * MsPerWord, 4},
	} {
		result, err := engine.Transcribe(context.Background(), make([]byte, tc.payloadLen))
		require.NoError(t, err)
		require.Equal(t, tc.usedMs, result.UsageUsedMs, "payload of %d bytes", tc.payloadLen)
		require.Len(t, strings.Fields(result.Transcript), tc.words)
	}
}

func TestSimulatedDeterministic(t *testing.T) {
	engine := &Simulated{}
	payload := []byte("the same audio twice")

	first, err := engine.Transcribe(context.Background(), payload)
	require.NoError(t, err)
	second, err := engine.Transcribe(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.Greater(t, first.Confidence, 0.0)
	require.LessOrEqual(t, first.Confidence, 1.0)
}

func TestSimulatedHonorsCancellation(t *testing.T) {
	engine := &Simulated{WordDelay: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Transcribe(ctx, []byte("audio"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestSimulatedPacing(t *testing.T) {
	engine := &Simulated{WordDelay: 10 * time.Millisecond}
	start := time.Now()
	result, err := engine.Transcribe(context.Background(), make([]byte, 2*BytesPerWord))
	require.NoError(t, err)
	require.Equal(t, int64(2*MsPerWord), result.UsageUsedMs)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
