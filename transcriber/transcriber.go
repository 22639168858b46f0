package transcriber

import (
	"context"
	"strings"
	"time"
)

const (
	// BytesPerWord is how many payload bytes make up one simulated word.
	BytesPerWord = 16000
	// MsPerWord is the usage charged per simulated word, in milliseconds.
	MsPerWord = 250
)

// Result is the outcome of transcribing one audio packet. UsageUsedMs is
// derived deterministically from the payload length.
type Result struct {
	Transcript  string
	Confidence  float64
	UsageUsedMs int64
}

// Transcriber turns an audio payload into a transcript. Implementations must
// honor ctx cancellation promptly.
type Transcriber interface {
	Transcribe(ctx context.Context, payload []byte) (Result, error)
}

var lexicon = []string{
	"the", "quick", "onyx", "goblin", "jumps", "over", "a", "lazy", "dwarf",
}

// Simulated is a stand-in transcription engine. The cost model is exact
// (ceil(len/BytesPerWord) * MsPerWord) while the transcript itself is
// synthesized. WordDelay paces the wall-clock cost per word; leave it zero
// for instant results in tests.
type Simulated struct {
	WordDelay time.Duration
}

func (s *Simulated) Transcribe(ctx context.Context, payload []byte) (Result, error) {
	words := (len(payload) + BytesPerWord - 1) / BytesPerWord
	if s.WordDelay > 0 {
		timer := time.NewTimer(time.Duration(words) * s.WordDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{
		Transcript:  synthesize(words),
		Confidence:  confidence(payload),
		UsageUsedMs: int64(words) * MsPerWord,
	}, nil
}

func synthesize(words int) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = lexicon[i%len(lexicon)]
	}
	return strings.Join(parts, " ")
}

// confidence is deterministic per payload so replies are reproducible.
func confidence(payload []byte) float64 {
	var sum int
	for i := 0; i < len(payload); i += BytesPerWord {
		sum += int(payload[i])
	}
	return 0.85 + float64(sum%64)/512
}
