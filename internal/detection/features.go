package detection

import (
	"github.com/cespare/xxhash/v2"

	"github.com/iyulab/siem-analyst/internal/model"
)

// eventTypeBuckets bounds the event_type hash feature.
const eventTypeBuckets = 1000

// numFeatures is the length of every feature vector.
const numFeatures = 6

// Features maps each event onto a fixed-length vector: hour of day,
// description length, bucketed event_type hash, source IP presence, severity
// ordinal, metadata key count. It is a lossy hand-built embedding.
func Features(events []model.SecurityEvent) [][]float64 {
	out := make([][]float64, len(events))
	for i, e := range events {
		hasSource := 0.0
		if e.SourceIP != "" {
			hasSource = 1
		}
		out[i] = []float64{
			float64(e.Timestamp.Hour()),
			float64(len(e.Description)),
			float64(xxhash.Sum64String(e.EventType) % eventTypeBuckets),
			hasSource,
			float64(e.Severity.Ordinal()),
			float64(len(e.Metadata)),
		}
	}
	return out
}
