package orchestrator

import (
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/artifact"
)

// ComputeStats aggregates R1/R2/R3 artifacts into stats.json. Missing or
// unreadable round artifacts contribute zeros instead of failing the run;
// averages and counts cover non-error records only.
func ComputeStats(store *artifact.Store, runID string) (*StatsArtifact, error) {
	stats := &StatsArtifact{}

	var initial []ModelRecord
	if err := store.Read(runID, ArtifactInitial, &initial); err == nil {
		stats.Initial = summarize(initial)
	}
	var meta []ModelRecord
	if err := store.Read(runID, ArtifactMeta, &meta); err == nil {
		stats.Meta = summarize(meta)
	}
	var ultra UltraRecord
	if err := store.Read(runID, ArtifactUltra, &ultra); err == nil {
		stats.Ultra = UltraSummary{Count: 1, MS: ultra.MS}
	}

	if err := store.Write(runID, ArtifactStats, stats); err != nil {
		return nil, &ArtifactError{AtStage: StageStats, Name: ArtifactStats, Err: err}
	}
	return stats, nil
}

func summarize(records []ModelRecord) RoundSummary {
	var count int
	var totalMS int64
	for _, rec := range records {
		if rec.Error {
			continue
		}
		count++
		totalMS += rec.MS
	}
	if count == 0 {
		return RoundSummary{}
	}
	return RoundSummary{Count: count, AvgMS: float64(totalMS) / float64(count)}
}
