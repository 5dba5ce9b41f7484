package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/artifact"
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/gateway"
)

// ProbeReadiness fetches the upstream model catalog and persists 00_ready.json.
// Fails with *SystemReadinessError when the gateway is unreachable or reports
// fewer than two serviceable models.
func ProbeReadiness(ctx context.Context, gw gateway.Caller, store *artifact.Store, runID string, now time.Time) (*ReadyArtifact, error) {
	ids, err := gw.ListModels(ctx)
	if err != nil {
		if gateway.IsAuth(err) {
			return nil, &SystemReadinessError{Message: "gateway rejected credentials", Err: err}
		}
		return nil, &SystemReadinessError{Message: "model catalog unavailable", Err: err}
	}
	if len(ids) < 2 {
		return nil, &SystemReadinessError{Message: "fewer than 2 models serviceable"}
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	ready := &ReadyArtifact{
		RunID:     runID,
		Timestamp: now.UTC().Format(time.RFC3339),
		ReadyList: sorted,
	}
	if err := store.Write(runID, ArtifactReady, ready); err != nil {
		return nil, &ArtifactError{AtStage: StageReadiness, Name: ArtifactReady, Err: err}
	}
	return ready, nil
}
