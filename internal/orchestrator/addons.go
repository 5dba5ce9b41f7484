package orchestrator

import (
	"time"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/artifact"
)

// ApplyAddons is the post-processing stage between R3 and stats. Every
// add-on is inactive, so the stage republishes the ULTRA text untouched as
// 06_final.json. The file is optional for delivery.
func ApplyAddons(store *artifact.Store, runID string, ultra *UltraRecord, now time.Time) (*FinalArtifact, error) {
	final := &FinalArtifact{
		Round:         "FINAL",
		Text:          ultra.Text,
		AddOnsApplied: []string{},
		Metadata: ArtifactMetadata{
			RunID:     runID,
			Timestamp: now.UTC().Format(time.RFC3339),
			Phase:     StageAddons,
		},
	}
	if err := store.Write(runID, ArtifactFinal, final); err != nil {
		return nil, &ArtifactError{AtStage: StageAddons, Name: ArtifactFinal, Err: err}
	}
	return final, nil
}
