package orchestrator

import (
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/artifact"
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/cocktail"
)

// PlanActivation intersects the cocktail with the READY set, pairs fallbacks
// positionally, enforces the quorum, and persists 02_activate.json. The
// returned slots are the executable ones, in cocktail position order.
func PlanActivation(ready *ReadyArtifact, roster cocktail.Roster, store *artifact.Store, runID string) ([]Slot, *ActivateArtifact, error) {
	inReady := make(map[string]bool, len(ready.ReadyList))
	for _, id := range ready.ReadyList {
		inReady[id] = true
	}

	var executable []Slot
	reasons := make(map[string]string, len(roster.Primaries))
	for i, primary := range roster.Primaries {
		fallback := roster.Fallbacks[i]
		switch {
		case inReady[primary]:
			executable = append(executable, Slot{Primary: primary, Fallback: fallback, Reason: ReasonActive})
			reasons[primary] = string(ReasonActive)
		case inReady[fallback]:
			// Primary unavailable: the fallback serves both chain positions.
			executable = append(executable, Slot{Primary: fallback, Fallback: fallback, Reason: ReasonFallbackOnly})
			reasons[primary] = string(ReasonFallbackOnly)
		default:
			reasons[primary] = string(ReasonNotReady)
		}
	}

	if len(executable) < Quorum {
		return nil, nil, &ActiveLLMError{Executable: len(executable), Quorum: Quorum}
	}

	plan := &ActivateArtifact{
		ActiveList: make([]string, 0, len(executable)),
		BackupList: make([]string, 0, len(executable)),
		Quorum:     Quorum,
		Reasons:    reasons,
	}
	for _, s := range executable {
		plan.ActiveList = append(plan.ActiveList, s.Primary)
		plan.BackupList = append(plan.BackupList, s.Fallback)
	}
	if err := store.Write(runID, ArtifactActivate, plan); err != nil {
		return nil, nil, &ArtifactError{AtStage: StageActivation, Name: ArtifactActivate, Err: err}
	}
	return executable, plan, nil
}
