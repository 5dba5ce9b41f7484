package orchestrator

import (
	"strings"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/artifact"
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/cocktail"
)

// AnalysisSynthesis is the only accepted ANALYSIS value.
const AnalysisSynthesis = "Synthesis"

// RunRequest is the raw user input before validation.
type RunRequest struct {
	Query    string
	Cocktail string
	Analysis string
	Addons   []string
}

// ValidateInputs normalizes a request against the catalog and persists
// 01_inputs.json. Failures are *UserInputError.
func ValidateInputs(req RunRequest, catalog *cocktail.Catalog, store *artifact.Store, runID string) (*InputsArtifact, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, &UserInputError{Field: "QUERY", Message: "must be non-empty"}
	}

	name := strings.ToUpper(strings.TrimSpace(req.Cocktail))
	if _, ok := catalog.Get(name); !ok {
		return nil, &UserInputError{
			Field:   "COCKTAIL",
			Message: "unknown cocktail " + name + "; valid: " + strings.Join(catalog.Names(), ", "),
		}
	}

	analysis := strings.TrimSpace(req.Analysis)
	if analysis == "" {
		analysis = AnalysisSynthesis
	}
	if analysis != AnalysisSynthesis {
		return nil, &UserInputError{Field: "ANALYSIS", Message: "must be " + AnalysisSynthesis}
	}

	if len(req.Addons) != 0 {
		return nil, &UserInputError{Field: "ADDONS", Message: "add-ons are not active; list must be empty"}
	}

	in := &InputsArtifact{
		Query:    query,
		Analysis: analysis,
		Cocktail: name,
		Addons:   []string{},
	}
	if err := store.Write(runID, ArtifactInputs, in); err != nil {
		return nil, &ArtifactError{AtStage: StageInputs, Name: ArtifactInputs, Err: err}
	}
	return in, nil
}
