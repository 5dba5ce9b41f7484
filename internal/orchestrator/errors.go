package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names used in terminal FAILED(<stage>) states and status artifacts.
const (
	StageReadiness  = "readiness"
	StageInputs     = "inputs"
	StageActivation = "activation"
	StageInitial    = "initial"
	StageMeta       = "meta"
	StageSynthesis  = "synthesis"
	StageAddons     = "addons"
	StageStats      = "stats"
	StageDelivery   = "delivery"
)

// StageError is implemented by every fatal error the coordinator converts to
// a terminal FAILED(<stage>) state.
type StageError interface {
	error
	Stage() string
}

// SystemReadinessError: missing credentials, unreachable gateway, or fewer
// than two serviceable upstream models.
type SystemReadinessError struct {
	Message string
	Err     error
}

func (e *SystemReadinessError) Error() string {
	return "system readiness: " + joinMsg(e.Message, e.Err)
}
func (e *SystemReadinessError) Unwrap() error { return e.Err }
func (e *SystemReadinessError) Stage() string { return StageReadiness }

// UserInputError: rejected QUERY, COCKTAIL, ANALYSIS, or ADDONS.
type UserInputError struct {
	Field   string
	Message string
}

func (e *UserInputError) Error() string {
	return fmt.Sprintf("invalid input %s: %s", e.Field, e.Message)
}
func (e *UserInputError) Stage() string { return StageInputs }

// ActiveLLMError: the activation plan could not assemble a quorum of
// executable slots.
type ActiveLLMError struct {
	Executable int
	Quorum     int
}

func (e *ActiveLLMError) Error() string {
	return fmt.Sprintf("activation quorum not met: %d executable slots, need %d", e.Executable, e.Quorum)
}
func (e *ActiveLLMError) Stage() string { return StageActivation }

// InitialRoundError: R1 lost the quorum of non-error records.
type InitialRoundError struct {
	NonError int
	Quorum   int
}

func (e *InitialRoundError) Error() string {
	return fmt.Sprintf("INITIAL round collapsed: %d non-error records, need %d", e.NonError, e.Quorum)
}
func (e *InitialRoundError) Stage() string { return StageInitial }

// MetaRoundError: R2 lost the quorum of non-error records.
type MetaRoundError struct {
	NonError int
	Quorum   int
}

func (e *MetaRoundError) Error() string {
	return fmt.Sprintf("META round collapsed: %d non-error records, need %d", e.NonError, e.Quorum)
}
func (e *MetaRoundError) Stage() string { return StageMeta }

// UltrAISynthesisError: the single R3 call failed.
type UltrAISynthesisError struct {
	Model string
	Err   error
}

func (e *UltrAISynthesisError) Error() string {
	return fmt.Sprintf("ULTRA synthesis via %s failed: %v", e.Model, e.Err)
}
func (e *UltrAISynthesisError) Unwrap() error { return e.Err }
func (e *UltrAISynthesisError) Stage() string { return StageSynthesis }

// ArtifactError wraps a persistence failure at any stage.
type ArtifactError struct {
	AtStage string
	Name    string
	Err     error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifact %s at stage %s: %v", e.Name, e.AtStage, e.Err)
}
func (e *ArtifactError) Unwrap() error { return e.Err }
func (e *ArtifactError) Stage() string { return e.AtStage }

// CancelledError: the run's cancellation token fired.
type CancelledError struct {
	AtStage string
}

func (e *CancelledError) Error() string {
	return "run cancelled during " + e.AtStage
}
func (e *CancelledError) Stage() string { return "cancelled" }

// FailedState renders the terminal state label for a stage error.
func FailedState(err error) string {
	var se StageError
	if errors.As(err, &se) {
		return "FAILED(" + se.Stage() + ")"
	}
	return "FAILED(internal)"
}

func joinMsg(msg string, err error) string {
	msg = strings.TrimSpace(msg)
	switch {
	case msg != "" && err != nil:
		return msg + ": " + err.Error()
	case msg != "":
		return msg
	case err != nil:
		return err.Error()
	default:
		return "unknown error"
	}
}
