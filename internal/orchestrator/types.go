package orchestrator

// Quorum is the minimum number of non-error model records a round must keep
// for the run to continue.
const Quorum = 2

// Artifact filenames, in write order.
const (
	ArtifactReady         = "00_ready.json"
	ArtifactInputs        = "01_inputs.json"
	ArtifactActivate      = "02_activate.json"
	ArtifactInitial       = "03_initial.json"
	ArtifactInitialStatus = "03_initial_status.json"
	ArtifactMeta          = "04_meta.json"
	ArtifactMetaStatus    = "04_meta_status.json"
	ArtifactUltra         = "05_ultrai.json"
	ArtifactUltraStatus   = "05_ultrai_status.json"
	ArtifactFinal         = "06_final.json"
	ArtifactStats         = "stats.json"
	ArtifactDelivery      = "delivery.json"
	ArtifactStatus        = "status.json"
)

// RequiredArtifacts is the delivery auditor's required set, in phase order.
var RequiredArtifacts = []string{
	ArtifactReady,
	ArtifactInputs,
	ArtifactActivate,
	ArtifactInitial,
	ArtifactInitialStatus,
	ArtifactMeta,
	ArtifactMetaStatus,
	ArtifactUltra,
	ArtifactUltraStatus,
	ArtifactStats,
}

// ReadyArtifact is 00_ready.json.
type ReadyArtifact struct {
	RunID     string   `json:"run_id"`
	Timestamp string   `json:"timestamp"`
	ReadyList []string `json:"readyList"`
}

// InputsArtifact is 01_inputs.json.
type InputsArtifact struct {
	Query    string   `json:"QUERY"`
	Analysis string   `json:"ANALYSIS"`
	Cocktail string   `json:"COCKTAIL"`
	Addons   []string `json:"ADDONS"`
}

// SlotReason classifies an activation slot.
type SlotReason string

const (
	ReasonActive       SlotReason = "ACTIVE"
	ReasonFallbackOnly SlotReason = "FALLBACK_ONLY"
	ReasonNotReady     SlotReason = "NOT_READY"
)

// Slot is one executable position in the activation plan.
type Slot struct {
	Primary  string
	Fallback string
	Reason   SlotReason
}

// ActivateArtifact is 02_activate.json.
type ActivateArtifact struct {
	ActiveList []string          `json:"activeList"`
	BackupList []string          `json:"backupList"`
	Quorum     int               `json:"quorum"`
	Reasons    map[string]string `json:"reasons"`
}

// ModelRecord is one entry of 03_initial.json or 04_meta.json.
type ModelRecord struct {
	Round        string   `json:"round"`
	Model        string   `json:"model"`
	Text         string   `json:"text"`
	MS           int64    `json:"ms"`
	Error        bool     `json:"error"`
	FailedModels []string `json:"failed_models,omitempty"`
}

// UltraRecord is 05_ultrai.json.
type UltraRecord struct {
	Round         string     `json:"round"`
	Model         string     `json:"model"`
	NeutralChosen string     `json:"neutralChosen"`
	Text          string     `json:"text"`
	MS            int64      `json:"ms"`
	Stats         UltraStats `json:"stats"`
}

// UltraStats carries the synthesis input counts.
type UltraStats struct {
	ActiveCount int `json:"active_count"`
	MetaCount   int `json:"meta_count"`
}

// FinalArtifact is the optional 06_final.json add-on export.
type FinalArtifact struct {
	Round         string           `json:"round"`
	Text          string           `json:"text"`
	AddOnsApplied []string         `json:"addOnsApplied"`
	Metadata      ArtifactMetadata `json:"metadata"`
}

// RoundStatusArtifact is <NN>_<round>_status.json.
type RoundStatusArtifact struct {
	Status   string           `json:"status"`
	Round    string           `json:"round"`
	Details  RoundDetails     `json:"details"`
	Metadata ArtifactMetadata `json:"metadata"`
}

// RoundDetails describes how a round (or the synthesis call) executed.
type RoundDetails struct {
	Count         int            `json:"count"`
	Concurrency   int            `json:"concurrency,omitempty"`
	TimingBudgets map[string]any `json:"timing_budgets,omitempty"`
	Models        []string       `json:"models,omitempty"`
	FailedModels  []string       `json:"failed_models"`

	// Synthesis-only fields.
	TimeoutS         int `json:"timeout_s,omitempty"`
	ContextLength    int `json:"context_length,omitempty"`
	NumMetaDrafts    int `json:"num_meta_drafts,omitempty"`
	MaxCharsPerDraft int `json:"max_chars_per_draft,omitempty"`
}

// ArtifactMetadata is the shared metadata block on status-style artifacts.
type ArtifactMetadata struct {
	RunID     string `json:"run_id"`
	Timestamp string `json:"timestamp"`
	Phase     string `json:"phase"`
}

// RoundSummary holds per-round aggregates inside stats.json.
type RoundSummary struct {
	Count int     `json:"count"`
	AvgMS float64 `json:"avg_ms"`
}

// StatsArtifact is stats.json.
type StatsArtifact struct {
	Initial RoundSummary `json:"INITIAL"`
	Meta    RoundSummary `json:"META"`
	Ultra   UltraSummary `json:"ULTRAI"`
}

// UltraSummary is the single-call R3 entry in stats.json.
type UltraSummary struct {
	Count int   `json:"count"`
	MS    int64 `json:"ms"`
}

// DeliveryEntry is one audited artifact in delivery.json.
type DeliveryEntry struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Digest string `json:"digest,omitempty"`
}

// DeliveryArtifact is delivery.json.
type DeliveryArtifact struct {
	Status          string           `json:"status"`
	Message         string           `json:"message"`
	Artifacts       []DeliveryEntry  `json:"artifacts"`
	MissingRequired []string         `json:"missing_required"`
	Metadata        DeliveryMetadata `json:"metadata"`
}

// DeliveryMetadata is the metadata block of delivery.json.
type DeliveryMetadata struct {
	RunID          string `json:"run_id"`
	Timestamp      string `json:"timestamp"`
	TotalArtifacts int    `json:"total_artifacts"`
}

// StatusFile is the continuously rewritten status.json.
type StatusFile struct {
	RunID        string `json:"run_id"`
	CurrentPhase string `json:"current_phase"`
	Completed    bool   `json:"completed"`
	Progress     int    `json:"progress"`
	Steps        []Step `json:"steps"`
	Error        string `json:"error,omitempty"`
}
