package orchestrator

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/zeebo/blake3"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/artifact"
)

// Delivery entry classifications.
const (
	DeliveryReady   = "ready"
	DeliveryMissing = "missing"
	DeliveryError   = "error"
)

// addonPattern matches optional post-processing exports next to the required set.
const addonPattern = "06_*.json"

// artifactSchemas validates each required artifact beyond bare JSON parsing.
// Shapes mirror the §3 data model.
var artifactSchemas = map[string]string{
	ArtifactReady: `{
		"type": "object",
		"required": ["run_id", "timestamp", "readyList"],
		"properties": {
			"run_id": {"type": "string", "minLength": 1},
			"readyList": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	ArtifactInputs: `{
		"type": "object",
		"required": ["QUERY", "ANALYSIS", "COCKTAIL", "ADDONS"],
		"properties": {
			"QUERY": {"type": "string", "minLength": 1},
			"ANALYSIS": {"const": "Synthesis"},
			"ADDONS": {"type": "array", "maxItems": 0}
		}
	}`,
	ArtifactActivate: `{
		"type": "object",
		"required": ["activeList", "backupList", "quorum"],
		"properties": {
			"activeList": {"type": "array", "minItems": 2, "items": {"type": "string"}},
			"backupList": {"type": "array", "items": {"type": "string"}},
			"quorum": {"const": 2}
		}
	}`,
	ArtifactInitial:       recordArraySchema("INITIAL"),
	ArtifactMeta:          recordArraySchema("META"),
	ArtifactInitialStatus: statusSchema,
	ArtifactMetaStatus:    statusSchema,
	ArtifactUltra: `{
		"type": "object",
		"required": ["round", "model", "neutralChosen", "text", "ms"],
		"properties": {
			"round": {"const": "ULTRAI"},
			"model": {"type": "string", "minLength": 1},
			"ms": {"type": "integer", "minimum": 0}
		}
	}`,
	ArtifactUltraStatus: statusSchema,
	ArtifactStats: `{
		"type": "object",
		"required": ["INITIAL", "META", "ULTRAI"]
	}`,
}

const statusSchema = `{
	"type": "object",
	"required": ["status", "round", "details", "metadata"],
	"properties": {
		"status": {"enum": ["COMPLETED", "DEGRADED"]},
		"details": {"type": "object", "required": ["count"]}
	}
}`

func recordArraySchema(round string) string {
	return fmt.Sprintf(`{
		"type": "array",
		"minItems": 1,
		"items": {
			"type": "object",
			"required": ["round", "model", "ms", "error"],
			"properties": {
				"round": {"const": %q},
				"model": {"type": "string", "minLength": 1},
				"ms": {"type": "integer", "minimum": 0},
				"error": {"type": "boolean"}
			}
		}
	}`, round)
}

// Auditor verifies the artifact trail and compiles delivery.json.
type Auditor struct {
	store   *artifact.Store
	schemas map[string]*jsonschema.Schema
	now     func() time.Time
}

// NewAuditor compiles the artifact schemas once at startup.
func NewAuditor(store *artifact.Store) (*Auditor, error) {
	compiled := make(map[string]*jsonschema.Schema, len(artifactSchemas))
	for name, src := range artifactSchemas {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(name, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("delivery schema %s: %w", name, err)
		}
		sch, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("delivery schema %s: %w", name, err)
		}
		compiled[name] = sch
	}
	return &Auditor{store: store, schemas: compiled, now: time.Now}, nil
}

// Audit classifies every required artifact, appends any discovered add-on
// exports, and persists delivery.json. status is COMPLETED only when nothing
// required is missing or invalid.
func (a *Auditor) Audit(runID string) (*DeliveryArtifact, error) {
	var entries []DeliveryEntry
	var missing []string
	errored := false

	for _, name := range RequiredArtifacts {
		entry := a.classify(runID, name)
		entries = append(entries, entry)
		switch entry.Status {
		case DeliveryMissing:
			missing = append(missing, name)
		case DeliveryError:
			errored = true
		}
	}

	if names, err := a.store.List(runID); err == nil {
		for _, name := range names {
			if ok, _ := doublestar.Match(addonPattern, name); !ok {
				continue
			}
			entries = append(entries, a.classify(runID, name))
		}
	}

	status := "COMPLETED"
	message := "all required artifacts delivered"
	if len(missing) > 0 || errored {
		status = "INCOMPLETE"
		message = "artifact trail incomplete"
	}
	if missing == nil {
		missing = []string{}
	}

	delivery := &DeliveryArtifact{
		Status:          status,
		Message:         message,
		Artifacts:       entries,
		MissingRequired: missing,
		Metadata: DeliveryMetadata{
			RunID:          runID,
			Timestamp:      a.now().UTC().Format(time.RFC3339),
			TotalArtifacts: len(entries),
		},
	}
	if err := a.store.Write(runID, ArtifactDelivery, delivery); err != nil {
		return nil, &ArtifactError{AtStage: StageDelivery, Name: ArtifactDelivery, Err: err}
	}
	return delivery, nil
}

func (a *Auditor) classify(runID, name string) DeliveryEntry {
	raw, err := a.store.ReadRaw(runID, name)
	if err != nil {
		if artifact.IsNotFound(err) {
			return DeliveryEntry{Name: name, Status: DeliveryMissing}
		}
		return DeliveryEntry{Name: name, Status: DeliveryError}
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return DeliveryEntry{Name: name, Status: DeliveryError}
	}
	if sch, ok := a.schemas[name]; ok {
		if err := sch.Validate(doc); err != nil {
			return DeliveryEntry{Name: name, Status: DeliveryError}
		}
	}

	sum := blake3.Sum256(raw)
	return DeliveryEntry{
		Name:   name,
		Status: DeliveryReady,
		Digest: "blake3:" + hex.EncodeToString(sum[:]),
	}
}
