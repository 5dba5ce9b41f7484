package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/artifact"
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/gateway"
)

// PreferredUltra is the neutral-model preference order for R3. The first
// entry that also produced a non-error META draft wins.
var PreferredUltra = []string{
	"anthropic/claude-3.7-sonnet",
	"openai/gpt-4o",
	"google/gemini-2.0-flash-thinking-exp:free",
	"meta-llama/llama-3.3-70b-instruct",
}

const ultraSystem = "You are the ULTRAI neutral synthesis model (R3)."

const ultraConstraints = `CONSTRAINTS:
- DO NOT introduce new information beyond the META drafts.
- DO NOT use your own knowledge; your role is to MERGE and SYNTHESIZE.
- Omit low-confidence claims where the models disagree.`

const ultraTask = `TASK:
Merge convergences, resolve contradictions, and cite retained and omitted claims.
Produce one coherent synthesis with confidence notes and basic stats.`

// ChooseNeutral picks the R3 model from the META producers. Missing every
// preferred model is not an error; the first producer serves instead.
func ChooseNeutral(metaRecords []ModelRecord) (string, bool) {
	producers := make(map[string]bool)
	var first string
	for _, rec := range metaRecords {
		if rec.Error {
			continue
		}
		if first == "" {
			first = rec.Model
		}
		producers[rec.Model] = true
	}
	if first == "" {
		return "", false
	}
	for _, want := range PreferredUltra {
		if producers[want] {
			return want, true
		}
	}
	return first, true
}

// Synthesizer performs the single R3 call and persists 05_ultrai.json and
// 05_ultrai_status.json.
type Synthesizer struct {
	gw    gateway.Caller
	store *artifact.Store
	now   func() time.Time
}

// NewSynthesizer wires a synthesizer over the gateway and artifact store.
func NewSynthesizer(gw gateway.Caller, store *artifact.Store) *Synthesizer {
	return &Synthesizer{gw: gw, store: store, now: time.Now}
}

// Synthesize sizes the call in two passes: a worst-case context picks the
// truncation width, truncated drafts pick the final timeout. activeCount is
// the executable slot count from activation.
func (s *Synthesizer) Synthesize(ctx context.Context, runID, query string, metaRecords []ModelRecord, activeCount int) (*UltraRecord, error) {
	var drafts []ModelRecord
	for _, rec := range metaRecords {
		if !rec.Error {
			drafts = append(drafts, rec)
		}
	}
	if len(drafts) == 0 {
		return nil, &UltrAISynthesisError{Model: "", Err: &MetaRoundError{NonError: 0, Quorum: Quorum}}
	}

	neutral, _ := ChooseNeutral(metaRecords)

	rawLen := len(query)
	for _, d := range drafts {
		rawLen += len(d.Text)
	}
	prelim := SynthesisTimeout(rawLen, len(drafts))
	maxChars := MaxCharsPerDraft(prelim)

	var block strings.Builder
	finalLen := len(query)
	for _, d := range drafts {
		text := Truncate(d.Text, maxChars)
		finalLen += len(text)
		block.WriteString("- ")
		block.WriteString(d.Model)
		block.WriteString(": ")
		block.WriteString(text)
		block.WriteString("\n")
	}
	timeout := SynthesisTimeout(finalLen, len(drafts))

	user := "QUERY:\n" + query + "\n\n" +
		ultraConstraints + "\n\n" +
		"META DRAFTS:\n" + strings.TrimRight(block.String(), "\n") + "\n\n" +
		ultraTask
	messages := []gateway.Message{
		{Role: "system", Content: ultraSystem},
		{Role: "user", Content: user},
	}

	res, err := s.gw.Call(ctx, neutral, messages, timeout)
	if err != nil {
		return nil, &UltrAISynthesisError{Model: neutral, Err: err}
	}

	rec := &UltraRecord{
		Round:         "ULTRAI",
		Model:         neutral,
		NeutralChosen: neutral,
		Text:          res.Text,
		MS:            res.MS,
		Stats:         UltraStats{ActiveCount: activeCount, MetaCount: len(drafts)},
	}
	if err := s.store.Write(runID, ArtifactUltra, rec); err != nil {
		return nil, &ArtifactError{AtStage: StageSynthesis, Name: ArtifactUltra, Err: err}
	}

	st := &RoundStatusArtifact{
		Status: RoundCompleted,
		Round:  "ULTRAI",
		Details: RoundDetails{
			Count:            1,
			Models:           []string{neutral},
			FailedModels:     []string{},
			TimeoutS:         int(timeout / time.Second),
			ContextLength:    finalLen,
			NumMetaDrafts:    len(drafts),
			MaxCharsPerDraft: maxChars,
		},
		Metadata: ArtifactMetadata{
			RunID:     runID,
			Timestamp: s.now().UTC().Format(time.RFC3339),
			Phase:     StageSynthesis,
		},
	}
	if err := s.store.Write(runID, ArtifactUltraStatus, st); err != nil {
		return nil, &ArtifactError{AtStage: StageSynthesis, Name: ArtifactUltraStatus, Err: err}
	}
	return rec, nil
}
