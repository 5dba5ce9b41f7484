package orchestrator

import (
	"strings"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/gateway"
)

// PromptBuilder produces the chat messages for one model in a round. The
// scheduler injects these so R1 and R2 share one execution path.
type PromptBuilder func(model string) []gateway.Message

const (
	initialSystem   = "You are in the INITIAL round (R1). Draft your answer independently."
	metaSystem      = "You are in the META revision round (R2)."
	metaInstruction = "Do not assume any response is true. Review your peers' INITIAL drafts below. " +
		"Revise your answer accordingly. List contradictions you resolved and what changed."

	// peerDraftLimit bounds each R1 draft quoted into the R2 prompt.
	peerDraftLimit = 500
)

// InitialPrompt builds the R1 message set: just the user query under the
// independent-draft system prompt.
func InitialPrompt(query string) PromptBuilder {
	return func(string) []gateway.Message {
		return []gateway.Message{
			{Role: "system", Content: initialSystem},
			{Role: "user", Content: query},
		}
	}
}

// PeersBlock renders the non-error R1 records as the peer-review context for
// R2. Failed models never appear as peers.
func PeersBlock(initialRecords []ModelRecord) string {
	var b strings.Builder
	for _, rec := range initialRecords {
		if rec.Error {
			continue
		}
		b.WriteString("- ")
		b.WriteString(rec.Model)
		b.WriteString(": ")
		b.WriteString(Truncate(rec.Text, peerDraftLimit))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// MetaPrompt builds the R2 message set: the original query plus every peer's
// INITIAL draft. The block is shared verbatim across models so the round's
// context length is a single number.
func MetaPrompt(query, peersBlock string) PromptBuilder {
	user := query + "\n\n" + metaInstruction + "\n" + peersBlock
	return func(string) []gateway.Message {
		return []gateway.Message{
			{Role: "system", Content: metaSystem},
			{Role: "user", Content: user},
		}
	}
}
