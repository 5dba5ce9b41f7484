package orchestrator

import (
	"fmt"
	"sync"
	"time"
)

// Step statuses.
const (
	StepPending    = "PENDING"
	StepInProgress = "IN_PROGRESS"
	StepCompleted  = "COMPLETED"
	StepFailed     = "FAILED"
)

// Step is one row of the run's progress table.
type Step struct {
	Text   string `json:"text"`
	Status string `json:"status"`
	Time   string `json:"time,omitempty"`
}

var stepRank = map[string]int{
	StepPending:    0,
	StepInProgress: 1,
	StepCompleted:  2,
	StepFailed:     2,
}

// Progress is the in-memory ordered step table for one run. Base steps are
// seeded at construction; per-slot steps are appended once activation fixes
// the slot list. Status transitions are monotonic.
type Progress struct {
	mu    sync.Mutex
	steps []Step
	index map[string]int
}

// NewProgress seeds the stage steps every run shares.
func NewProgress() *Progress {
	p := &Progress{index: make(map[string]int)}
	for _, label := range []string{
		"System initialization",
		"Readiness check",
		"Input validation",
		"Activation plan",
	} {
		p.append(label)
	}
	return p
}

func (p *Progress) append(label string) {
	if _, exists := p.index[label]; exists {
		return
	}
	p.index[label] = len(p.steps)
	p.steps = append(p.steps, Step{Text: label, Status: StepPending})
}

// AddSlotSteps appends the per-model round steps plus the tail stages, in
// execution order.
func (p *Progress) AddSlotSteps(models []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range models {
		p.append("R1 <- " + m)
	}
	for _, m := range models {
		p.append("R2 <- " + m)
	}
	p.append("R3 synthesis")
	p.append("Add-ons")
	p.append("Statistics")
	p.append("Delivery audit")
}

// Begin marks a step IN_PROGRESS.
func (p *Progress) Begin(label string) { p.set(label, StepInProgress, 0) }

// Complete marks a step COMPLETED with its duration.
func (p *Progress) Complete(label string, d time.Duration) { p.set(label, StepCompleted, d) }

// Fail marks a step FAILED with its duration.
func (p *Progress) Fail(label string, d time.Duration) { p.set(label, StepFailed, d) }

func (p *Progress) set(label, status string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, ok := p.index[label]
	if !ok {
		return
	}
	cur := &p.steps[idx]
	if stepRank[status] < stepRank[cur.Status] {
		return
	}
	if stepRank[cur.Status] == 2 {
		// Terminal step states never change.
		return
	}
	cur.Status = status
	if d > 0 {
		cur.Time = formatDuration(d)
	}
}

// Snapshot returns a copy of the step table and the overall percentage:
// terminal steps (COMPLETED or FAILED) over total.
func (p *Progress) Snapshot() ([]Step, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	done := 0
	for _, s := range out {
		if stepRank[s.Status] == 2 {
			done++
		}
	}
	if len(out) == 0 {
		return out, 0
	}
	return out, done * 100 / len(out)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
