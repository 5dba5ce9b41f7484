package orchestrator

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/artifact"
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/gateway"
)

// Per-slot chain budgets.
const (
	PrimaryAttempts = 2
	PrimaryTimeout  = 15 * time.Second
)

// Round status values.
const (
	RoundCompleted = "COMPLETED"
	RoundDegraded  = "DEGRADED"
)

// RoundConfig describes one scheduler invocation.
type RoundConfig struct {
	Tag         string // record round tag: "INITIAL" or "META"
	Phase       string // stage name for metadata and errors
	RecordsName string // e.g. 03_initial.json
	StatusName  string // e.g. 03_initial_status.json
	Slots       []Slot
	Concurrency int
	Budget      time.Duration // per-attempt budget; zero means PrimaryTimeout
	LostSlots   int           // slots already lost before this round started
}

// SlotObserver is notified as each slot finishes, in completion order.
type SlotObserver func(slotIdx int, rec ModelRecord)

// Scheduler fans R1/R2 out across a bounded worker pool and runs the
// primary-then-fallback chain for every executable slot.
type Scheduler struct {
	gw      gateway.Caller
	store   *artifact.Store
	log     *log.Logger
	backoff gateway.BackoffConfig
	sleep   func(context.Context, time.Duration) error
	now     func() time.Time
}

// NewScheduler wires a scheduler over the gateway and artifact store.
func NewScheduler(gw gateway.Caller, store *artifact.Store, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		gw:      gw,
		store:   store,
		log:     logger,
		backoff: gateway.BackoffConfig{InitialDelayMS: 200, BackoffFactor: 2.0, MaxDelayMS: 2000, Jitter: true},
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

// RunRound executes every slot concurrently, persists the record and status
// artifacts, and fails the round when the non-error count drops below quorum.
// Records are ordered by slot index regardless of completion order.
func (s *Scheduler) RunRound(ctx context.Context, runID string, cfg RoundConfig, build PromptBuilder, observe SlotObserver) ([]ModelRecord, *RoundStatusArtifact, error) {
	budget := cfg.Budget
	if budget <= 0 {
		budget = PrimaryTimeout
	}
	workers := cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(cfg.Slots) {
		workers = len(cfg.Slots)
	}

	records := make([]ModelRecord, len(cfg.Slots))
	jobs := make(chan int)
	var wg sync.WaitGroup
	var obsMu sync.Mutex

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				rec := s.runSlot(ctx, runID, cfg.Tag, cfg.Slots[idx], build, budget)
				records[idx] = rec
				if observe != nil {
					obsMu.Lock()
					observe(idx, rec)
					obsMu.Unlock()
				}
			}
		}()
	}
	for idx := range cfg.Slots {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, &CancelledError{AtStage: cfg.Phase}
	}

	if err := s.store.Write(runID, cfg.RecordsName, records); err != nil {
		return nil, nil, &ArtifactError{AtStage: cfg.Phase, Name: cfg.RecordsName, Err: err}
	}

	nonError := 0
	var failed, succeeded []string
	for _, rec := range records {
		if rec.Error {
			failed = append(failed, rec.FailedModels...)
			continue
		}
		nonError++
		succeeded = append(succeeded, rec.Model)
		failed = append(failed, rec.FailedModels...)
	}
	failed = dedupSorted(failed)

	if nonError < Quorum {
		if cfg.Tag == "META" {
			return records, nil, &MetaRoundError{NonError: nonError, Quorum: Quorum}
		}
		return records, nil, &InitialRoundError{NonError: nonError, Quorum: Quorum}
	}

	// DEGRADED covers error records and slots lost before the round started
	// (META runs without the models that failed INITIAL). A slot rescued by
	// its fallback still counts as completed.
	status := RoundCompleted
	if nonError < len(records)+cfg.LostSlots {
		status = RoundDegraded
	}
	st := &RoundStatusArtifact{
		Status: status,
		Round:  cfg.Tag,
		Details: RoundDetails{
			Count:       len(records),
			Concurrency: cfg.Concurrency,
			TimingBudgets: map[string]any{
				"per_attempt_s":     int(budget / time.Second),
				"primary_attempts":  PrimaryAttempts,
				"fallback_attempts": 1,
			},
			Models:       succeeded,
			FailedModels: failed,
		},
		Metadata: ArtifactMetadata{
			RunID:     runID,
			Timestamp: s.now().UTC().Format(time.RFC3339),
			Phase:     cfg.Phase,
		},
	}
	if err := s.store.Write(runID, cfg.StatusName, st); err != nil {
		return nil, nil, &ArtifactError{AtStage: cfg.Phase, Name: cfg.StatusName, Err: err}
	}
	return records, st, nil
}

// runSlot performs the primary-then-fallback chain for one slot. A 429 on the
// primary skips its remaining attempts and jumps straight to the fallback.
func (s *Scheduler) runSlot(ctx context.Context, runID, tag string, slot Slot, build PromptBuilder, budget time.Duration) ModelRecord {
	var failed []string

	for attempt := 1; attempt <= PrimaryAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		res, err := s.gw.Call(ctx, slot.Primary, build(slot.Primary), budget)
		if err == nil {
			return ModelRecord{Round: tag, Model: slot.Primary, Text: res.Text, MS: res.MS, FailedModels: failed}
		}
		s.log.Printf("[scheduler] run=%s round=%s model=%s attempt=%d: %v", runID, tag, slot.Primary, attempt, err)
		if gateway.IsRateLimited(err) {
			// Rate limit fast-fail: do not burn the remaining primary attempts.
			break
		}
		if attempt < PrimaryAttempts {
			d := gateway.DelayForAttempt(attempt, s.backoff, runID+":"+slot.Primary)
			if s.sleep(ctx, d) != nil {
				break
			}
		}
	}
	failed = append(failed, slot.Primary)

	if slot.Fallback != "" && slot.Fallback != slot.Primary && ctx.Err() == nil {
		res, err := s.gw.Call(ctx, slot.Fallback, build(slot.Fallback), budget)
		if err == nil {
			return ModelRecord{Round: tag, Model: slot.Fallback, Text: res.Text, MS: res.MS, FailedModels: failed}
		}
		s.log.Printf("[scheduler] run=%s round=%s fallback=%s: %v", runID, tag, slot.Fallback, err)
		failed = append(failed, slot.Fallback)
	}
	return ModelRecord{Round: tag, Model: slot.Primary, Error: true, FailedModels: dedupSorted(failed)}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func dedupSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// MetaSlots derives the R2 slot list from R1 results: one self-backed slot
// per model that produced a non-error INITIAL record.
func MetaSlots(initialRecords []ModelRecord) []Slot {
	var slots []Slot
	for _, rec := range initialRecords {
		if rec.Error {
			continue
		}
		slots = append(slots, Slot{Primary: rec.Model, Fallback: rec.Model, Reason: ReasonActive})
	}
	return slots
}
