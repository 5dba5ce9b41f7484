package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/artifact"
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/cocktail"
	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/gateway"
)

// Run phases, in transition order.
const (
	PhaseCreated   = "CREATED"
	PhaseReadyOK   = "READY_OK"
	PhaseInputsOK  = "INPUTS_OK"
	PhaseActivated = "ACTIVATED"
	PhaseR1Done    = "R1_DONE"
	PhaseR2Done    = "R2_DONE"
	PhaseR3Done    = "R3_DONE"
	PhaseStatsDone = "STATS_DONE"
	PhaseDelivered = "DELIVERED"
)

// Options configures a Coordinator.
type Options struct {
	Gateway gateway.Caller
	Store   *artifact.Store
	Catalog *cocktail.Catalog
	Logger  *log.Logger
}

func (o *Options) applyDefaults() error {
	if o.Catalog == nil {
		o.Catalog = cocktail.Default()
	}
	if o.Logger == nil {
		o.Logger = log.New(os.Stderr, "[ultrai] ", log.LstdFlags)
	}
	if o.Store == nil {
		st, err := artifact.NewStore("runs")
		if err != nil {
			return err
		}
		o.Store = st
	}
	return nil
}

// Coordinator owns the run state machine: it sequences the stages, mirrors
// progress into status.json after every transition, and converts stage
// errors into terminal FAILED states.
type Coordinator struct {
	gw      gateway.Caller
	store   *artifact.Store
	catalog *cocktail.Catalog
	log     *log.Logger
	sched   *Scheduler
	synth   *Synthesizer
	auditor *Auditor
	now     func() time.Time
}

// NewCoordinator builds the engine and compiles the delivery schemas.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	auditor, err := NewAuditor(opts.Store)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		gw:      opts.Gateway,
		store:   opts.Store,
		catalog: opts.Catalog,
		log:     opts.Logger,
		sched:   NewScheduler(opts.Gateway, opts.Store, opts.Logger),
		synth:   NewSynthesizer(opts.Gateway, opts.Store),
		auditor: auditor,
		now:     time.Now,
	}, nil
}

// Store exposes the artifact store backing this coordinator.
func (c *Coordinator) Store() *artifact.Store { return c.store }

// Catalog exposes the cocktail catalog backing this coordinator.
func (c *Coordinator) Catalog() *cocktail.Catalog { return c.catalog }

// NewRunID generates a CLI-style timestamp run ID, unique against the store.
func (c *Coordinator) NewRunID() string {
	return c.uniqueID(c.now().UTC().Format("20060102_150405"))
}

// NewAPIRunID generates an API-style run ID carrying the cocktail name.
func (c *Coordinator) NewAPIRunID(cocktailName string) string {
	base := "api_" + strings.ToLower(strings.TrimSpace(cocktailName)) + "_" + c.now().UTC().Format("20060102_150405")
	return c.uniqueID(base)
}

// uniqueID appends a ULID suffix when two runs land on the same timestamp.
func (c *Coordinator) uniqueID(base string) string {
	dir, err := c.store.BuildDir(base)
	if err != nil {
		return base
	}
	if _, statErr := os.Stat(dir); statErr == nil {
		return base + "_" + ulid.Make().String()
	}
	return base
}

// Run tracks one in-flight execution.
type Run struct {
	ID       string
	progress *Progress
	statusMu sync.Mutex
	phase    string
}

// Prepare creates the run directory, seeds the progress table, and commits
// the initial status.json. Callers block on this before Execute starts so
// status polling is well-formed immediately.
func (c *Coordinator) Prepare(runID string) (*Run, error) {
	if _, err := c.store.EnsureDir(runID); err != nil {
		return nil, err
	}
	run := &Run{ID: runID, progress: NewProgress(), phase: PhaseCreated}
	if err := c.writeStatus(run, false, ""); err != nil {
		return nil, err
	}
	return run, nil
}

// Execute drives a prepared run to a terminal state. The returned error is
// nil only when the run reached DELIVERED; the terminal status.json has been
// written either way.
func (c *Coordinator) Execute(ctx context.Context, run *Run, req RunRequest) error {
	err := c.execute(ctx, run, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = &CancelledError{AtStage: run.phase}
		}
		run.statusMu.Lock()
		run.phase = FailedState(err)
		run.statusMu.Unlock()
		c.log.Printf("[coordinator] run=%s terminal %s: %v", run.ID, run.phase, err)
		if werr := c.writeStatus(run, true, err.Error()); werr != nil {
			c.log.Printf("[coordinator] run=%s status write failed: %v", run.ID, werr)
		}
		return err
	}
	return nil
}

func (c *Coordinator) execute(ctx context.Context, run *Run, req RunRequest) error {
	p := run.progress
	start := c.now()
	p.Begin("System initialization")
	p.Complete("System initialization", c.now().Sub(start))

	// Readiness.
	p.Begin("Readiness check")
	stageStart := c.now()
	ready, err := ProbeReadiness(ctx, c.gw, c.store, run.ID, c.now())
	if err != nil {
		p.Fail("Readiness check", c.now().Sub(stageStart))
		return err
	}
	if err := c.verify(StageReadiness, run.ID, ArtifactReady); err != nil {
		p.Fail("Readiness check", c.now().Sub(stageStart))
		return err
	}
	p.Complete("Readiness check", c.now().Sub(stageStart))
	c.transition(run, PhaseReadyOK)

	// Inputs.
	p.Begin("Input validation")
	stageStart = c.now()
	inputs, err := ValidateInputs(req, c.catalog, c.store, run.ID)
	if err != nil {
		p.Fail("Input validation", c.now().Sub(stageStart))
		return err
	}
	if err := c.verify(StageInputs, run.ID, ArtifactInputs); err != nil {
		p.Fail("Input validation", c.now().Sub(stageStart))
		return err
	}
	p.Complete("Input validation", c.now().Sub(stageStart))
	c.transition(run, PhaseInputsOK)

	// Activation.
	p.Begin("Activation plan")
	stageStart = c.now()
	roster, _ := c.catalog.Get(inputs.Cocktail)
	slots, plan, err := PlanActivation(ready, roster, c.store, run.ID)
	if err != nil {
		p.Fail("Activation plan", c.now().Sub(stageStart))
		return err
	}
	if err := c.verify(StageActivation, run.ID, ArtifactActivate); err != nil {
		p.Fail("Activation plan", c.now().Sub(stageStart))
		return err
	}
	p.AddSlotSteps(plan.ActiveList)
	p.Complete("Activation plan", c.now().Sub(stageStart))
	c.transition(run, PhaseActivated)

	// R1.
	conc := EffectiveConcurrency(ConcurrencyLimit(len(inputs.Query), 0), len(slots))
	initial, _, err := c.sched.RunRound(ctx, run.ID, RoundConfig{
		Tag:         "INITIAL",
		Phase:       StageInitial,
		RecordsName: ArtifactInitial,
		StatusName:  ArtifactInitialStatus,
		Slots:       slots,
		Concurrency: conc,
	}, InitialPrompt(inputs.Query), c.slotObserver(run, "R1 <- ", plan.ActiveList))
	if err != nil {
		return err
	}
	if err := c.verify(StageInitial, run.ID, ArtifactInitial, ArtifactInitialStatus); err != nil {
		return err
	}
	c.transition(run, PhaseR1Done)

	// R2 runs only the models that produced a non-error INITIAL record.
	peers := PeersBlock(initial)
	var metaSlots []Slot
	var metaLabels []string
	for i, rec := range initial {
		if rec.Error {
			p.Fail("R2 <- "+plan.ActiveList[i], 0)
			continue
		}
		metaSlots = append(metaSlots, Slot{Primary: rec.Model, Fallback: rec.Model, Reason: ReasonActive})
		metaLabels = append(metaLabels, plan.ActiveList[i])
	}
	metaCtxLen := len(inputs.Query) + len(peers)
	conc = EffectiveConcurrency(ConcurrencyLimit(metaCtxLen, 0), len(metaSlots))
	meta, _, err := c.sched.RunRound(ctx, run.ID, RoundConfig{
		Tag:         "META",
		Phase:       StageMeta,
		RecordsName: ArtifactMeta,
		StatusName:  ArtifactMetaStatus,
		Slots:       metaSlots,
		Concurrency: conc,
		LostSlots:   len(slots) - len(metaSlots),
	}, MetaPrompt(inputs.Query, peers), c.slotObserver(run, "R2 <- ", metaLabels))
	if err != nil {
		return err
	}
	if err := c.verify(StageMeta, run.ID, ArtifactMeta, ArtifactMetaStatus); err != nil {
		return err
	}
	c.transition(run, PhaseR2Done)

	// R3.
	p.Begin("R3 synthesis")
	stageStart = c.now()
	ultra, err := c.synth.Synthesize(ctx, run.ID, inputs.Query, meta, len(slots))
	if err != nil {
		p.Fail("R3 synthesis", c.now().Sub(stageStart))
		return err
	}
	if err := c.verify(StageSynthesis, run.ID, ArtifactUltra, ArtifactUltraStatus); err != nil {
		p.Fail("R3 synthesis", c.now().Sub(stageStart))
		return err
	}
	p.Complete("R3 synthesis", c.now().Sub(stageStart))
	c.transition(run, PhaseR3Done)

	// Add-ons (all inactive; republishes the synthesis).
	p.Begin("Add-ons")
	stageStart = c.now()
	if _, err := ApplyAddons(c.store, run.ID, ultra, c.now()); err != nil {
		p.Fail("Add-ons", c.now().Sub(stageStart))
		return err
	}
	p.Complete("Add-ons", c.now().Sub(stageStart))

	// Stats.
	p.Begin("Statistics")
	stageStart = c.now()
	if _, err := ComputeStats(c.store, run.ID); err != nil {
		p.Fail("Statistics", c.now().Sub(stageStart))
		return err
	}
	p.Complete("Statistics", c.now().Sub(stageStart))
	c.transition(run, PhaseStatsDone)

	// Delivery.
	p.Begin("Delivery audit")
	stageStart = c.now()
	if _, err := c.auditor.Audit(run.ID); err != nil {
		p.Fail("Delivery audit", c.now().Sub(stageStart))
		return err
	}
	p.Complete("Delivery audit", c.now().Sub(stageStart))

	run.statusMu.Lock()
	run.phase = PhaseDelivered
	run.statusMu.Unlock()
	return c.writeStatus(run, true, "")
}

// verify re-reads committed artifacts at a stage boundary; the next stage
// must not start over a missing or unparseable predecessor.
func (c *Coordinator) verify(stage, runID string, names ...string) error {
	for _, name := range names {
		raw, err := c.store.ReadRaw(runID, name)
		if err != nil {
			return &ArtifactError{AtStage: stage, Name: name, Err: err}
		}
		if !json.Valid(raw) {
			return &ArtifactError{AtStage: stage, Name: name, Err: errors.New("artifact does not parse")}
		}
	}
	return nil
}

// slotObserver maps slot completions onto progress steps and refreshes
// status.json after each one.
func (c *Coordinator) slotObserver(run *Run, prefix string, labels []string) SlotObserver {
	return func(idx int, rec ModelRecord) {
		if idx >= len(labels) {
			return
		}
		label := prefix + labels[idx]
		if rec.Error {
			run.progress.Fail(label, time.Duration(rec.MS)*time.Millisecond)
		} else {
			run.progress.Complete(label, time.Duration(rec.MS)*time.Millisecond)
		}
		if err := c.writeStatus(run, false, ""); err != nil {
			c.log.Printf("[coordinator] run=%s status write failed: %v", run.ID, err)
		}
	}
}

// transition advances the phase and commits status.json. Each stage's
// artifact is re-read before the next stage may begin.
func (c *Coordinator) transition(run *Run, phase string) {
	run.statusMu.Lock()
	run.phase = phase
	run.statusMu.Unlock()
	if err := c.writeStatus(run, false, ""); err != nil {
		c.log.Printf("[coordinator] run=%s status write failed: %v", run.ID, err)
	}
}

// writeStatus serializes status.json under the run's mutex so concurrent
// slot observers never interleave writes.
func (c *Coordinator) writeStatus(run *Run, completed bool, errMsg string) error {
	run.statusMu.Lock()
	defer run.statusMu.Unlock()
	steps, pct := run.progress.Snapshot()
	st := StatusFile{
		RunID:        run.ID,
		CurrentPhase: run.phase,
		Completed:    completed,
		Progress:     pct,
		Steps:        steps,
		Error:        errMsg,
	}
	return c.store.Write(run.ID, ArtifactStatus, &st)
}
