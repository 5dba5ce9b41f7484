package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/fieldjoshua/UltrAI-JFF-sub000/internal/gateway"
)

// outcome scripts one gateway call for a model: either a text or an error.
type outcome struct {
	text string
	ms   int64
	err  error
}

// fakeGateway replays scripted outcomes per model. Outcomes are consumed in
// order; the last one repeats. Unscripted models succeed with a canned draft.
// Safe for concurrent use.
type fakeGateway struct {
	mu       sync.Mutex
	models   []string
	modelErr error
	script   map[string][]outcome
	consumed map[string]int
	calls    map[string]int
}

func newFakeGateway(models ...string) *fakeGateway {
	return &fakeGateway{
		models:   models,
		script:   make(map[string][]outcome),
		consumed: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (f *fakeGateway) on(model string, outcomes ...outcome) {
	f.script[model] = outcomes
}

func (f *fakeGateway) callCount(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[model]
}

func (f *fakeGateway) Call(ctx context.Context, model string, _ []gateway.Message, _ time.Duration) (gateway.Result, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Result{}, err
	}
	f.mu.Lock()
	f.calls[model]++
	outcomes := f.script[model]
	idx := f.consumed[model]
	if idx >= len(outcomes) && len(outcomes) > 0 {
		idx = len(outcomes) - 1
	} else {
		f.consumed[model]++
	}
	f.mu.Unlock()

	if len(outcomes) == 0 {
		return gateway.Result{Text: "draft from " + model, FinishReason: "stop", MS: 10}, nil
	}
	o := outcomes[idx]
	if o.err != nil {
		return gateway.Result{}, o.err
	}
	ms := o.ms
	if ms == 0 {
		ms = 10
	}
	return gateway.Result{Text: o.text, FinishReason: "stop", MS: ms}, nil
}

func (f *fakeGateway) ListModels(context.Context) ([]string, error) {
	if f.modelErr != nil {
		return nil, f.modelErr
	}
	return f.models, nil
}

func rateLimited() error {
	return &gateway.RateLimitedError{}
}

func midStreamFor(model string) error {
	return &gateway.MidStreamError{ModelID: model, Message: "finish_reason=error"}
}

func timeoutFor(model string) error {
	return &gateway.TimeoutError{ModelID: model, Budget: 15 * time.Second}
}
