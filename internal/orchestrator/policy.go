package orchestrator

import "time"

// Adaptive resource policies. All three are pure arithmetic over enumerated
// bands so they can be property-tested exhaustively.

// ConcurrencyLimit sizes the round semaphore from the prompt context length
// (characters) and the attachment count. Attachments shrink the budget
// aggressively since each one multiplies upstream work.
func ConcurrencyLimit(contextLen, attachments int) int {
	var base float64
	switch {
	case contextLen < 200:
		base = 50
	case contextLen <= 1000:
		base = 30
	case contextLen <= 5000:
		base = 15
	default:
		base = 5
	}

	switch {
	case attachments >= 4:
		base *= 0.1
	case attachments >= 2:
		base *= 0.25
	case attachments == 1:
		base *= 0.5
	}

	c := int(base)
	if c < 1 {
		c = 1
	}
	if c > 50 {
		c = 50
	}
	return c
}

// EffectiveConcurrency caps the semaphore at the slot count so small
// cocktails never over-provision workers.
func EffectiveConcurrency(limit, slots int) int {
	if slots < limit {
		return slots
	}
	return limit
}

// SynthesisTimeout computes the R3 call budget from the combined peer
// context length and the META draft count. Result is always within
// [60s, 300s].
func SynthesisTimeout(contextLen, numDrafts int) time.Duration {
	var secs int
	switch {
	case contextLen < 1000:
		secs = 60
	case contextLen <= 3000:
		secs = 90
	case contextLen <= 5000:
		secs = 120
	default:
		secs = 180
	}
	// The 1.2 draft-count multiplier stays in integer seconds (x6/5) so the
	// persisted timeout_s is exact.
	if numDrafts >= 4 {
		secs = secs * 6 / 5
	}
	if secs < 60 {
		secs = 60
	}
	if secs > 300 {
		secs = 300
	}
	return time.Duration(secs) * time.Second
}

// MaxCharsPerDraft pairs a truncation width with the synthesis timeout:
// longer budgets can afford more context per draft.
func MaxCharsPerDraft(timeout time.Duration) int {
	switch {
	case timeout >= 180*time.Second:
		return 2000
	case timeout >= 120*time.Second:
		return 1200
	case timeout >= 90*time.Second:
		return 800
	default:
		return 500
	}
}

// Truncate clips s to at most max bytes, the same unit the policies use to
// measure context length.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
