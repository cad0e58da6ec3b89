package gemini

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nanom-ai/nanom/internal/telemetry"
)

// Outcome is the tagged result of Generate. Exactly one variant is
// populated: a successful reply (Text plus the candidate that produced it)
// or a failure message. Generate never returns a Go error; callers render
// Err to the user when OK is false.
type Outcome struct {
	Text string
	Used Candidate
	Err  string
}

func (o Outcome) OK() bool { return o.Err == "" }

// Orchestrator owns candidate selection: the sticky last-known-good
// candidate, the fixed priority list, and dynamic discovery when the fixed
// list is exhausted. One instance is shared by all callers of Generate; the
// sticky slot is the only mutable state and is guarded so overlapping calls
// cannot tear it.
type Orchestrator struct {
	invoker *Invoker
	fixed   []Candidate
	logger  *zap.Logger
	metrics *telemetry.Metrics

	mu     sync.Mutex
	sticky *Candidate
}

func NewOrchestrator(invoker *Invoker, logger *zap.Logger, metrics *telemetry.Metrics) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		invoker: invoker,
		fixed:   DefaultCandidates(),
		logger:  logger,
		metrics: metrics,
	}
}

// Generate tries candidates strictly in order until one produces text:
// sticky candidate first, then the fixed list minus duplicates of the
// sticky one, then models discovered from the provider listing. The first
// success overwrites the sticky slot. On total exhaustion the outcome
// carries the most recent error message observed.
func (o *Orchestrator) Generate(ctx context.Context, history []Turn, prompt string) Outcome {
	log := o.logger.With(zap.String("generation_id", uuid.NewString()))

	filtered := filterHistory(history)
	order := o.trialOrder()

	var lastErr string
	tried := make(map[string]bool, len(order))

	for i, cand := range order {
		tried[cand.Model] = true
		text, err := o.invoker.Generate(ctx, cand, filtered, prompt)
		o.metrics.RecordAttempt(ctx, cand.String(), err == nil)
		if err == nil {
			if i > 0 {
				o.metrics.RecordFallback(ctx)
			}
			o.setSticky(cand)
			log.Debug("generation succeeded", zap.String("candidate", cand.String()))
			return Outcome{Text: text, Used: cand}
		}
		lastErr = err.Error()
		log.Debug("candidate failed", zap.String("candidate", cand.String()), zap.String("error", lastErr))
	}

	log.Info("fixed candidates exhausted, discovering models")
	names, err := o.invoker.ListModels(ctx)
	o.metrics.RecordDiscovery(ctx, err == nil)
	if err != nil {
		// Discovery failing is not itself an attempt; the failure surfaced
		// to the caller is the last candidate error.
		log.Warn("model discovery failed", zap.Error(err))
	}

	for _, name := range names {
		if tried[name] {
			continue
		}
		cand := Candidate{Model: name, APIVersion: "v1beta"}
		text, err := o.invoker.Generate(ctx, cand, filtered, prompt)
		o.metrics.RecordAttempt(ctx, cand.String(), err == nil)
		if err == nil {
			o.setSticky(cand)
			log.Debug("discovered candidate succeeded", zap.String("candidate", cand.String()))
			return Outcome{Text: text, Used: cand}
		}
		lastErr = err.Error()
	}

	log.Warn("all candidates exhausted", zap.String("last_error", lastErr))
	return Outcome{Err: lastErr}
}

// trialOrder snapshots the sticky candidate and builds the ordered list to
// attempt. Duplicates of the sticky candidate are dropped from the fixed
// list so a failed pair is not dialed twice.
func (o *Orchestrator) trialOrder() []Candidate {
	o.mu.Lock()
	sticky := o.sticky
	o.mu.Unlock()

	order := make([]Candidate, 0, len(o.fixed)+1)
	if sticky != nil {
		order = append(order, *sticky)
	}
	for _, c := range o.fixed {
		if sticky != nil && c == *sticky {
			continue
		}
		order = append(order, c)
	}
	return order
}

func (o *Orchestrator) setSticky(c Candidate) {
	o.mu.Lock()
	o.sticky = &c
	o.mu.Unlock()
}

// Sticky returns the current sticky candidate, if any.
func (o *Orchestrator) Sticky() (Candidate, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sticky == nil {
		return Candidate{}, false
	}
	return *o.sticky, true
}

// filterHistory drops malformed turns (no text after trimming) before the
// transcript is sent upstream.
func filterHistory(history []Turn) []Turn {
	filtered := make([]Turn, 0, len(history))
	for _, t := range history {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered
}
