// Package service runs concept validation against candidate databases: one
// connection and one transaction per candidate, with outcomes recorded in the
// run ledger.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ambigdb/ambigdb/internal/connector"
	"github.com/ambigdb/ambigdb/internal/failure"
	"github.com/ambigdb/ambigdb/internal/model"
	"github.com/ambigdb/ambigdb/internal/query"
	"github.com/ambigdb/ambigdb/internal/resolver"
	"github.com/ambigdb/ambigdb/internal/schema"
)

// Ledger records finished runs.
type Ledger interface {
	CreateRun(ctx context.Context, run *model.Run) error
}

// Options configures a Validator.
type Options struct {
	MinEntityRows    int
	MinComponentRows int
	// MinTableColumns rejects schemas with narrower tables; zero disables.
	MinTableColumns int
	// Workers bounds ValidateBatch parallelism.
	Workers int
	// Seed makes value selection reproducible per candidate; zero seeds from
	// the clock.
	Seed    uint64
	Verbose bool
}

// Attempt is the caller's retry bookkeeping for one candidate. Index counts
// from 1; a zero Budget means unbounded.
type Attempt struct {
	Index  int `json:"index"`
	Budget int `json:"budget"`
}

// Exhausted reports whether no further attempt is allowed after this one.
func (a Attempt) Exhausted() bool {
	return a.Budget > 0 && a.Index >= a.Budget
}

// Request names one candidate database and the concept to validate in it.
type Request struct {
	DBID    string            `json:"db_id"`
	Driver  string            `json:"driver,omitempty"`
	DSN     string            `json:"dsn"`
	Schema  string            `json:"schema,omitempty"`
	Spec    model.ConceptSpec `json:"spec"`
	Attempt Attempt           `json:"attempt"`
	// DryRun rolls the transaction back even on success, leaving the
	// candidate unrepaired.
	DryRun bool `json:"dry_run,omitempty"`
}

// Outcome is the result of validating one candidate. Exactly one of Binding
// and Error is set.
type Outcome struct {
	RunID         string              `json:"run_id"`
	DBID          string              `json:"db_id"`
	Configuration model.Configuration `json:"configuration"`
	Accepted      bool                `json:"accepted"`
	Binding       model.Binding       `json:"binding,omitempty"`
	Statements    []string            `json:"statements"`
	FailureKind   failure.Kind        `json:"failure_kind,omitempty"`
	FailureRole   string              `json:"failure_role,omitempty"`
	Error         string              `json:"error,omitempty"`
	Suggestions   []string            `json:"suggestions,omitempty"`
	NextAction    failure.Action      `json:"next_action"`
	Attempt       Attempt             `json:"attempt"`
	Drift         *schema.DriftReport `json:"drift,omitempty"`
	Committed     bool                `json:"committed"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    time.Time           `json:"finished_at"`

	err error
}

// Err returns the validation error behind a rejected outcome.
func (o *Outcome) Err() error { return o.err }

// Run converts the outcome to its ledger record.
func (o *Outcome) Run(driver string) (*model.Run, error) {
	run := &model.Run{
		ID:            o.RunID,
		DBID:          o.DBID,
		Driver:        driver,
		Configuration: o.Configuration,
		Accepted:      o.Accepted,
		FailureKind:   string(o.FailureKind),
		FailureRole:   o.FailureRole,
		NextAction:    string(o.NextAction),
		Error:         o.Error,
		Statements:    o.Statements,
		AttemptIndex:  o.Attempt.Index,
		AttemptBudget: o.Attempt.Budget,
		StartedAt:     o.StartedAt,
		FinishedAt:    o.FinishedAt,
	}
	if o.Binding != nil {
		raw, err := json.Marshal(o.Binding)
		if err != nil {
			return nil, fmt.Errorf("encode binding: %w", err)
		}
		run.Binding = raw
	}
	return run, nil
}

// Validator validates concepts against candidate databases opened through a
// connector registry.
type Validator struct {
	registry *connector.Registry
	ledger   Ledger
	opts     Options
	logger   *slog.Logger
}

// NewValidator creates a Validator. ledger may be nil to skip recording.
func NewValidator(registry *connector.Registry, ledger Ledger, opts Options, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Validator{registry: registry, ledger: ledger, opts: opts, logger: logger}
}

// Validate runs one candidate to completion. Validation failures are
// reported in the outcome, never as an error.
func (v *Validator) Validate(ctx context.Context, req Request) *Outcome {
	out := &Outcome{
		RunID:         newRunID(),
		DBID:          req.DBID,
		Configuration: req.Spec.Configuration,
		Statements:    []string{},
		Attempt:       req.Attempt,
		StartedAt:     time.Now().UTC(),
	}
	logger := v.logger.With("run_id", out.RunID, "db_id", req.DBID, "configuration", req.Spec.Configuration)

	err := v.validate(ctx, req, out, logger)
	out.FinishedAt = time.Now().UTC()
	out.NextAction = failure.NextAction(err)
	if err != nil {
		out.err = err
		out.Binding = nil
		out.Statements = []string{}
		out.FailureKind = failure.KindOf(err)
		out.FailureRole = failure.RoleOf(err)
		out.Error = err.Error()
		out.Suggestions = failure.SuggestionsOf(err)
		if req.Attempt.Exhausted() && out.NextAction != failure.ActionDiscard {
			out.NextAction = failure.ActionDiscard
		}
		logger.Info("candidate rejected",
			"kind", out.FailureKind,
			"next_action", out.NextAction,
			"error", err,
		)
	} else {
		out.Accepted = true
		logger.Info("candidate accepted",
			"statements", len(out.Statements),
			"committed", out.Committed,
			"duration_ms", out.FinishedAt.Sub(out.StartedAt).Milliseconds(),
		)
	}

	v.record(ctx, req, out, logger)
	return out
}

func (v *Validator) validate(ctx context.Context, req Request, out *Outcome, logger *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.DBID == "" {
		return errors.New("db_id is required")
	}
	if err := req.Spec.Validate(); err != nil {
		return fmt.Errorf("invalid concept: %w", err)
	}

	conn, err := v.registry.Open(connector.ConnectionConfig{
		Driver:     req.Driver,
		DSN:        req.DSN,
		SchemaName: req.Schema,
	})
	if err != nil {
		return failure.Introspection(err, "open candidate %s", req.DBID)
	}
	defer conn.Disconnect()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return failure.Introspection(err, "begin transaction on %s", req.DBID)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	desc, err := schema.Introspect(ctx, conn, tx, req.DBID, logger)
	if err != nil {
		return err
	}
	if err := query.CountColumns(desc, v.opts.MinTableColumns); err != nil {
		return err
	}

	r := resolver.New(tx, desc, conn, resolver.Options{
		MinEntityRows:    v.opts.MinEntityRows,
		MinComponentRows: v.opts.MinComponentRows,
		Rand:             resolver.NewRand(candidateSeed(v.opts.Seed, req.DBID)),
		Verbose:          v.opts.Verbose,
	}, logger)

	res, err := r.Resolve(ctx, req.Spec)
	if err != nil {
		return err
	}

	if len(res.Statements) > 0 {
		after, err := schema.Introspect(ctx, conn, tx, req.DBID, logger)
		if err != nil {
			return err
		}
		if drift := schema.Diff(desc, after); drift.HasDrift {
			out.Drift = &drift
			return fmt.Errorf("repair changed the schema of %s: %d differences", req.DBID, len(drift.Items))
		}
	}

	if !req.DryRun {
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", req.DBID, err)
		}
		committed = true
		out.Committed = true
	}
	out.Binding = res.Binding
	out.Statements = res.Statements
	return nil
}

// ValidateBatch validates reqs with at most Options.Workers candidates in
// flight. Outcomes are returned in request order. Cancellation is checked
// when a candidate starts; a running candidate finishes.
func (v *Validator) ValidateBatch(ctx context.Context, reqs []Request) []*Outcome {
	outcomes := make([]*Outcome, len(reqs))

	var g errgroup.Group
	g.SetLimit(v.opts.Workers)
	for i, req := range reqs {
		g.Go(func() error {
			outcomes[i] = v.Validate(ctx, req)
			return nil
		})
	}
	g.Wait()

	accepted := 0
	for _, o := range outcomes {
		if o.Accepted {
			accepted++
		}
	}
	v.logger.Info("batch complete", "candidates", len(reqs), "accepted", accepted, "workers", v.opts.Workers)
	return outcomes
}

func (v *Validator) record(ctx context.Context, req Request, out *Outcome, logger *slog.Logger) {
	if v.ledger == nil {
		return
	}
	run, err := out.Run(req.Driver)
	if err == nil {
		// Record even when the validation context was canceled.
		err = v.ledger.CreateRun(context.WithoutCancel(ctx), run)
	}
	if err != nil {
		logger.Warn("failed to record run", "error", err)
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// candidateSeed derives a per-candidate seed so batch results do not depend
// on scheduling order.
func candidateSeed(seed uint64, dbID string) uint64 {
	if seed == 0 {
		return 0
	}
	h := fnv.New64a()
	h.Write([]byte(dbID))
	return seed ^ h.Sum64()
}
