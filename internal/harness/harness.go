package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/tabula/internal/compiler"
	"github.com/roach88/tabula/internal/engine"
	"github.com/roach88/tabula/internal/errs"
	"github.com/roach88/tabula/internal/planfile"
	"github.com/roach88/tabula/internal/schema"
	"github.com/roach88/tabula/internal/session"
	"github.com/roach88/tabula/internal/store"
)

// Harness executes one scenario against a fresh database.
type Harness struct {
	db      *store.Database
	session *session.Session
	tx      *store.Transaction
	clock   *engine.Clock
	logger  *slog.Logger
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	engineOpts []engine.EngineOption
}

// WithLogger sets the logger used by the database, engine and session.
// Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEngineOptions passes options to the session's engine.
func WithEngineOptions(opts ...engine.EngineOption) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

type fixedID string

func (f fixedID) Generate() string { return string(f) }

// Run executes a scenario and returns the result. An error is returned
// only when the scenario cannot run at all (bad schema or seed);
// failed expectations and assertions are reported in the result.
//
// Execution flow:
//  1. Compile the CUE schema and create an empty database
//  2. Add and save the seed rows
//  3. Execute the steps in order, checking each expectation
//  4. Evaluate the assertions against the trace and final state
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	model, err := compiler.LoadSchema(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	db, err := store.NewDatabase(scenario.Name, model, store.WithLogger(o.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	h := &Harness{
		db:     db,
		clock:  engine.NewClock(),
		logger: o.logger.With("scenario", scenario.Name),
	}
	h.session = session.New(db,
		session.WithLogger(o.logger),
		session.WithIDGenerator(fixedID("scenario-"+scenario.Name)),
		session.WithEngineOptions(append([]engine.EngineOption{engine.WithLogger(o.logger)}, o.engineOpts...)...),
	)

	result := NewResult()
	n, err := planfile.ApplySeed(ctx, db, scenario.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to apply seed: %w", err)
	}
	result.AddTrace(TraceEvent{Seq: h.clock.Next(), Op: OpSeed, Changes: n})

	for i := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h.executeStep(ctx, i, &scenario.Steps[i], result)
	}
	if h.tx != nil {
		if err := h.tx.Rollback(); err != nil {
			return nil, err
		}
		result.AddError("transaction left open at end of scenario")
	}

	for _, msg := range EvaluateAssertions(db, result.Trace, scenario.Assertions) {
		result.AddError(msg)
	}
	h.logger.Info("scenario finished", "pass", result.Pass, "steps", len(scenario.Steps), "errors", len(result.Errors))
	return result, nil
}

// outcome is what a step produced, before expectations are checked.
type outcome struct {
	rows    []any
	value   any
	scalar  bool
	changes int
}

func (h *Harness) executeStep(ctx context.Context, i int, st *Step, result *Result) {
	op, _ := st.op()
	ev := TraceEvent{Seq: h.clock.Next(), Op: op}

	out, err := h.perform(ctx, op, st, &ev)
	if err != nil {
		ev.Error = string(errs.CodeOf(err))
		if ev.Error == "" {
			ev.Error = "ERROR"
		}
	} else {
		ev.Rows, ev.Value, ev.Changes = out.rows, out.value, out.changes
	}
	result.AddTrace(ev)

	for _, msg := range checkExpect(st.Expect, out, err) {
		result.AddError(fmt.Sprintf("steps[%d] (%s): %s", i, op, msg))
	}
	h.logger.Debug("step completed", "step", i, "op", op, "error", ev.Error)
}

func (h *Harness) perform(ctx context.Context, op string, st *Step, ev *TraceEvent) (outcome, error) {
	var out outcome
	switch op {
	case OpQuery:
		ev.Entity = st.Query.From
		ev.Query = st.Query.Name
		return h.query(ctx, st)
	case OpAdd:
		ev.Entity = st.Add.Entity
		desc, err := h.descriptor(st.Add.Entity)
		if err != nil {
			return out, err
		}
		obj, err := planfile.Instantiate(desc, st.Add.Row)
		if err != nil {
			return out, err
		}
		return out, h.session.Add(obj)
	case OpUpdate:
		ev.Entity = st.Update.Entity
		obj, desc, err := h.find(st.Update)
		if err != nil {
			return out, err
		}
		if err := planfile.Assign(desc, obj, st.Update.Set); err != nil {
			return out, err
		}
		return out, h.session.Update(obj)
	case OpRemove:
		ev.Entity = st.Remove.Entity
		obj, _, err := h.find(st.Remove)
		if err != nil {
			return out, err
		}
		return out, h.session.Remove(obj)
	case OpSave:
		n, err := h.session.SaveChanges(ctx)
		out.changes = n
		return out, err
	case OpBegin:
		tx, err := h.session.BeginTransaction()
		if err != nil {
			return out, err
		}
		h.tx = tx
		return out, nil
	case OpCommit:
		if h.tx == nil {
			return out, errs.New(errs.TransactionState, "no active transaction")
		}
		n, err := h.tx.Commit()
		h.tx = nil
		out.changes = n
		return out, err
	case OpRollback:
		if h.tx == nil {
			return out, errs.New(errs.TransactionState, "no active transaction")
		}
		err := h.tx.Rollback()
		h.tx = nil
		return out, err
	}
	return out, fmt.Errorf("unknown operation %q", op)
}

func (h *Harness) query(ctx context.Context, st *Step) (outcome, error) {
	var out outcome
	plan, err := st.Query.Build()
	if err != nil {
		return out, err
	}
	if len(st.Params) > 0 {
		if plan, err = plan.WithParams(st.Params); err != nil {
			return out, err
		}
	}
	res, err := h.session.Query(ctx, plan)
	if err != nil {
		return out, err
	}
	model := h.db.Model()
	if res.IsScalar() {
		out.scalar = true
		out.value, err = Render(model, res.Value())
		return out, err
	}
	elems, err := res.Collect()
	if err != nil {
		return out, err
	}
	out.rows, err = RenderAll(model, elems)
	return out, err
}

func (h *Harness) descriptor(entity string) (*schema.Descriptor, error) {
	return h.db.Model().Descriptor(entity)
}

func (h *Harness) find(rs *RowStep) (any, *schema.Descriptor, error) {
	desc, err := h.descriptor(rs.Entity)
	if err != nil {
		return nil, nil, err
	}
	obj, ok, err := h.session.Find(rs.Entity, rs.Key...)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, errs.New(errs.NotFound, "no row with key %v", rs.Key).WithEntity(rs.Entity)
	}
	return obj, desc, nil
}

// checkExpect compares a step's outcome with its expectation.
func checkExpect(e *Expect, out outcome, err error) []string {
	if e == nil {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		return nil
	}
	if e.Error != "" {
		if err == nil {
			return []string{fmt.Sprintf("expected error %s, step succeeded", e.Error)}
		}
		if code := errs.CodeOf(err); string(code) != e.Error {
			return []string{fmt.Sprintf("expected error %s, got %v", e.Error, err)}
		}
		return nil
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	var msgs []string
	if e.Value != nil {
		if !out.scalar {
			msgs = append(msgs, "expected a value, query returned a sequence")
		} else if !matchValue(*e.Value, out.value) {
			msgs = append(msgs, fmt.Sprintf("value: expected %v, got %v", *e.Value, out.value))
		}
	}
	if e.Count != nil && len(out.rows) != *e.Count {
		msgs = append(msgs, fmt.Sprintf("count: expected %d, got %d", *e.Count, len(out.rows)))
	}
	if e.Rows != nil {
		if len(e.Rows) != len(out.rows) {
			msgs = append(msgs, fmt.Sprintf("rows: expected %d, got %d", len(e.Rows), len(out.rows)))
		} else {
			for j := range e.Rows {
				if !matchValue(e.Rows[j], out.rows[j]) {
					msgs = append(msgs, fmt.Sprintf("rows[%d]: expected %v, got %v", j, e.Rows[j], out.rows[j]))
				}
			}
		}
	}
	if e.Changes != nil && out.changes != *e.Changes {
		msgs = append(msgs, fmt.Sprintf("changes: expected %d, got %d", *e.Changes, out.changes))
	}
	return msgs
}
