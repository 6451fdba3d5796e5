package querysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/queryir"
	"github.com/roach88/tabula/internal/schema"
	"github.com/roach88/tabula/internal/store"
)

// Oracle holds a copy of a store's effective rows in an in-memory SQLite
// database and answers plans with compiled SQL.
type Oracle struct {
	db    *sql.DB
	model *schema.Model
}

// Result is an oracle answer: Rows for a sequence plan, Value for a
// terminal one.
type Result struct {
	Columns []string
	Rows    [][]any
	Value   any
}

var columnTypes = map[schema.Kind]string{
	schema.KindBool:   "BOOLEAN",
	schema.KindInt:    "INTEGER",
	schema.KindFloat:  "REAL",
	schema.KindString: "TEXT",
	schema.KindTime:   "TEXT",
	schema.KindUUID:   "TEXT",
}

// Open copies every visible table of source into a fresh in-memory
// SQLite database.
func Open(ctx context.Context, source *store.Database) (*Oracle, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	o := &Oracle{db: db, model: source.Model()}
	for _, entity := range source.Entities() {
		if err := o.load(ctx, source, entity); err != nil {
			db.Close()
			return nil, fmt.Errorf("load %s: %w", entity, err)
		}
	}
	return o, nil
}

func (o *Oracle) load(ctx context.Context, source *store.Database, entity string) error {
	table, err := source.GetTable(entity)
	if err != nil {
		return err
	}
	desc := table.Descriptor()

	defs := make([]string, len(desc.Fields))
	names := make([]string, len(desc.Fields))
	marks := make([]string, len(desc.Fields))
	for i, f := range desc.Fields {
		defs[i] = quote(f.Name) + " " + columnTypes[f.Kind]
		names[i] = f.Name
		marks[i] = "?"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quote(entity), strings.Join(defs, ", "))
	if _, err := o.db.ExecContext(ctx, create); err != nil {
		return err
	}

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(entity), columnList(names), strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for row := range table.EffectiveRows() {
		args := make([]any, len(names))
		for i, name := range names {
			args[i] = ir.ToGo(row.Snapshot.Get(name))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s: %w", row.Key, err)
		}
	}
	return tx.Commit()
}

// Close releases the SQLite database.
func (o *Oracle) Close() error { return o.db.Close() }

// Query compiles plan with params and runs it.
func (o *Oracle) Query(ctx context.Context, plan *queryir.Plan, params map[string]any) (*Result, error) {
	c := NewSQLCompiler(o.model)
	for k, v := range params {
		c.Params[k] = v
	}
	query, args, err := c.Compile(plan)
	if err != nil {
		return nil, err
	}

	if t, _ := plan.Terminal(); t != queryir.None {
		var v any
		if err := o.db.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
			return nil, fmt.Errorf("query %s: %w", t, err)
		}
		return &Result{Value: v}, nil
	}

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}
