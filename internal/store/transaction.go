package store

import (
	"github.com/google/uuid"

	"github.com/roach88/tabula/internal/errs"
)

// TxState is the lifecycle state of a transaction.
type TxState int

const (
	TxActive TxState = iota + 1
	TxCommitted
	TxRolledBack
)

func (s TxState) String() string {
	switch s {
	case TxActive:
		return "Active"
	case TxCommitted:
		return "Committed"
	case TxRolledBack:
		return "RolledBack"
	}
	return "Unknown"
}

// Transaction isolates mutations in per-table overlays until Commit.
//
// Commit clears each touched base table and replays the overlay rows into
// it. The two steps are not crash-atomic.
type Transaction struct {
	id       uuid.UUID
	db       *Database
	state    TxState
	overlays map[string]*Table
}

func newTransaction(db *Database) (*Transaction, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return &Transaction{
		id:       id,
		db:       db,
		state:    TxActive,
		overlays: make(map[string]*Table),
	}, nil
}

// ID returns the transaction's time-ordered identifier.
func (tx *Transaction) ID() uuid.UUID { return tx.id }

// State returns the current state.
func (tx *Transaction) State() TxState {
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	return tx.state
}

// overlay returns (creating on first access) the overlay for entity.
// Called with db.mu held.
func (tx *Transaction) overlay(entity string, base *Table) *Table {
	if t, ok := tx.overlays[entity]; ok {
		return t
	}
	t := base.clone()
	tx.overlays[entity] = t
	tx.db.logger.Debug("overlay created", "tx", tx.id, "entity", entity, "rows", len(t.committed))
	return t
}

func (tx *Transaction) requireActive(op string) error {
	if tx.state != TxActive {
		return errs.New(errs.TransactionState, "cannot %s a transaction that is not active", op).WithState(tx.state)
	}
	return nil
}

// Commit replaces each touched base table's rows with the overlay's
// effective rows and ends the transaction. Returns the number of rows
// written to base tables.
func (tx *Transaction) Commit() (int, error) {
	db := tx.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := tx.requireActive("commit"); err != nil {
		return 0, err
	}

	total := 0
	for _, entity := range db.model.Entities() {
		overlay, ok := tx.overlays[entity]
		if !ok {
			continue
		}
		base := db.tables[entity]
		base.Clear()
		for row := range overlay.EffectiveRows() {
			base.pending[row.Key.Encode()] = Change{Key: row.Key, Kind: Added, Snapshot: row.Snapshot}
		}
		total += base.Commit()
	}
	tx.state = TxCommitted
	tx.overlays = nil
	db.tx = nil
	db.logger.Info("transaction committed", "db", db.name, "tx", tx.id, "rows", total)
	return total, nil
}

// Rollback discards the overlays without touching base tables.
func (tx *Transaction) Rollback() error {
	db := tx.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := tx.requireActive("roll back"); err != nil {
		return err
	}
	tx.state = TxRolledBack
	tx.overlays = nil
	db.tx = nil
	db.logger.Info("transaction rolled back", "db", db.name, "tx", tx.id)
	return nil
}
