package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is the repository-level translation of gorm.ErrRecordNotFound.
var ErrNotFound = errors.New("record not found")

// TxRunner opens one database transaction per unit of work.
type TxRunner struct {
	db *gorm.DB
}

func NewTxRunner(db *gorm.DB) *TxRunner {
	return &TxRunner{db: db}
}

// WithTx commits when fn returns nil and rolls back otherwise (including on panic).
// Every statement inside fn must go through tx.
func (r *TxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// forUpdate is a no-op on sqlite, where the transaction already holds the writer lock.
var forUpdate = clause.Locking{Strength: "UPDATE"}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
