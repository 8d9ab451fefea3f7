package model

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Persists anchored DID operations.
type OperationStore struct {
	db *gorm.DB
}

func NewOperationStore(db *gorm.DB) (self *OperationStore) {
	self = new(OperationStore)
	self.db = db
	return
}

// InsertOrReplace upserts a batch keyed by (did_suffix, transaction_number,
// operation_index). Reprocessing the same transaction is idempotent.
func (self *OperationStore) InsertOrReplace(ctx context.Context, batch []Operation) (err error) {
	if len(batch) == 0 {
		return
	}
	return self.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(batch, len(batch)).
		Error
}

// Delete removes every operation sourced from a transaction number
// greater than after. A nil after deletes everything.
func (self *OperationStore) Delete(ctx context.Context, after *uint64) (err error) {
	query := self.db.WithContext(ctx)
	if after != nil {
		query = query.Where("transaction_number > ?", *after)
	} else {
		query = query.Where("1 = 1")
	}
	return query.Delete(&Operation{}).Error
}
