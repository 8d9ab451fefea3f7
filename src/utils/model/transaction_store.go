package model

import (
	"context"
	"errors"

	"github.com/anchornet/observer/src/utils/eth"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Persists fully processed anchor records.
type TransactionStore struct {
	db *gorm.DB
}

func NewTransactionStore(db *gorm.DB) (self *TransactionStore) {
	self = new(TransactionStore)
	self.db = db
	return
}

func (self *TransactionStore) AddTransaction(ctx context.Context, record eth.AnchorRecord) (err error) {
	return self.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(NewTransaction(&record)).
		Error
}

func (self *TransactionStore) GetLastTransaction(ctx context.Context) (record *eth.AnchorRecord, err error) {
	var transaction Transaction
	err = self.db.WithContext(ctx).
		Order("transaction_number DESC").
		First(&transaction).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return
	}

	out := transaction.AnchorRecord()
	record = &out
	return
}

// RemoveTransactionsLaterThan deletes every record with a transaction
// number greater than after. A nil after deletes everything.
func (self *TransactionStore) RemoveTransactionsLaterThan(ctx context.Context, after *uint64) (err error) {
	query := self.db.WithContext(ctx)
	if after != nil {
		query = query.Where("transaction_number > ?", *after)
	} else {
		query = query.Where("1 = 1")
	}
	return query.Delete(&Transaction{}).Error
}

// GetExponentiallySpacedTransactions samples persisted records at indices
// 1, 2, 4, 8, ... counted from the tail, newest first. Used as the probe
// set when looking for the deepest still-valid record after a reorg.
func (self *TransactionStore) GetExponentiallySpacedTransactions(ctx context.Context) (records []eth.AnchorRecord, err error) {
	var count int64
	err = self.db.WithContext(ctx).Model(&Transaction{}).Count(&count).Error
	if err != nil {
		return
	}

	for offset := int64(0); offset < count; offset = offset*2 + 1 {
		var transaction Transaction
		err = self.db.WithContext(ctx).
			Order("transaction_number DESC").
			Offset(int(offset)).
			First(&transaction).
			Error
		if err != nil {
			return
		}
		records = append(records, transaction.AnchorRecord())
	}
	return
}

// GetTransactionsLaterThan is the read surface for external consumers.
// A nil since starts from the oldest record.
func (self *TransactionStore) GetTransactionsLaterThan(ctx context.Context, since *uint64, limit int) (records []eth.AnchorRecord, err error) {
	query := self.db.WithContext(ctx).
		Model(&Transaction{}).
		Order("transaction_number ASC").
		Limit(limit)
	if since != nil {
		query = query.Where("transaction_number > ?", *since)
	}

	var transactions []Transaction
	err = query.Find(&transactions).Error
	if err != nil {
		return
	}

	records = make([]eth.AnchorRecord, 0, len(transactions))
	for i := range transactions {
		records = append(records, transactions[i].AnchorRecord())
	}
	return
}
