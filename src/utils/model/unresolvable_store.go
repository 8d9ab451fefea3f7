package model

import (
	"context"
	"errors"
	"time"

	"github.com/anchornet/observer/src/utils/eth"

	"gorm.io/gorm"
)

const (
	initialRetryInterval = time.Minute
	maxRetryInterval     = 24 * time.Hour
)

// Tracks anchor records whose off-chain data could not be fetched.
// Retry scheduling is exponential in the attempt count.
type UnresolvableTransactionStore struct {
	db *gorm.DB
}

func NewUnresolvableTransactionStore(db *gorm.DB) (self *UnresolvableTransactionStore) {
	self = new(UnresolvableTransactionStore)
	self.db = db
	return
}

func (self *UnresolvableTransactionStore) RecordUnresolvableTransactionFetchAttempt(ctx context.Context, record eth.AnchorRecord) (err error) {
	now := time.Now()

	var existing UnresolvableTransaction
	err = self.db.WithContext(ctx).
		Where("transaction_number = ?", record.TransactionNumber).
		First(&existing).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		entry := UnresolvableTransaction{
			TransactionNumber:        record.TransactionNumber,
			TransactionTime:          record.TransactionTime,
			TransactionTimeHash:      record.TransactionTimeHash,
			AnchorString:             record.AnchorString,
			Writer:                   record.Writer,
			TransactionFeePaid:       record.TransactionFeePaid,
			NormalizedTransactionFee: record.NormalizedTransactionFee,
			TransactionTimestamp:     record.TransactionTimestamp,
			RetryAttempts:            0,
			FirstFetchTime:           now,
			NextRetryTime:            now.Add(initialRetryInterval),
		}
		return self.db.WithContext(ctx).Create(&entry).Error
	}
	if err != nil {
		return
	}

	existing.RetryAttempts += 1
	interval := initialRetryInterval << existing.RetryAttempts
	if interval > maxRetryInterval {
		interval = maxRetryInterval
	}
	existing.NextRetryTime = now.Add(interval)

	return self.db.WithContext(ctx).Save(&existing).Error
}

func (self *UnresolvableTransactionStore) RemoveUnresolvableTransaction(ctx context.Context, transactionNumber uint64) (err error) {
	return self.db.WithContext(ctx).
		Where("transaction_number = ?", transactionNumber).
		Delete(&UnresolvableTransaction{}).
		Error
}

// RemoveUnresolvableTransactionsLaterThan deletes every entry with a
// transaction number greater than after. A nil after deletes everything.
func (self *UnresolvableTransactionStore) RemoveUnresolvableTransactionsLaterThan(ctx context.Context, after *uint64) (err error) {
	query := self.db.WithContext(ctx)
	if after != nil {
		query = query.Where("transaction_number > ?", *after)
	} else {
		query = query.Where("1 = 1")
	}
	return query.Delete(&UnresolvableTransaction{}).Error
}

func (self *UnresolvableTransactionStore) GetUnresolvableTransactionsDueForRetry(ctx context.Context, limit int) (records []eth.AnchorRecord, err error) {
	var entries []UnresolvableTransaction
	err = self.db.WithContext(ctx).
		Where("next_retry_time <= ?", time.Now()).
		Order("transaction_number ASC").
		Limit(limit).
		Find(&entries).
		Error
	if err != nil {
		return
	}

	records = make([]eth.AnchorRecord, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		records = append(records, eth.AnchorRecord{
			TransactionNumber:        entry.TransactionNumber,
			TransactionTime:          entry.TransactionTime,
			TransactionTimeHash:      entry.TransactionTimeHash,
			AnchorString:             entry.AnchorString,
			Writer:                   entry.Writer,
			TransactionFeePaid:       entry.TransactionFeePaid,
			NormalizedTransactionFee: entry.NormalizedTransactionFee,
			TransactionTimestamp:     entry.TransactionTimestamp,
		})
	}
	return
}
