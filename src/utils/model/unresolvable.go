package model

import (
	"time"
)

const (
	TableUnresolvableTransaction = "unresolvable_transactions"
)

// An anchor record whose off-chain data cannot be fetched yet.
// Eligible for retry once NextRetryTime has passed.
type UnresolvableTransaction struct {
	TransactionNumber        uint64 `gorm:"primaryKey"`
	TransactionTime          uint64
	TransactionTimeHash      string
	AnchorString             string
	Writer                   string
	TransactionFeePaid       uint64
	NormalizedTransactionFee uint64
	TransactionTimestamp     int64

	RetryAttempts  int
	FirstFetchTime time.Time
	NextRetryTime  time.Time
}

func (UnresolvableTransaction) TableName() string {
	return TableUnresolvableTransaction
}
