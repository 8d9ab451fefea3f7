package model

import (
	"github.com/anchornet/observer/src/utils/eth"
)

const (
	TableTransaction = "transactions"
)

// One fully processed anchor record
type Transaction struct {
	TransactionNumber        uint64 `gorm:"primaryKey"`
	TransactionTime          uint64
	TransactionTimeHash      string
	AnchorString             string
	Writer                   string
	TransactionFeePaid       uint64
	NormalizedTransactionFee uint64
	TransactionTimestamp     int64
}

func (Transaction) TableName() string {
	return TableTransaction
}

func NewTransaction(record *eth.AnchorRecord) *Transaction {
	return &Transaction{
		TransactionNumber:        record.TransactionNumber,
		TransactionTime:          record.TransactionTime,
		TransactionTimeHash:      record.TransactionTimeHash,
		AnchorString:             record.AnchorString,
		Writer:                   record.Writer,
		TransactionFeePaid:       record.TransactionFeePaid,
		NormalizedTransactionFee: record.NormalizedTransactionFee,
		TransactionTimestamp:     record.TransactionTimestamp,
	}
}

func (self *Transaction) AnchorRecord() eth.AnchorRecord {
	return eth.AnchorRecord{
		TransactionNumber:        self.TransactionNumber,
		TransactionTime:          self.TransactionTime,
		TransactionTimeHash:      self.TransactionTimeHash,
		AnchorString:             self.AnchorString,
		Writer:                   self.Writer,
		TransactionFeePaid:       self.TransactionFeePaid,
		NormalizedTransactionFee: self.NormalizedTransactionFee,
		TransactionTimestamp:     self.TransactionTimestamp,
	}
}
