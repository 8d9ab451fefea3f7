package model

import (
	"database/sql"
)

// Operation types anchored on chain
const (
	OperationTypeCreate     = "create"
	OperationTypeRecover    = "recover"
	OperationTypeDeactivate = "deactivate"
	OperationTypeUpdate     = "update"
)

const (
	TableOperation = "operations"
)

// One anchored DID operation, keyed by its position within the batch
type Operation struct {
	DidSuffix         string `gorm:"primaryKey"`
	TransactionNumber uint64 `gorm:"primaryKey"`
	OperationIndex    int    `gorm:"primaryKey"`

	TransactionTime uint64
	Type            string

	// Operation payloads, opaque to the observer
	Delta      sql.NullString
	SuffixData sql.NullString
	SignedData sql.NullString
}

func (Operation) TableName() string {
	return TableOperation
}
