package eth

import (
	"github.com/ethereum/go-ethereum/common"
)

// Latest block observed on the chain
type ChainTime struct {
	Time uint64
	Hash common.Hash
}

// Identifies the newest anchor record already taken in by the observer,
// either persisted or still under processing. Never persisted on its own.
type Cursor struct {
	TransactionNumber   uint64
	TransactionTime     uint64
	TransactionTimeHash common.Hash
}

// One log entry of the anchor contract. Immutable once produced.
type AnchorRecord struct {
	// Monotonically increasing identifier issued by the contract,
	// primary ordering key
	TransactionNumber uint64

	// Block height of the emitting log
	TransactionTime uint64

	// Block hash of that height, used as the reorg canary
	TransactionTimeHash string

	// "<numberOfOperations>.<coreIndexFileUri>"
	AnchorString string

	// Issuer address
	Writer string

	TransactionFeePaid       uint64
	NormalizedTransactionFee uint64

	// Wall clock annotation from the block header, 0 when omitted
	TransactionTimestamp int64

	// Position of the log within its block, tie-breaker for ordering
	LogIndex uint
}

func (self *AnchorRecord) Cursor() *Cursor {
	return &Cursor{
		TransactionNumber:   self.TransactionNumber,
		TransactionTime:     self.TransactionTime,
		TransactionTimeHash: common.HexToHash(self.TransactionTimeHash),
	}
}

// Options recognized by the explicit-range read
type RangeOpts struct {
	// Skip the block header lookup, faster
	OmitTimestamp bool

	// Pass-through topic filter, replaces the default anchor event filter
	Filter [][]common.Hash

	// Advisory upper bound on the range span, 0 disables the check
	MaxRange uint64
}
