package observe

import (
	"context"

	"github.com/anchornet/observer/src/utils/eth"
	"github.com/anchornet/observer/src/utils/model"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/atomic"
)

// Chain is the capability consumed from the chain client.
type Chain interface {
	GetLatestTime(ctx context.Context) (eth.ChainTime, error)
	Read(ctx context.Context, cursor *eth.Cursor) (moreTransactions bool, records []eth.AnchorRecord, err error)
	GetRange(ctx context.Context, fromBlock, toBlock uint64, opts eth.RangeOpts) ([]eth.AnchorRecord, error)
	GetFirstValidTransaction(ctx context.Context, records []eth.AnchorRecord) (*eth.AnchorRecord, error)
	GetBlockNumberByHash(ctx context.Context, hash common.Hash) (uint64, error)
	GetDeploymentBlock(ctx context.Context) (uint64, error)
}

// TransactionStore persists fully processed anchor records.
type TransactionStore interface {
	AddTransaction(ctx context.Context, record eth.AnchorRecord) error
	GetLastTransaction(ctx context.Context) (*eth.AnchorRecord, error)
	RemoveTransactionsLaterThan(ctx context.Context, after *uint64) error
	GetExponentiallySpacedTransactions(ctx context.Context) ([]eth.AnchorRecord, error)
}

// OperationStore persists the operations carried by anchor records.
type OperationStore interface {
	InsertOrReplace(ctx context.Context, batch []model.Operation) error
	Delete(ctx context.Context, after *uint64) error
}

// UnresolvableTransactionStore tracks records whose off-chain data could
// not be fetched yet. Retry scheduling is owned by the store.
type UnresolvableTransactionStore interface {
	RecordUnresolvableTransactionFetchAttempt(ctx context.Context, record eth.AnchorRecord) error
	RemoveUnresolvableTransaction(ctx context.Context, transactionNumber uint64) error
	GetUnresolvableTransactionsDueForRetry(ctx context.Context, limit int) ([]eth.AnchorRecord, error)
	RemoveUnresolvableTransactionsLaterThan(ctx context.Context, after *uint64) error
}

// TransactionProcessor handles a single anchor record. resolved=false is a
// logical failure eligible for retry, a returned error is fatal and fences
// the pipeline.
type TransactionProcessor interface {
	ProcessTransaction(ctx context.Context, record eth.AnchorRecord) (resolved bool, err error)
}

// VersionManager picks the protocol version covering a block height.
type VersionManager interface {
	VersionName(transactionTime uint64) string
	ProcessorFor(transactionTime uint64) (TransactionProcessor, error)
}

type TransactionProcessingStatus int32

const (
	StatusProcessing TransactionProcessingStatus = iota
	StatusProcessed
	StatusUnresolvable
	StatusError
)

// TransactionUnderProcessing is one entry of the under-processing sequence.
// The status field is written by the processing task and read by the loop.
type TransactionUnderProcessing struct {
	Record eth.AnchorRecord

	status atomic.Int32
}

func NewTransactionUnderProcessing(record eth.AnchorRecord) *TransactionUnderProcessing {
	return &TransactionUnderProcessing{Record: record}
}

func (self *TransactionUnderProcessing) Status() TransactionProcessingStatus {
	return TransactionProcessingStatus(self.status.Load())
}

func (self *TransactionUnderProcessing) SetStatus(status TransactionProcessingStatus) {
	self.status.Store(int32(status))
}
