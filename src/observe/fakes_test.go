package observe

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/anchornet/observer/src/utils/eth"
	"github.com/anchornet/observer/src/utils/model"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/atomic"
)

// Deterministic block hash for a height. Forked heights get a different
// hash, simulating a chain reorganization.
func hashAt(height uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(height))
}

func forkedHashAt(height uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(height + (1 << 40)))
}

func makeRecord(number, height uint64) eth.AnchorRecord {
	return eth.AnchorRecord{
		TransactionNumber:   number,
		TransactionTime:     height,
		TransactionTimeHash: hashAt(height).Hex(),
		AnchorString:        "1.fakeCasUri",
		Writer:              "0xWriter",
	}
}

// Records which store pruned what, in call order
type deletionLog struct {
	mtx   sync.Mutex
	order []string
}

func (self *deletionLog) append(name string) {
	self.mtx.Lock()
	self.order = append(self.order, name)
	self.mtx.Unlock()
}

func (self *deletionLog) Order() []string {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	out := make([]string, len(self.order))
	copy(out, self.order)
	return out
}

type fakeChain struct {
	mtx sync.Mutex

	latest     eth.ChainTime
	deployment uint64

	// Anchors on the canonical chain, sorted by transaction number
	records []eth.AnchorRecord

	// Heights whose canonical hash no longer matches older records
	forkedHeights map[uint64]bool

	// Remaining GetRange calls that fail before calls start succeeding
	failGetRange int

	rangeCalls  [][2]uint64
	readCursors []*eth.Cursor
}

func newFakeChain(tip uint64) *fakeChain {
	return &fakeChain{
		latest:        eth.ChainTime{Time: tip, Hash: hashAt(tip)},
		forkedHeights: make(map[uint64]bool),
	}
}

func (self *fakeChain) canonicalHash(height uint64) common.Hash {
	if self.forkedHeights[height] {
		return forkedHashAt(height)
	}
	return hashAt(height)
}

func (self *fakeChain) GetLatestTime(ctx context.Context) (eth.ChainTime, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	return self.latest, nil
}

func (self *fakeChain) Read(ctx context.Context, cursor *eth.Cursor) (bool, []eth.AnchorRecord, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	self.readCursors = append(self.readCursors, cursor)

	if cursor != nil && self.canonicalHash(cursor.TransactionTime) != cursor.TransactionTimeHash {
		return false, nil, eth.ErrInvalidCursor
	}

	var out []eth.AnchorRecord
	for _, record := range self.records {
		if cursor != nil && record.TransactionNumber <= cursor.TransactionNumber {
			continue
		}
		if record.TransactionTime > self.latest.Time {
			continue
		}
		out = append(out, record)
	}
	return false, out, nil
}

func (self *fakeChain) GetRange(ctx context.Context, fromBlock, toBlock uint64, opts eth.RangeOpts) ([]eth.AnchorRecord, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	self.rangeCalls = append(self.rangeCalls, [2]uint64{fromBlock, toBlock})

	if self.failGetRange > 0 {
		self.failGetRange--
		return nil, errors.New("rpc unavailable")
	}

	var out []eth.AnchorRecord
	for _, record := range self.records {
		if record.TransactionTime >= fromBlock && record.TransactionTime <= toBlock {
			out = append(out, record)
		}
	}
	return out, nil
}

func (self *fakeChain) GetFirstValidTransaction(ctx context.Context, records []eth.AnchorRecord) (*eth.AnchorRecord, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	for i := range records {
		record := records[i]
		if self.canonicalHash(record.TransactionTime).Hex() == record.TransactionTimeHash {
			return &record, nil
		}
	}
	return nil, nil
}

func (self *fakeChain) GetBlockNumberByHash(ctx context.Context, hash common.Hash) (uint64, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	for _, record := range self.records {
		if self.canonicalHash(record.TransactionTime) == hash {
			return record.TransactionTime, nil
		}
	}
	return 0, errors.New("unknown block hash")
}

func (self *fakeChain) GetDeploymentBlock(ctx context.Context) (uint64, error) {
	return self.deployment, nil
}

type fakeTransactionStore struct {
	mtx       sync.Mutex
	records   []eth.AnchorRecord
	deletions *deletionLog
}

func (self *fakeTransactionStore) AddTransaction(ctx context.Context, record eth.AnchorRecord) error {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	for _, existing := range self.records {
		if existing.TransactionNumber == record.TransactionNumber {
			return nil
		}
	}
	self.records = append(self.records, record)
	return nil
}

func (self *fakeTransactionStore) GetLastTransaction(ctx context.Context) (*eth.AnchorRecord, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	var last *eth.AnchorRecord
	for i := range self.records {
		if last == nil || self.records[i].TransactionNumber > last.TransactionNumber {
			last = &self.records[i]
		}
	}
	if last == nil {
		return nil, nil
	}
	out := *last
	return &out, nil
}

func (self *fakeTransactionStore) RemoveTransactionsLaterThan(ctx context.Context, after *uint64) error {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	if self.deletions != nil {
		self.deletions.append("transactions")
	}

	kept := self.records[:0]
	for _, record := range self.records {
		if after != nil && record.TransactionNumber <= *after {
			kept = append(kept, record)
		}
	}
	self.records = kept
	return nil
}

func (self *fakeTransactionStore) GetExponentiallySpacedTransactions(ctx context.Context) ([]eth.AnchorRecord, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	sorted := make([]eth.AnchorRecord, len(self.records))
	copy(sorted, self.records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TransactionNumber > sorted[j].TransactionNumber
	})

	var out []eth.AnchorRecord
	for offset := 0; offset < len(sorted); offset = offset*2 + 1 {
		out = append(out, sorted[offset])
	}
	return out, nil
}

func (self *fakeTransactionStore) Numbers() []uint64 {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	out := make([]uint64, 0, len(self.records))
	for _, record := range self.records {
		out = append(out, record.TransactionNumber)
	}
	return out
}

type fakeOperationStore struct {
	mtx        sync.Mutex
	operations []model.Operation
	deletions  *deletionLog
}

func (self *fakeOperationStore) InsertOrReplace(ctx context.Context, batch []model.Operation) error {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.operations = append(self.operations, batch...)
	return nil
}

func (self *fakeOperationStore) Delete(ctx context.Context, after *uint64) error {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	if self.deletions != nil {
		self.deletions.append("operations")
	}

	kept := self.operations[:0]
	for _, operation := range self.operations {
		if after != nil && operation.TransactionNumber <= *after {
			kept = append(kept, operation)
		}
	}
	self.operations = kept
	return nil
}

type fakeUnresolvableStore struct {
	mtx       sync.Mutex
	entries   map[uint64]eth.AnchorRecord
	attempts  map[uint64]int
	dueAll    bool
	deletions *deletionLog
}

func newFakeUnresolvableStore() *fakeUnresolvableStore {
	return &fakeUnresolvableStore{
		entries:  make(map[uint64]eth.AnchorRecord),
		attempts: make(map[uint64]int),
	}
}

func (self *fakeUnresolvableStore) RecordUnresolvableTransactionFetchAttempt(ctx context.Context, record eth.AnchorRecord) error {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.entries[record.TransactionNumber] = record
	self.attempts[record.TransactionNumber]++
	return nil
}

func (self *fakeUnresolvableStore) RemoveUnresolvableTransaction(ctx context.Context, transactionNumber uint64) error {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	delete(self.entries, transactionNumber)
	return nil
}

func (self *fakeUnresolvableStore) GetUnresolvableTransactionsDueForRetry(ctx context.Context, limit int) ([]eth.AnchorRecord, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	if !self.dueAll {
		return nil, nil
	}

	var out []eth.AnchorRecord
	for _, record := range self.entries {
		out = append(out, record)
		if len(out) >= limit {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TransactionNumber < out[j].TransactionNumber
	})
	return out, nil
}

func (self *fakeUnresolvableStore) RemoveUnresolvableTransactionsLaterThan(ctx context.Context, after *uint64) error {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	if self.deletions != nil {
		self.deletions.append("unresolvables")
	}

	for number := range self.entries {
		if after == nil || number > *after {
			delete(self.entries, number)
		}
	}
	return nil
}

func (self *fakeUnresolvableStore) Len() int {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	return len(self.entries)
}

// behavior decides the outcome per record, default is resolved
type fakeProcessor struct {
	mtx      sync.Mutex
	delay    time.Duration
	behavior func(record eth.AnchorRecord) (bool, error)

	processed []uint64

	running    atomic.Int32
	maxRunning atomic.Int32
}

func (self *fakeProcessor) ProcessTransaction(ctx context.Context, record eth.AnchorRecord) (bool, error) {
	current := self.running.Inc()
	for {
		max := self.maxRunning.Load()
		if current <= max || self.maxRunning.CompareAndSwap(max, current) {
			break
		}
	}
	defer self.running.Dec()

	if self.delay > 0 {
		time.Sleep(self.delay)
	}

	self.mtx.Lock()
	self.processed = append(self.processed, record.TransactionNumber)
	behavior := self.behavior
	self.mtx.Unlock()

	if behavior != nil {
		return behavior(record)
	}
	return true, nil
}

func (self *fakeProcessor) SetBehavior(behavior func(record eth.AnchorRecord) (bool, error)) {
	self.mtx.Lock()
	self.behavior = behavior
	self.mtx.Unlock()
}
