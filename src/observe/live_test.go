package observe

import (
	"testing"
	"time"

	"github.com/anchornet/observer/src/utils/eth"
	"github.com/anchornet/observer/src/utils/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestLiveTestSuite(t *testing.T) {
	suite.Run(t, new(LiveTestSuite))
}

type LiveTestSuite struct {
	suite.Suite
}

// A plain tick reads past the cursor, processes concurrently and persists
// in strictly increasing transaction number order.
func (s *LiveTestSuite) TestProcessesAndPersistsInOrder() {
	conf := testConfig()
	conf.Observer.MaxConcurrentDownloads = 4

	chain := newFakeChain(300)
	for i := uint64(0); i < 10; i++ {
		chain.records = append(chain.records, makeRecord(i, 100+i*10))
	}

	h := newTestHarness(conf, chain)
	h.processor.delay = 10 * time.Millisecond

	err := h.observer.runLiveTick()
	require.NoError(s.T(), err)

	numbers := h.transactions.Numbers()
	require.Len(s.T(), numbers, 10)
	for i := 1; i < len(numbers); i++ {
		assert.Less(s.T(), numbers[i-1], numbers[i])
	}
}

// Backpressure: the worker pool never runs more than
// maxConcurrentDownloads processing tasks at any instant.
func (s *LiveTestSuite) TestBackpressure() {
	conf := testConfig()
	conf.Observer.MaxConcurrentDownloads = 2

	chain := newFakeChain(300)
	for i := uint64(0); i < 10; i++ {
		chain.records = append(chain.records, makeRecord(i, 100+i*10))
	}

	h := newTestHarness(conf, chain)
	h.processor.delay = 20 * time.Millisecond

	err := h.observer.runLiveTick()
	require.NoError(s.T(), err)

	assert.LessOrEqual(s.T(), h.processor.maxRunning.Load(), int32(2))
	assert.Len(s.T(), h.transactions.Numbers(), 10)
}

// Error fencing: a throwing processor fences the pipeline, records after
// the failure are not persisted and the next tick resumes from the last
// persisted record.
func (s *LiveTestSuite) TestErrorFence() {
	conf := testConfig()
	conf.Observer.MaxConcurrentDownloads = 5

	chain := newFakeChain(300)
	for i := uint64(1); i <= 10; i++ {
		chain.records = append(chain.records, makeRecord(i, 100+i*10))
	}

	h := newTestHarness(conf, chain)
	h.processor.SetBehavior(func(record eth.AnchorRecord) (bool, error) {
		if record.TransactionNumber == 4 {
			return false, assert.AnError
		}
		return true, nil
	})

	err := h.observer.runLiveTick()
	require.NoError(s.T(), err)

	// Only the consecutive prefix before the failure made it
	assert.Equal(s.T(), []uint64{1, 2, 3}, h.transactions.Numbers())

	// The under-processing sequence was discarded
	h.observer.mtx.Lock()
	assert.Equal(s.T(), 0, h.observer.underProcessing.Len())
	h.observer.mtx.Unlock()

	// Next tick re-reads from cursor 3 and heals
	h.processor.SetBehavior(nil)
	err = h.observer.runLiveTick()
	require.NoError(s.T(), err)

	chain.mtx.Lock()
	lastCursor := chain.readCursors[len(chain.readCursors)-1]
	chain.mtx.Unlock()
	require.NotNil(s.T(), lastCursor)
	assert.Equal(s.T(), uint64(3), lastCursor.TransactionNumber)

	assert.Equal(s.T(), []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, h.transactions.Numbers())
}

// Reorg: an invalid cursor with the chain tip past the cursor's height
// rewinds the stores to the deepest still-valid record, pruning
// operations, then unresolvables, then transactions.
func (s *LiveTestSuite) TestReorgRewind() {
	conf := testConfig()

	chain := newFakeChain(220)

	h := newTestHarness(conf, chain)

	// Records 0..10 are persisted, heights 100..200
	for i := uint64(0); i <= 10; i++ {
		record := makeRecord(i, 100+i*10)
		require.NoError(s.T(), h.transactions.AddTransaction(h.observer.Ctx, record))
		require.NoError(s.T(), h.operations.InsertOrReplace(h.observer.Ctx, []model.Operation{
			{DidSuffix: "did", TransactionNumber: i, OperationIndex: 0},
		}))
	}
	require.NoError(s.T(), h.unresolvable.RecordUnresolvableTransactionFetchAttempt(
		h.observer.Ctx, makeRecord(9, 190)))

	// The chain forked past record 7
	chain.mtx.Lock()
	chain.forkedHeights[180] = true
	chain.forkedHeights[190] = true
	chain.forkedHeights[200] = true
	// New canonical anchors replace the orphaned ones
	for i := uint64(0); i <= 7; i++ {
		chain.records = append(chain.records, makeRecord(i, 100+i*10))
	}
	for i := uint64(8); i <= 10; i++ {
		record := makeRecord(i, 100+i*10)
		record.TransactionTimeHash = forkedHashAt(100 + i*10).Hex()
		chain.records = append(chain.records, record)
	}
	chain.mtx.Unlock()

	err := h.observer.runLiveTick()
	require.NoError(s.T(), err)

	// Deletions ran operations -> unresolvables -> transactions
	assert.Equal(s.T(), []string{"operations", "unresolvables", "transactions"}, h.deletions.Order())

	// The read after the rewind used cursor (7, H7)
	chain.mtx.Lock()
	require.Greater(s.T(), len(chain.readCursors), 1)
	afterRewind := chain.readCursors[1]
	chain.mtx.Unlock()
	require.NotNil(s.T(), afterRewind)
	assert.Equal(s.T(), uint64(7), afterRewind.TransactionNumber)
	assert.Equal(s.T(), hashAt(170), afterRewind.TransactionTimeHash)

	// No orphaned state past 7 anywhere, the new canonical records took over
	assert.Equal(s.T(), 0, h.unresolvable.Len())
	numbers := h.transactions.Numbers()
	require.Len(s.T(), numbers, 11)
	for _, record := range h.transactions.records {
		if record.TransactionNumber > 7 {
			assert.Equal(s.T(), forkedHashAt(record.TransactionTime).Hex(), record.TransactionTimeHash)
		}
	}
	for _, operation := range h.operations.operations {
		assert.LessOrEqual(s.T(), operation.TransactionNumber, uint64(7))
	}
}

// An invalid cursor while the chain client is behind is not a reorg, the
// loop just idles until the client catches up.
func (s *LiveTestSuite) TestInvalidCursorChainBehind() {
	conf := testConfig()

	chain := newFakeChain(150)

	h := newTestHarness(conf, chain)
	record := makeRecord(3, 200)
	require.NoError(s.T(), h.transactions.AddTransaction(h.observer.Ctx, record))

	// Height 200 is past the fake tip, the cursor hash cannot match
	chain.mtx.Lock()
	chain.forkedHeights[200] = true
	chain.mtx.Unlock()

	err := h.observer.runLiveTick()
	require.NoError(s.T(), err)

	// Nothing was pruned
	assert.Empty(s.T(), h.deletions.Order())
	assert.Equal(s.T(), []uint64{3}, h.transactions.Numbers())
}

// CAS trouble: the processor reports the record unresolvable, a later
// sweep with the record due for retry re-processes and clears it.
func (s *LiveTestSuite) TestUnresolvableSweep() {
	conf := testConfig()

	chain := newFakeChain(300)
	chain.records = []eth.AnchorRecord{makeRecord(1, 100)}

	h := newTestHarness(conf, chain)
	h.processor.SetBehavior(func(record eth.AnchorRecord) (bool, error) {
		return false, nil
	})

	err := h.observer.runLiveTick()
	require.NoError(s.T(), err)

	assert.Empty(s.T(), h.transactions.Numbers())
	assert.Equal(s.T(), 1, h.unresolvable.Len())

	// The record resolves on the next attempt
	chain.mtx.Lock()
	chain.records = nil
	chain.mtx.Unlock()
	h.processor.SetBehavior(nil)
	h.unresolvable.mtx.Lock()
	h.unresolvable.dueAll = true
	h.unresolvable.mtx.Unlock()

	err = h.observer.runLiveTick()
	require.NoError(s.T(), err)

	assert.Equal(s.T(), []uint64{1}, h.transactions.Numbers())
	assert.Equal(s.T(), 0, h.unresolvable.Len())
}
