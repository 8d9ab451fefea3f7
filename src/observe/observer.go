package observe

import (
	"sync"
	"time"

	"github.com/anchornet/observer/src/utils/config"
	"github.com/anchornet/observer/src/utils/eth"
	"github.com/anchornet/observer/src/utils/monitor"
	"github.com/anchornet/observer/src/utils/task"

	"github.com/gammazero/deque"
	"golang.org/x/time/rate"
)

// Observer discovers every anchor event the contract ever emitted, hands
// each record to its version's processor and keeps following the chain
// tip. Historical catch-up and live polling are mutually exclusive within
// one process lifetime, live never goes back to historical.
type Observer struct {
	*task.Task

	chain             Chain
	transactionStore  TransactionStore
	operationStore    OperationStore
	unresolvableStore UnresolvableTransactionStore
	versions          VersionManager
	monitor           *monitor.Monitor

	paginator  *Paginator
	throughput *ThroughputLimiter

	// Paces historical batches
	rateLimiter *rate.Limiter

	// Published observer events, drained by an optional publisher
	Events chan *Event

	// Owned by the sync state machine and the historical loop
	stateMtx sync.RWMutex
	state    SyncState

	// Appended by the admitting loop, trimmed by the consolidator.
	// Entry statuses are written by the processing tasks.
	mtx             sync.Mutex
	underProcessing *deque.Deque[*TransactionUnderProcessing]
}

func NewObserver(config *config.Config) (self *Observer) {
	self = new(Observer)

	self.Events = make(chan *Event, 64)
	self.underProcessing = deque.New[*TransactionUnderProcessing]()
	self.rateLimiter = rate.NewLimiter(rate.Every(config.Observer.RateLimitDelay), 1)

	self.Task = task.NewTask(config, "observer").
		WithSubtaskFunc(self.run).
		WithWorkerPool(config.Observer.MaxConcurrentDownloads).
		WithOnAfterStop(func() {
			close(self.Events)
		})

	return
}

func (self *Observer) WithChain(chain Chain) *Observer {
	self.chain = chain
	return self
}

func (self *Observer) WithTransactionStore(store TransactionStore) *Observer {
	self.transactionStore = store
	return self
}

func (self *Observer) WithOperationStore(store OperationStore) *Observer {
	self.operationStore = store
	return self
}

func (self *Observer) WithUnresolvableStore(store UnresolvableTransactionStore) *Observer {
	self.unresolvableStore = store
	return self
}

func (self *Observer) WithVersionManager(versions VersionManager) *Observer {
	self.versions = versions
	return self
}

func (self *Observer) WithMonitor(monitor *monitor.Monitor) *Observer {
	self.monitor = monitor
	return self
}

func (self *Observer) run() (err error) {
	self.paginator, err = NewPaginator(&self.Config.Observer, self.chain)
	if err != nil {
		return
	}
	self.throughput = NewThroughputLimiter(&self.Config.Observer, self.versions)

	deploymentBlock := self.Config.Observer.ContractDeploymentBlock
	if deploymentBlock == 0 {
		deploymentBlock, err = self.chain.GetDeploymentBlock(self.Ctx)
		if err != nil {
			return
		}
	}

	err = self.decideStartingPoint(deploymentBlock)
	if err != nil {
		return
	}

	if !self.GetSyncState().IsComplete {
		err = self.runHistorical()
		if err != nil {
			return
		}
		if self.IsStopping.Load() {
			return nil
		}
		self.enterLivePhase()
	}

	return self.runLive()
}

func (self *Observer) emit(event *Event) {
	select {
	case self.Events <- event:
	default:
		self.Log.WithField("event", event.Name).Debug("Event channel full, dropping event")
	}
}

// Processes one record through its version's processor and publishes the
// outcome through the entry's status field. Runs on the worker pool.
func (self *Observer) processTransaction(entry *TransactionUnderProcessing) {
	record := entry.Record

	processor, err := self.versions.ProcessorFor(record.TransactionTime)
	if err != nil {
		self.Log.WithError(err).
			WithField("transactionNumber", record.TransactionNumber).
			Error("No processor for transaction")
		entry.SetStatus(StatusError)
		return
	}

	resolved, err := processor.ProcessTransaction(self.Ctx, record)
	if err != nil {
		self.Log.WithError(err).
			WithField("transactionNumber", record.TransactionNumber).
			Error("Transaction processing failed")
		if self.monitor != nil {
			self.monitor.GetReport().Errors.ProcessingErrors.Inc()
		}
		entry.SetStatus(StatusError)
		return
	}

	if resolved {
		// Best effort, the record may not be in the unresolvable store
		err = self.unresolvableStore.RemoveUnresolvableTransaction(self.Ctx, record.TransactionNumber)
		if err != nil {
			self.Log.WithError(err).
				WithField("transactionNumber", record.TransactionNumber).
				Warn("Failed to remove transaction from the unresolvable store")
		}
		entry.SetStatus(StatusProcessed)
		return
	}

	self.Log.WithField("transactionNumber", record.TransactionNumber).
		Info("Transaction not resolvable yet, recording fetch attempt")
	err = self.unresolvableStore.RecordUnresolvableTransactionFetchAttempt(self.Ctx, record)
	if err != nil {
		self.Log.WithError(err).
			WithField("transactionNumber", record.TransactionNumber).
			Error("Failed to record unresolvable transaction fetch attempt")
		entry.SetStatus(StatusError)
		return
	}
	if self.monitor != nil {
		self.monitor.GetReport().Errors.UnresolvableRecorded.Inc()
	}
	entry.SetStatus(StatusUnresolvable)
}

// The cursor is the tail of the under-processing sequence when there is
// one, otherwise the last persisted record.
func (self *Observer) currentCursor() (cursor *eth.Cursor, err error) {
	self.mtx.Lock()
	if self.underProcessing.Len() > 0 {
		cursor = self.underProcessing.Back().Record.Cursor()
		self.mtx.Unlock()
		return
	}
	self.mtx.Unlock()

	last, err := self.transactionStore.GetLastTransaction(self.Ctx)
	if err != nil || last == nil {
		return
	}
	return last.Cursor(), nil
}

func (self *Observer) enqueue(record eth.AnchorRecord) {
	entry := NewTransactionUnderProcessing(record)

	self.mtx.Lock()
	self.underProcessing.PushBack(entry)
	self.mtx.Unlock()

	// Fire and forget, completion is observed through the status field
	self.SubmitToWorker(func() {
		self.processTransaction(entry)
	})
}

// Walks the sequence from its head and persists every consecutive
// finished entry. Stops at the first entry still being processed or
// marked as failed.
func (self *Observer) consolidate() (err error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	for self.underProcessing.Len() > 0 {
		head := self.underProcessing.Front()
		switch head.Status() {
		case StatusProcessed:
			err = self.transactionStore.AddTransaction(self.Ctx, head.Record)
			if err != nil {
				if self.monitor != nil {
					self.monitor.GetReport().Errors.StoreErrors.Inc()
				}
				return
			}
			if self.monitor != nil {
				self.monitor.GetReport().State.TransactionsPersisted.Inc()
			}
			self.advanceLastSyncedBlock(head.Record.TransactionTime)
			self.underProcessing.PopFront()

		case StatusUnresolvable:
			// Already referenced in the unresolvable store, nothing to persist
			self.underProcessing.PopFront()

		default:
			return
		}
	}
	return
}

func (self *Observer) inFlightCount() (count int) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	for i := 0; i < self.underProcessing.Len(); i++ {
		if self.underProcessing.At(i).Status() == StatusProcessing {
			count++
		}
	}
	return
}

func (self *Observer) hasErrorEntry() bool {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	for i := 0; i < self.underProcessing.Len(); i++ {
		if self.underProcessing.At(i).Status() == StatusError {
			return true
		}
	}
	return false
}

func (self *Observer) clearUnderProcessing() {
	self.mtx.Lock()
	self.underProcessing.Clear()
	self.mtx.Unlock()
}

// Waits until the number of entries still being processed falls to or
// below the configured concurrency.
func (self *Observer) waitForCapacity() {
	self.waitWhile(func(processing int) bool {
		return processing > self.Config.Observer.MaxConcurrentDownloads
	})
}

// Waits until every spawned processing task has finished.
func (self *Observer) drainInFlight() {
	self.waitWhile(func(processing int) bool {
		return processing > 0
	})
}

func (self *Observer) waitWhile(cond func(processing int) bool) {
	for {
		processing := self.inFlightCount()
		if self.monitor != nil {
			self.monitor.GetReport().State.TransactionsInFlight.Store(int64(processing))
		}
		if !cond(processing) {
			return
		}

		select {
		case <-self.Ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
