package observe

import (
	"errors"
	"sort"
	"time"

	"github.com/anchornet/observer/src/utils/eth"
)

// The live loop periodically reads new anchor records past the cursor,
// spreads their processing over the worker pool and persists results in
// order. It self-schedules its next tick.
func (self *Observer) runLive() (err error) {
	self.Log.Info("Entering live processing loop")

	var timer *time.Timer
	for {
		err := self.runLiveTick()
		if err != nil {
			self.Log.WithError(err).Error("Observer loop failed")
			if self.monitor != nil {
				self.monitor.GetReport().Errors.LoopFailures.Inc()
			}
			self.emit(NewEvent(EventObserverLoopFailure, map[string]interface{}{
				"error": err.Error(),
			}))
		} else {
			if self.monitor != nil {
				self.monitor.GetReport().State.LastLoopTimestamp.Store(time.Now().Unix())
			}
			self.emit(NewEvent(EventObserverLoopSuccess, nil))
		}

		timer = time.NewTimer(self.Config.Observer.ObservingInterval)
		select {
		case <-self.StopChannel:
			timer.Stop()
			self.Log.Debug("Live loop stopped")
			return nil
		case <-timer.C:
			// pass through
		}
	}
}

// One scheduled tick. Keeps iterating while the chain reports more
// transactions or a reorg was just handled, then sweeps unresolvable
// records due for retry.
func (self *Observer) runLiveTick() (err error) {
	for {
		// Persist every consecutive finished entry from the head
		err = self.consolidate()
		if err != nil {
			return
		}

		var cursor *eth.Cursor
		cursor, err = self.currentCursor()
		if err != nil {
			return
		}

		var moreTransactions bool
		var records []eth.AnchorRecord
		reorgDetected := false

		moreTransactions, records, err = self.chain.Read(self.Ctx, cursor)
		switch {
		case errors.Is(err, eth.ErrInvalidCursor):
			reorgDetected, err = self.checkReorg(cursor)
			if err != nil {
				return
			}

		case err != nil:
			if self.monitor != nil {
				self.monitor.GetReport().Errors.ChainReadErrors.Inc()
			}
			return

		default:
			self.admit(records)

			// Backpressure: let the pool catch up before reading more
			self.waitForCapacity()

			// Error fencing: a failed prerequisite must not be raced past.
			// Drain, persist what finished in order, then discard the rest
			// so the next read re-derives the cursor from storage.
			if self.hasErrorEntry() {
				self.drainInFlight()
				err = self.consolidate()
				if err != nil {
					return
				}
				self.clearUnderProcessing()
			}
		}

		if self.IsStopping.Load() {
			return nil
		}
		if !moreTransactions && !reorgDetected {
			break
		}
	}

	// Finish the tick clean before sweeping
	self.drainInFlight()
	err = self.consolidate()
	if err != nil {
		return
	}
	if self.hasErrorEntry() {
		self.clearUnderProcessing()
	}

	return self.sweepUnresolvables()
}

// Admits records through the throughput limiter and spawns their
// processing, newest last. Does not wait for completion.
func (self *Observer) admit(records []eth.AnchorRecord) {
	if len(records) == 0 {
		return
	}

	admitted := self.throughput.Admit(records)
	sort.SliceStable(admitted, func(i, j int) bool {
		return admitted[i].TransactionNumber < admitted[j].TransactionNumber
	})

	self.Log.WithField("count", len(admitted)).Info("Admitting transactions for processing")
	for i := range admitted {
		self.enqueue(admitted[i])
	}
}

// A cursor invalidation only counts as a reorg when the chain client has
// caught up to the cursor's height. Otherwise the client is behind and we
// just idle until it recovers.
func (self *Observer) checkReorg(cursor *eth.Cursor) (reorgDetected bool, err error) {
	latest, err := self.chain.GetLatestTime(self.Ctx)
	if err != nil {
		return
	}

	if cursor != nil && cursor.TransactionTime <= latest.Time {
		err = self.handleReorg()
		if err != nil {
			return
		}
		reorgDetected = true
		return
	}

	self.Log.WithField("latestTime", latest.Time).
		Warn("Cursor invalid but chain client is behind, idling")
	return
}

// Fetches unresolvable records due for retry and runs them through the
// same processing discipline, waiting for their collective completion.
func (self *Observer) sweepUnresolvables() (err error) {
	due, err := self.unresolvableStore.GetUnresolvableTransactionsDueForRetry(
		self.Ctx, self.Config.Observer.UnresolvableRetryBatchSize)
	if err != nil {
		return
	}
	if len(due) == 0 {
		return
	}

	self.Log.WithField("count", len(due)).Info("Retrying unresolvable transactions")
	if self.monitor != nil {
		self.monitor.GetReport().State.UnresolvableRetries.Add(uint64(len(due)))
	}

	entries := make([]*TransactionUnderProcessing, 0, len(due))
	for i := range due {
		entry := NewTransactionUnderProcessing(due[i])
		entries = append(entries, entry)
		self.SubmitToWorker(func() {
			self.processTransaction(entry)
		})
	}

	// Await collective completion before the next scheduled iteration
	for {
		processing := 0
		for _, entry := range entries {
			if entry.Status() == StatusProcessing {
				processing++
			}
		}
		if processing == 0 {
			break
		}

		select {
		case <-self.Ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}

	// Freshly resolved records become regular persisted transactions
	for _, entry := range entries {
		if entry.Status() != StatusProcessed {
			continue
		}
		err = self.transactionStore.AddTransaction(self.Ctx, entry.Record)
		if err != nil {
			if self.monitor != nil {
				self.monitor.GetReport().Errors.StoreErrors.Inc()
			}
			return
		}
		if self.monitor != nil {
			self.monitor.GetReport().State.TransactionsPersisted.Inc()
		}
	}
	return
}
