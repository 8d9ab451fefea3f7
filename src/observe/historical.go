package observe

import (
	"github.com/anchornet/observer/src/utils/eth"
)

// Walks [lastSyncedBlock, targetBlock] in batches through the paginator.
// Records are processed and persisted strictly in order. A fatal
// processing error aborts the loop, the next start resumes from the
// cursor derived out of the transaction store.
func (self *Observer) runHistorical() (err error) {
	state := self.GetSyncState()

	self.Log.WithField("from", state.LastSyncedBlock).
		WithField("target", state.TargetBlock).
		Info("Starting historical sync")

	for {
		// Stop flag is consulted between batches
		if self.IsStopping.Load() {
			return nil
		}

		state = self.GetSyncState()
		if state.LastSyncedBlock >= state.TargetBlock {
			break
		}

		batchTo := state.LastSyncedBlock + self.Config.Observer.BatchSize
		if batchTo > state.TargetBlock {
			batchTo = state.TargetBlock
		}

		// Paces batches so the RPC endpoint isn't hammered
		err = self.rateLimiter.Wait(self.Ctx)
		if err != nil {
			if self.IsStopping.Load() {
				return nil
			}
			return
		}

		var records []eth.AnchorRecord
		records, err = self.paginator.GetRange(self.Ctx, state.LastSyncedBlock, batchTo, eth.RangeOpts{})
		if err != nil {
			if self.monitor != nil {
				self.monitor.GetReport().Errors.ChainReadErrors.Inc()
			}
			return
		}

		err = self.processHistoricalBatch(records)
		if err != nil {
			return
		}

		self.advanceLastSyncedBlock(batchTo)

		state = self.GetSyncState()
		progress := float64(state.LastSyncedBlock) / float64(state.TargetBlock) * 100
		self.Log.WithField("lastSyncedBlock", state.LastSyncedBlock).
			WithField("targetBlock", state.TargetBlock).
			WithField("progress", progress).
			Info("Historical batch done")
	}

	self.Log.Info("Historical sync complete")
	return nil
}

func (self *Observer) processHistoricalBatch(records []eth.AnchorRecord) (err error) {
	for i := range records {
		record := records[i]

		var processor TransactionProcessor
		processor, err = self.versions.ProcessorFor(record.TransactionTime)
		if err != nil {
			return
		}

		var resolved bool
		resolved, err = processor.ProcessTransaction(self.Ctx, record)
		if err != nil {
			// Fatal, as opposed to a logical "unresolvable". Abort and
			// let cursor recovery take over on the next start.
			if self.monitor != nil {
				self.monitor.GetReport().Errors.ProcessingErrors.Inc()
			}
			return
		}

		if !resolved {
			err = self.unresolvableStore.RecordUnresolvableTransactionFetchAttempt(self.Ctx, record)
			if err != nil {
				return
			}
			if self.monitor != nil {
				self.monitor.GetReport().Errors.UnresolvableRecorded.Inc()
			}
			continue
		}

		err = self.transactionStore.AddTransaction(self.Ctx, record)
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
