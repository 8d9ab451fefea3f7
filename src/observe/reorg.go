package observe

// Rolls derived state back to the deepest anchor record still on the
// canonical chain. The three deletions are strictly ordered so an
// interruption leaves a recoverable state: operations without their
// transaction can be re-derived, the converse cannot.
func (self *Observer) handleReorg() (err error) {
	self.Log.Warn("Block reorganization detected, rewinding")
	if self.monitor != nil {
		self.monitor.GetReport().State.ReorgsDetected.Inc()
	}

	// Quiesce in-flight work before touching the stores
	self.drainInFlight()
	err = self.consolidate()
	if err != nil {
		return
	}
	self.clearUnderProcessing()

	sample, err := self.transactionStore.GetExponentiallySpacedTransactions(self.Ctx)
	if err != nil {
		return
	}

	valid, err := self.chain.GetFirstValidTransaction(self.Ctx, sample)
	if err != nil {
		return
	}

	var after *uint64
	if valid != nil {
		after = &valid.TransactionNumber
		self.Log.WithField("transactionNumber", valid.TransactionNumber).
			Info("Rewinding to last valid transaction")
	} else {
		self.Log.Warn("No valid transaction found, rewinding to genesis")
	}

	err = self.operationStore.Delete(self.Ctx, after)
	if err != nil {
		return
	}
	err = self.unresolvableStore.RemoveUnresolvableTransactionsLaterThan(self.Ctx, after)
	if err != nil {
		return
	}
	err = self.transactionStore.RemoveTransactionsLaterThan(self.Ctx, after)
	if err != nil {
		return
	}

	self.emit(NewEvent(EventObserverBlockReorganization, map[string]interface{}{
		"rewound_to": after,
	}))

	return
}
