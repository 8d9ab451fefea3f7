package observe

import (
	"github.com/ethereum/go-ethereum/common"
)

type SyncPhase string

const (
	PhaseHistorical SyncPhase = "historical"
	PhaseLive       SyncPhase = "live"
)

// SyncState is process local and never persisted. Owned exclusively by the
// observer, read-only to everyone else.
//
// Invariant while Phase == PhaseHistorical:
// ContractDeploymentBlock <= LastSyncedBlock <= TargetBlock
type SyncState struct {
	Phase                   SyncPhase `json:"phase"`
	LastSyncedBlock         uint64    `json:"last_synced_block"`
	TargetBlock             uint64    `json:"target_block"`
	ContractDeploymentBlock uint64    `json:"contract_deployment_block"`
	IsComplete              bool      `json:"is_complete"`
}

func (self *Observer) GetSyncState() SyncState {
	self.stateMtx.RLock()
	defer self.stateMtx.RUnlock()
	return self.state
}

func (self *Observer) setState(state SyncState) {
	self.stateMtx.Lock()
	self.state = state
	self.stateMtx.Unlock()

	self.syncMonitorState()
}

func (self *Observer) advanceLastSyncedBlock(block uint64) {
	self.stateMtx.Lock()
	self.state.LastSyncedBlock = block
	self.stateMtx.Unlock()

	self.syncMonitorState()
}

func (self *Observer) enterLivePhase() {
	self.stateMtx.Lock()
	self.state.Phase = PhaseLive
	self.state.IsComplete = true
	self.stateMtx.Unlock()

	self.syncMonitorState()
}

func (self *Observer) syncMonitorState() {
	if self.monitor == nil {
		return
	}

	state := self.GetSyncState()
	report := self.monitor.GetReport()
	report.State.Phase.Store(string(state.Phase))
	report.State.LastSyncedBlock.Store(state.LastSyncedBlock)
	report.State.TargetBlock.Store(state.TargetBlock)
	if state.TargetBlock > 0 {
		report.State.SyncProgressPercent.Store(float64(state.LastSyncedBlock) / float64(state.TargetBlock) * 100)
	}
}

// Decides between historical catch-up and live polling based on the last
// persisted anchor record and the current chain tip.
func (self *Observer) decideStartingPoint(deploymentBlock uint64) (err error) {
	latest, err := self.chain.GetLatestTime(self.Ctx)
	if err != nil {
		return
	}
	if self.monitor != nil {
		self.monitor.GetReport().State.ChainCurrentHeight.Store(latest.Time)
	}

	last, err := self.transactionStore.GetLastTransaction(self.Ctx)
	if err != nil {
		return
	}

	state := SyncState{
		Phase:                   PhaseHistorical,
		TargetBlock:             latest.Time,
		ContractDeploymentBlock: deploymentBlock,
	}

	if last == nil {
		// Empty store, walk everything since the contract showed up
		state.LastSyncedBlock = deploymentBlock
		self.setState(state)

		self.Log.WithField("deploymentBlock", deploymentBlock).
			WithField("targetBlock", latest.Time).
			Info("No persisted transactions, starting historical sync from deployment block")
		return
	}

	lastBlock, err := self.chain.GetBlockNumberByHash(self.Ctx, common.HexToHash(last.TransactionTimeHash))
	if err != nil {
		// The hash may be gone after a reorg while we were down. Fall back
		// to the stored height, the live loop detects the reorg on read.
		self.Log.WithError(err).
			WithField("hash", last.TransactionTimeHash).
			Warn("Failed to resolve last transaction's block, using stored height")
		lastBlock = last.TransactionTime
		err = nil
	}

	state.LastSyncedBlock = lastBlock

	// The batch size is the cheapest probe: below it a single live
	// iteration catches up
	if latest.Time > lastBlock && latest.Time-lastBlock > self.Config.Observer.BatchSize {
		self.setState(state)

		self.Log.WithField("lastBlock", lastBlock).
			WithField("targetBlock", latest.Time).
			WithField("gap", latest.Time-lastBlock).
			Info("Resuming historical sync")
		return
	}

	state.Phase = PhaseLive
	state.IsComplete = true
	self.setState(state)

	self.Log.WithField("lastBlock", lastBlock).Info("Store is close to the chain tip, going live")
	return
}
